package domain

import "time"

type RunStatus string

const (
	RunPending  RunStatus = "pending"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunComplete || s == RunFailed
}

// Stage identifies one step of the extraction pipeline. The string values
// double as the progress labels published to the progress channel.
type Stage string

const (
	StageValidating     Stage = "validating"
	StageRasterizing    Stage = "rasterizing"
	StageExtractingText Stage = "extracting_text"
	StageConsolidating  Stage = "consolidating"
	StageStructuring    Stage = "structuring"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageValidating,
		StageRasterizing,
		StageExtractingText,
		StageConsolidating,
		StageStructuring,
	}
}

type PipelineRun struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Status     RunStatus `json:"status"`
	Stage      Stage     `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// PipelineTrigger is the payload carried on the task queue.
type PipelineTrigger struct {
	RunID      string `json:"run_id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Pathname   string `json:"pathname"`
	URL        string `json:"url"`
}

// Checkpoint is emitted after a stage completes. Side effects that are
// coupled to a specific stage subscribe to its checkpoint instead of being
// buried inside the stage itself.
type Checkpoint struct {
	RunID      string
	DocumentID string
	UserID     string
	Stage      Stage
}

// RunResult is the terminal outcome of a successful run.
type RunResult struct {
	Success bool   `json:"success"`
	User    string `json:"user"`
}
