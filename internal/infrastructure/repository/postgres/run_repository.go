package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talentforge/platform/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts the run row. The partial unique index on active runs
// per user turns a concurrent re-trigger into a unique violation, which is
// surfaced as ErrRunInFlight.
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (id, document_id, user_id, status, stage, error_message, started_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, run.ID, run.DocumentID, run.UserID, string(run.Status), string(run.Stage), run.Error, run.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrRunInFlight, "create run", err)
		}
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRunByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, user_id, status, stage, error_message, started_at, finished_at
FROM pipeline_runs
WHERE id = $1
`, id)

	var run domain.PipelineRun
	var status string
	var stage, errMessage sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.DocumentID, &run.UserID, &status, &stage, &errMessage, &run.StartedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", err)
		}
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.Stage = domain.Stage(stage.String)
	run.Error = errMessage.String
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

func (r *RunRepository) UpdateRunStage(ctx context.Context, id string, stage domain.Stage) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $2, stage = $3
WHERE id = $1
`, id, string(domain.RunRunning), string(stage))
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "update run stage", sql.ErrNoRows)
	}
	return nil
}

func (r *RunRepository) FinishRun(ctx context.Context, id string, status domain.RunStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $2, error_message = $3, finished_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "finish run", sql.ErrNoRows)
	}
	return nil
}

// ReleaseStaleRuns fails non-terminal runs older than maxAge. A worker that
// dies mid-run leaves a running row that the per-user active-run guard would
// otherwise hold against the user's next upload indefinitely.
func (r *RunRepository) ReleaseStaleRuns(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET status = $1, error_message = 'run abandoned before completion', finished_at = $2
WHERE status IN ($3, $4) AND started_at < $5
`, string(domain.RunFailed), time.Now().UTC(),
		string(domain.RunPending), string(domain.RunRunning), time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("release stale runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
