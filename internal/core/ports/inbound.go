package ports

import (
	"context"
	"io"

	"github.com/talentforge/platform/internal/core/domain"
)

// CVUploader is the inbound contract for CV upload orchestration.
type CVUploader interface {
	Upload(ctx context.Context, userID, filename string, body io.Reader) (*domain.CVDocument, *domain.PipelineRun, error)
}

// PipelineRunner is the inbound contract for asynchronous run execution.
type PipelineRunner interface {
	Run(ctx context.Context, trigger domain.PipelineTrigger) (domain.RunResult, error)
}

// DocumentReader is the inbound read model for document state and the
// artifacts the pipeline attached to it.
type DocumentReader interface {
	GetDocumentByID(ctx context.Context, id string) (*domain.CVDocument, error)
	ListPageImages(ctx context.Context, documentID string) ([]domain.PageImage, error)
	GetConsolidatedMarkdown(ctx context.Context, documentID string) (*domain.ConsolidatedMarkdown, error)
}

// RunReader is the inbound read model for run state.
type RunReader interface {
	GetRunByID(ctx context.Context, id string) (*domain.PipelineRun, error)
}

// ProfileReader is the inbound read model for extracted profiles.
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)
}
