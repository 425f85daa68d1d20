package ports

import (
	"context"
	"io"
	"time"

	"github.com/talentforge/platform/internal/core/domain"
)

// CVRepository persists CV documents and their per-page artifacts.
type CVRepository interface {
	CreateDocument(ctx context.Context, doc *domain.CVDocument) error
	GetDocumentByID(ctx context.Context, id string) (*domain.CVDocument, error)
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	CreatePageImages(ctx context.Context, pages []domain.PageImage) error
	ListPageImages(ctx context.Context, documentID string) ([]domain.PageImage, error)
	CreatePageMarkdown(ctx context.Context, pages []domain.PageMarkdown) error
	SaveConsolidatedMarkdown(ctx context.Context, cm *domain.ConsolidatedMarkdown) error
	GetConsolidatedMarkdown(ctx context.Context, documentID string) (*domain.ConsolidatedMarkdown, error)
}

// RunRepository persists pipeline run state. CreateRun returns
// domain.ErrRunInFlight when a non-terminal run already exists for the user.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	GetRunByID(ctx context.Context, id string) (*domain.PipelineRun, error)
	UpdateRunStage(ctx context.Context, id string, stage domain.Stage) error
	FinishRun(ctx context.Context, id string, status domain.RunStatus, errMessage string) error
	ReleaseStaleRuns(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ProfileRepository upserts and reads the long-lived user profile.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *domain.UserProfile) error
	GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)
	MarkOnboardingCompleted(ctx context.Context, userID string) error
}

// StoredObject is the blob store's handle for an uploaded object.
type StoredObject struct {
	URL      string
	Pathname string
}

// BlobStore stores uploaded PDFs, page images and generated markdown.
type BlobStore interface {
	Put(ctx context.Context, pathname, contentType string, data io.Reader) (StoredObject, error)
	Open(ctx context.Context, pathname string) (io.ReadCloser, error)
}

// TaskQueue dispatches pipeline triggers to workers.
type TaskQueue interface {
	PublishRunTriggered(ctx context.Context, trigger domain.PipelineTrigger) error
	SubscribeRunTriggered(ctx context.Context, handler func(context.Context, domain.PipelineTrigger) error) error
}

// ProgressPublisher exposes the current stage label to external observers.
type ProgressPublisher interface {
	Publish(ctx context.Context, runID string, stage domain.Stage) error
}

// ProgressReader returns the last published stage label for a run, or an
// empty string when nothing has been published yet.
type ProgressReader interface {
	Current(ctx context.Context, runID string) (string, error)
}

// RasterPage is one page of a rasterized PDF, in page order.
type RasterPage struct {
	PageNumber int
	PNG        []byte
}

// Rasterizer converts PDF bytes into one image per page, ordered by page
// number starting at 1.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]RasterPage, error)
}

// PDFProber performs a cheap structural check before any model call.
type PDFProber interface {
	Probe(pdf []byte) (pageCount int, textSample string, err error)
}

// CVClassifier judges whether a document is a legitimate CV.
type CVClassifier interface {
	ClassifyCV(ctx context.Context, textSample string) (domain.CVClassification, error)
}

// PageReader extracts markdown-formatted text from one page image.
type PageReader interface {
	PageToMarkdown(ctx context.Context, png []byte) (string, error)
}

// ProfileExtractor derives a structured profile from consolidated markdown.
type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, markdown string) (domain.StructuredProfile, error)
}

// CheckpointListener receives the checkpoint event emitted after the stage
// it subscribes to completes.
type CheckpointListener interface {
	Stage() domain.Stage
	Handle(ctx context.Context, cp domain.Checkpoint) error
}
