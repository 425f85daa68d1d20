package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
)

type UploadCVUseCase struct {
	cvRepo ports.CVRepository
	runs   ports.RunRepository
	blobs  ports.BlobStore
	queue  ports.TaskQueue
}

func NewUploadCVUseCase(
	cvRepo ports.CVRepository,
	runs ports.RunRepository,
	blobs ports.BlobStore,
	queue ports.TaskQueue,
) *UploadCVUseCase {
	return &UploadCVUseCase{
		cvRepo: cvRepo,
		runs:   runs,
		blobs:  blobs,
		queue:  queue,
	}
}

// Upload stores the PDF, records the document and run rows, and dispatches
// the pipeline trigger. The caller only learns that scheduling succeeded;
// run outcome is observed through the progress channel and run queries.
func (uc *UploadCVUseCase) Upload(
	ctx context.Context,
	userID, filename string,
	body io.Reader,
) (*domain.CVDocument, *domain.PipelineRun, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "upload cv", errors.New("user id is required"))
	}

	id := uuid.NewString()
	pathname := fmt.Sprintf("cv/%s/%s/%s", userID, id, sanitizeFilename(filename))
	now := time.Now().UTC()

	obj, err := uc.blobs.Put(ctx, pathname, "application/pdf", body)
	if err != nil {
		return nil, nil, fmt.Errorf("save cv to blob store: %w", err)
	}

	doc := &domain.CVDocument{
		ID:        id,
		UserID:    userID,
		Filename:  filename,
		Pathname:  obj.Pathname,
		URL:       obj.URL,
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.cvRepo.CreateDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("create cv document: %w", err)
	}

	run := &domain.PipelineRun{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		UserID:     userID,
		Status:     domain.RunPending,
		StartedAt:  now,
	}
	if err := uc.runs.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("create pipeline run: %w", err)
	}

	trigger := domain.PipelineTrigger{
		RunID:      run.ID,
		DocumentID: doc.ID,
		UserID:     userID,
		Pathname:   doc.Pathname,
		URL:        doc.URL,
	}
	if err := uc.queue.PublishRunTriggered(ctx, trigger); err != nil {
		publishErr := fmt.Errorf("publish run trigger: %w", err)
		// A run that stays pending would hold the per-user active-run
		// guard forever and block every later upload.
		if relErr := uc.releaseRun(ctx, doc.ID, run.ID, err); relErr != nil {
			return nil, nil, fmt.Errorf("%w; release run: %v", publishErr, relErr)
		}
		return nil, nil, publishErr
	}

	return doc, run, nil
}

func (uc *UploadCVUseCase) releaseRun(ctx context.Context, docID, runID string, cause error) error {
	if err := uc.runs.FinishRun(ctx, runID, domain.RunFailed, "publish trigger: "+cause.Error()); err != nil {
		return err
	}
	return uc.cvRepo.UpdateDocumentStatus(ctx, docID, domain.StatusFailed, "pipeline trigger was not published")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "cv.pdf"
	}
	return base
}
