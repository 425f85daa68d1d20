package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
)

// RunPipelineUseCase drives one CV document through the five extraction
// stages. The stage sequence is linear; the first failing stage marks the
// run and the document failed and nothing later executes. Artifacts
// persisted by earlier stages are left in place.
type RunPipelineUseCase struct {
	cvRepo     ports.CVRepository
	runs       ports.RunRepository
	profiles   ports.ProfileRepository
	blobs      ports.BlobStore
	prober     ports.PDFProber
	classifier ports.CVClassifier
	rasterizer ports.Rasterizer
	pages      ports.PageReader
	extractor  ports.ProfileExtractor
	progress   ports.ProgressPublisher

	checkpoints map[domain.Stage][]ports.CheckpointListener
	ocrLimit    int
}

func NewRunPipelineUseCase(
	cvRepo ports.CVRepository,
	runs ports.RunRepository,
	profiles ports.ProfileRepository,
	blobs ports.BlobStore,
	prober ports.PDFProber,
	classifier ports.CVClassifier,
	rasterizer ports.Rasterizer,
	pages ports.PageReader,
	extractor ports.ProfileExtractor,
	progress ports.ProgressPublisher,
	ocrLimit int,
	listeners ...ports.CheckpointListener,
) *RunPipelineUseCase {
	if ocrLimit <= 0 {
		ocrLimit = 4
	}
	checkpoints := make(map[domain.Stage][]ports.CheckpointListener)
	for _, l := range listeners {
		checkpoints[l.Stage()] = append(checkpoints[l.Stage()], l)
	}
	return &RunPipelineUseCase{
		cvRepo:      cvRepo,
		runs:        runs,
		profiles:    profiles,
		blobs:       blobs,
		prober:      prober,
		classifier:  classifier,
		rasterizer:  rasterizer,
		pages:       pages,
		extractor:   extractor,
		progress:    progress,
		checkpoints: checkpoints,
		ocrLimit:    ocrLimit,
	}
}

func (uc *RunPipelineUseCase) Run(ctx context.Context, trigger domain.PipelineTrigger) (domain.RunResult, error) {
	if err := uc.cvRepo.UpdateDocumentStatus(ctx, trigger.DocumentID, domain.StatusProcessing, ""); err != nil {
		return domain.RunResult{}, fmt.Errorf("set document status=processing: %w", err)
	}

	result, err := uc.execute(ctx, trigger)
	if err != nil {
		if failErr := uc.markFailed(ctx, trigger, err); failErr != nil {
			return domain.RunResult{}, fmt.Errorf("%w; mark failed: %v", err, failErr)
		}
		return domain.RunResult{}, err
	}

	if err := uc.runs.FinishRun(ctx, trigger.RunID, domain.RunComplete, ""); err != nil {
		return domain.RunResult{}, fmt.Errorf("finish run: %w", err)
	}
	if err := uc.cvRepo.UpdateDocumentStatus(ctx, trigger.DocumentID, domain.StatusReady, ""); err != nil {
		return domain.RunResult{}, fmt.Errorf("set document status=ready: %w", err)
	}
	return result, nil
}

func (uc *RunPipelineUseCase) execute(ctx context.Context, trigger domain.PipelineTrigger) (domain.RunResult, error) {
	pdf, err := uc.fetchPDF(ctx, trigger.Pathname)
	if err != nil {
		return domain.RunResult{}, err
	}

	if err := uc.validate(ctx, trigger, pdf); err != nil {
		return domain.RunResult{}, err
	}

	images, pngs, err := uc.rasterize(ctx, trigger, pdf)
	if err != nil {
		return domain.RunResult{}, err
	}

	markdowns, err := uc.extractText(ctx, trigger, images, pngs)
	if err != nil {
		return domain.RunResult{}, err
	}

	consolidated, err := uc.consolidate(ctx, trigger, markdowns)
	if err != nil {
		return domain.RunResult{}, err
	}

	if err := uc.structure(ctx, trigger, consolidated); err != nil {
		return domain.RunResult{}, err
	}

	return domain.RunResult{Success: true, User: trigger.UserID}, nil
}

func (uc *RunPipelineUseCase) fetchPDF(ctx context.Context, pathname string) ([]byte, error) {
	reader, err := uc.blobs.Open(ctx, pathname)
	if err != nil {
		return nil, fmt.Errorf("open cv blob: %w", err)
	}
	defer reader.Close()

	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read cv blob: %w", err)
	}
	if len(pdf) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch cv", errors.New("empty pdf"))
	}
	return pdf, nil
}

func (uc *RunPipelineUseCase) validate(ctx context.Context, trigger domain.PipelineTrigger, pdf []byte) error {
	if err := uc.beginStage(ctx, trigger.RunID, domain.StageValidating); err != nil {
		return err
	}

	pageCount, sample, err := uc.prober.Probe(pdf)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "probe pdf", err)
	}
	if pageCount == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "probe pdf", errors.New("pdf has no pages"))
	}

	cls, err := uc.classifier.ClassifyCV(ctx, sample)
	if err != nil {
		return fmt.Errorf("classify cv: %w", err)
	}
	if !cls.IsCV {
		// Definitive model verdict; the reason is the user-visible error
		// and the run must not be redelivered.
		return domain.WrapError(domain.ErrNotACV, "validate cv", errors.New(cls.Reason))
	}

	return uc.emitCheckpoint(ctx, trigger, domain.StageValidating)
}

func (uc *RunPipelineUseCase) rasterize(ctx context.Context, trigger domain.PipelineTrigger, pdf []byte) ([]domain.PageImage, map[int][]byte, error) {
	if err := uc.beginStage(ctx, trigger.RunID, domain.StageRasterizing); err != nil {
		return nil, nil, err
	}

	pages, err := uc.rasterizer.Rasterize(ctx, pdf)
	if err != nil {
		return nil, nil, fmt.Errorf("rasterize pdf: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "rasterize pdf", errors.New("zero pages produced"))
	}

	now := time.Now().UTC()
	images := make([]domain.PageImage, 0, len(pages))
	for _, page := range pages {
		pathname := fmt.Sprintf("cv/%s/%s/pages/page_%03d.png", trigger.UserID, trigger.DocumentID, page.PageNumber)
		obj, err := uc.blobs.Put(ctx, pathname, "image/png", bytes.NewReader(page.PNG))
		if err != nil {
			return nil, nil, fmt.Errorf("upload page %d image: %w", page.PageNumber, err)
		}
		images = append(images, domain.PageImage{
			ID:         uuid.NewString(),
			DocumentID: trigger.DocumentID,
			PageNumber: page.PageNumber,
			URL:        obj.URL,
			CreatedAt:  now,
		})
	}
	if err := uc.cvRepo.CreatePageImages(ctx, images); err != nil {
		return nil, nil, fmt.Errorf("persist page images: %w", err)
	}

	if err := uc.emitCheckpoint(ctx, trigger, domain.StageRasterizing); err != nil {
		return nil, nil, err
	}

	return images, pagePNGsByNumber(pages), nil
}

// extractText fans out one model call per page and waits for the whole
// batch. A single page failure fails the stage; nothing is persisted from
// a partial batch, so redelivery of the run stays safe.
func (uc *RunPipelineUseCase) extractText(ctx context.Context, trigger domain.PipelineTrigger, images []domain.PageImage, pngs map[int][]byte) ([]domain.PageMarkdown, error) {
	if err := uc.beginStage(ctx, trigger.RunID, domain.StageExtractingText); err != nil {
		return nil, err
	}

	results := make([]string, len(images))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.ocrLimit)
	for i, image := range images {
		group.Go(func() error {
			png, ok := pngs[image.PageNumber]
			if !ok {
				return fmt.Errorf("page %d: raster bytes missing", image.PageNumber)
			}
			md, err := uc.pages.PageToMarkdown(groupCtx, png)
			if err != nil {
				return fmt.Errorf("page %d: %w", image.PageNumber, err)
			}
			results[i] = md
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("extract page text: %w", err)
	}

	now := time.Now().UTC()
	markdowns := make([]domain.PageMarkdown, len(images))
	for i, image := range images {
		markdowns[i] = domain.PageMarkdown{
			ID:          uuid.NewString(),
			PageImageID: image.ID,
			DocumentID:  trigger.DocumentID,
			PageNumber:  image.PageNumber,
			Markdown:    results[i],
			CreatedAt:   now,
		}
	}
	if err := uc.cvRepo.CreatePageMarkdown(ctx, markdowns); err != nil {
		return nil, fmt.Errorf("persist page markdown: %w", err)
	}

	if err := uc.emitCheckpoint(ctx, trigger, domain.StageExtractingText); err != nil {
		return nil, err
	}
	return markdowns, nil
}

func (uc *RunPipelineUseCase) consolidate(ctx context.Context, trigger domain.PipelineTrigger, markdowns []domain.PageMarkdown) (string, error) {
	if err := uc.beginStage(ctx, trigger.RunID, domain.StageConsolidating); err != nil {
		return "", err
	}

	consolidated := ConsolidatePages(markdowns)

	pathname := fmt.Sprintf("cv/%s/%s/consolidated.md", trigger.UserID, trigger.DocumentID)
	obj, err := uc.blobs.Put(ctx, pathname, "text/markdown", bytes.NewReader([]byte(consolidated)))
	if err != nil {
		return "", fmt.Errorf("upload consolidated markdown: %w", err)
	}
	if err := uc.cvRepo.SaveConsolidatedMarkdown(ctx, &domain.ConsolidatedMarkdown{
		DocumentID: trigger.DocumentID,
		Markdown:   consolidated,
		URL:        obj.URL,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("persist consolidated markdown: %w", err)
	}

	if err := uc.emitCheckpoint(ctx, trigger, domain.StageConsolidating); err != nil {
		return "", err
	}
	return consolidated, nil
}

func (uc *RunPipelineUseCase) structure(ctx context.Context, trigger domain.PipelineTrigger, consolidated string) error {
	if err := uc.beginStage(ctx, trigger.RunID, domain.StageStructuring); err != nil {
		return err
	}

	profile, err := uc.extractor.ExtractProfile(ctx, consolidated)
	if err != nil {
		return fmt.Errorf("extract structured profile: %w", err)
	}
	profile.Normalize()

	if err := uc.profiles.Upsert(ctx, &domain.UserProfile{
		UserID:           trigger.UserID,
		Profile:          profile,
		SourceDocumentID: trigger.DocumentID,
		UpdatedAt:        time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}

	return uc.emitCheckpoint(ctx, trigger, domain.StageStructuring)
}

// beginStage records the stage on the run row and publishes the progress
// label. Progress publishing is best-effort: a flaky observer channel must
// not fail the run.
func (uc *RunPipelineUseCase) beginStage(ctx context.Context, runID string, stage domain.Stage) error {
	if err := uc.runs.UpdateRunStage(ctx, runID, stage); err != nil {
		return fmt.Errorf("set run stage=%s: %w", stage, err)
	}
	if err := uc.progress.Publish(ctx, runID, stage); err != nil {
		slog.Warn("progress_publish_failed", "run_id", runID, "stage", string(stage), "error", err)
	}
	return nil
}

func (uc *RunPipelineUseCase) emitCheckpoint(ctx context.Context, trigger domain.PipelineTrigger, stage domain.Stage) error {
	cp := domain.Checkpoint{
		RunID:      trigger.RunID,
		DocumentID: trigger.DocumentID,
		UserID:     trigger.UserID,
		Stage:      stage,
	}
	for _, listener := range uc.checkpoints[stage] {
		if err := listener.Handle(ctx, cp); err != nil {
			return fmt.Errorf("checkpoint %s: %w", stage, err)
		}
	}
	return nil
}

func (uc *RunPipelineUseCase) markFailed(ctx context.Context, trigger domain.PipelineTrigger, runErr error) error {
	if runErr == nil {
		return nil
	}
	if err := uc.runs.FinishRun(ctx, trigger.RunID, domain.RunFailed, runErr.Error()); err != nil {
		return err
	}
	return uc.cvRepo.UpdateDocumentStatus(ctx, trigger.DocumentID, domain.StatusFailed, runErr.Error())
}

// ConsolidatePages joins page markdown ascending by page number with the
// fixed separator, independent of the order extraction finished in.
func ConsolidatePages(markdowns []domain.PageMarkdown) string {
	ordered := make([]domain.PageMarkdown, len(markdowns))
	copy(ordered, markdowns)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	parts := make([]string, len(ordered))
	for i, page := range ordered {
		parts[i] = page.Markdown
	}
	return joinPages(parts)
}

func joinPages(parts []string) string {
	var out bytes.Buffer
	for i, part := range parts {
		if i > 0 {
			out.WriteString(domain.PageSeparator)
		}
		out.WriteString(part)
	}
	return out.String()
}

func pagePNGsByNumber(pages []ports.RasterPage) map[int][]byte {
	byNumber := make(map[int][]byte, len(pages))
	for _, page := range pages {
		byNumber[page.PageNumber] = page.PNG
	}
	return byNumber
}
