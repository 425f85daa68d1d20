package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type cvRepoFake struct {
	createdDoc    *domain.CVDocument
	createErr     error
	statusCalls   []statusCall
	pageImages    []domain.PageImage
	pageMarkdowns []domain.PageMarkdown
	consolidated  *domain.ConsolidatedMarkdown
}

func (f *cvRepoFake) CreateDocument(_ context.Context, doc *domain.CVDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdDoc = doc
	return nil
}

func (f *cvRepoFake) GetDocumentByID(context.Context, string) (*domain.CVDocument, error) {
	return nil, nil
}

func (f *cvRepoFake) UpdateDocumentStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *cvRepoFake) CreatePageImages(_ context.Context, pages []domain.PageImage) error {
	f.pageImages = append(f.pageImages, pages...)
	return nil
}

func (f *cvRepoFake) ListPageImages(context.Context, string) ([]domain.PageImage, error) {
	return f.pageImages, nil
}

func (f *cvRepoFake) CreatePageMarkdown(_ context.Context, pages []domain.PageMarkdown) error {
	f.pageMarkdowns = append(f.pageMarkdowns, pages...)
	return nil
}

func (f *cvRepoFake) SaveConsolidatedMarkdown(_ context.Context, cm *domain.ConsolidatedMarkdown) error {
	f.consolidated = cm
	return nil
}

func (f *cvRepoFake) GetConsolidatedMarkdown(context.Context, string) (*domain.ConsolidatedMarkdown, error) {
	return f.consolidated, nil
}

type finishCall struct {
	status domain.RunStatus
	errMsg string
}

type runRepoFake struct {
	createErr error
	finishErr error
	stages    []domain.Stage
	finishes  []finishCall
}

func (f *runRepoFake) CreateRun(context.Context, *domain.PipelineRun) error { return f.createErr }

func (f *runRepoFake) GetRunByID(context.Context, string) (*domain.PipelineRun, error) {
	return nil, nil
}

func (f *runRepoFake) UpdateRunStage(_ context.Context, _ string, stage domain.Stage) error {
	f.stages = append(f.stages, stage)
	return nil
}

func (f *runRepoFake) FinishRun(_ context.Context, _ string, status domain.RunStatus, errMessage string) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishes = append(f.finishes, finishCall{status: status, errMsg: errMessage})
	return nil
}

func (f *runRepoFake) ReleaseStaleRuns(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type profileRepoFake struct {
	upserted  *domain.UserProfile
	upsertErr error
	onboarded []string
}

func (f *profileRepoFake) Upsert(_ context.Context, profile *domain.UserProfile) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = profile
	return nil
}

func (f *profileRepoFake) GetByUserID(context.Context, string) (*domain.UserProfile, error) {
	return f.upserted, nil
}

func (f *profileRepoFake) MarkOnboardingCompleted(_ context.Context, userID string) error {
	f.onboarded = append(f.onboarded, userID)
	return nil
}

type blobFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newBlobFake() *blobFake {
	return &blobFake{objects: make(map[string][]byte)}
}

func (f *blobFake) Put(_ context.Context, pathname, _ string, data io.Reader) (ports.StoredObject, error) {
	if f.putErr != nil {
		return ports.StoredObject{}, f.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return ports.StoredObject{}, err
	}
	f.mu.Lock()
	f.objects[pathname] = raw
	f.mu.Unlock()
	return ports.StoredObject{URL: "mem://" + pathname, Pathname: pathname}, nil
}

func (f *blobFake) Open(_ context.Context, pathname string) (io.ReadCloser, error) {
	f.mu.Lock()
	raw, ok := f.objects[pathname]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("object not found: " + pathname)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type proberFake struct {
	pages  int
	sample string
	err    error
}

func (f *proberFake) Probe([]byte) (int, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.pages, f.sample, nil
}

type cvClassifierFake struct {
	cls    domain.CVClassification
	err    error
	called bool
}

func (f *cvClassifierFake) ClassifyCV(context.Context, string) (domain.CVClassification, error) {
	f.called = true
	if f.err != nil {
		return domain.CVClassification{}, f.err
	}
	return f.cls, nil
}

type rasterizerFake struct {
	pages  []ports.RasterPage
	err    error
	called bool
}

func (f *rasterizerFake) Rasterize(context.Context, []byte) ([]ports.RasterPage, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type pageReaderFake struct {
	failOnPage byte
}

func (f *pageReaderFake) PageToMarkdown(_ context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", errors.New("empty png")
	}
	if f.failOnPage != 0 && png[0] == f.failOnPage {
		return "", errors.New("model refused page")
	}
	return fmt.Sprintf("md-%d", png[0]), nil
}

type profileExtractorFake struct {
	profile  domain.StructuredProfile
	err      error
	markdown string
}

func (f *profileExtractorFake) ExtractProfile(_ context.Context, markdown string) (domain.StructuredProfile, error) {
	f.markdown = markdown
	if f.err != nil {
		return domain.StructuredProfile{}, f.err
	}
	return f.profile, nil
}

type progressFake struct {
	labels []string
	err    error
}

func (f *progressFake) Publish(_ context.Context, _ string, stage domain.Stage) error {
	if f.err != nil {
		return f.err
	}
	f.labels = append(f.labels, string(stage))
	return nil
}

func pipelineTrigger() domain.PipelineTrigger {
	return domain.PipelineTrigger{
		RunID:      "run-1",
		DocumentID: "doc-1",
		UserID:     "user-1",
		Pathname:   "cv/user-1/doc-1/cv.pdf",
		URL:        "mem://cv/user-1/doc-1/cv.pdf",
	}
}

func TestPipelineRunSuccess(t *testing.T) {
	trigger := pipelineTrigger()

	blobs := newBlobFake()
	blobs.objects[trigger.Pathname] = []byte("%PDF-1.4 fake")

	cvRepo := &cvRepoFake{}
	runs := &runRepoFake{}
	profiles := &profileRepoFake{}
	progress := &progressFake{}
	extractor := &profileExtractorFake{profile: domain.StructuredProfile{Skills: []string{"Go"}}}

	uc := NewRunPipelineUseCase(
		cvRepo,
		runs,
		profiles,
		blobs,
		&proberFake{pages: 2, sample: "John Doe, engineer"},
		&cvClassifierFake{cls: domain.CVClassification{IsCV: true, Confidence: 0.97}},
		&rasterizerFake{pages: []ports.RasterPage{
			{PageNumber: 1, PNG: []byte{1}},
			{PageNumber: 2, PNG: []byte{2}},
		}},
		&pageReaderFake{},
		extractor,
		progress,
		2,
		NewOnboardingMarker(profiles),
	)

	result, err := uc.Run(context.Background(), trigger)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success || result.User != "user-1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(cvRepo.statusCalls) != 2 ||
		cvRepo.statusCalls[0].status != domain.StatusProcessing ||
		cvRepo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected document status sequence: %+v", cvRepo.statusCalls)
	}
	if len(runs.finishes) != 1 || runs.finishes[0].status != domain.RunComplete {
		t.Fatalf("unexpected run finishes: %+v", runs.finishes)
	}

	wantStages := domain.Stages()
	if len(runs.stages) != len(wantStages) {
		t.Fatalf("expected %d stage updates, got %v", len(wantStages), runs.stages)
	}
	for i, stage := range wantStages {
		if runs.stages[i] != stage {
			t.Fatalf("stage %d: expected %s, got %s", i, stage, runs.stages[i])
		}
	}
	if len(progress.labels) != len(wantStages) {
		t.Fatalf("expected %d progress labels, got %v", len(wantStages), progress.labels)
	}

	wantConsolidated := "md-1" + domain.PageSeparator + "md-2"
	if cvRepo.consolidated == nil || cvRepo.consolidated.Markdown != wantConsolidated {
		t.Fatalf("unexpected consolidated markdown: %+v", cvRepo.consolidated)
	}
	if extractor.markdown != wantConsolidated {
		t.Fatalf("extractor received %q", extractor.markdown)
	}

	if profiles.upserted == nil || profiles.upserted.UserID != "user-1" {
		t.Fatalf("expected profile upsert for user-1, got %+v", profiles.upserted)
	}
	if profiles.upserted.Profile.Experience == nil || profiles.upserted.Profile.Education == nil {
		t.Fatalf("expected normalized profile slices, got %+v", profiles.upserted.Profile)
	}
	if len(profiles.onboarded) != 1 || profiles.onboarded[0] != "user-1" {
		t.Fatalf("expected onboarding marked after validation, got %v", profiles.onboarded)
	}
}

func TestPipelineRunRejectsNonCV(t *testing.T) {
	trigger := pipelineTrigger()

	blobs := newBlobFake()
	blobs.objects[trigger.Pathname] = []byte("%PDF-1.4 recipe book")

	cvRepo := &cvRepoFake{}
	runs := &runRepoFake{}
	rasterizer := &rasterizerFake{}
	profiles := &profileRepoFake{}

	uc := NewRunPipelineUseCase(
		cvRepo,
		runs,
		profiles,
		blobs,
		&proberFake{pages: 3, sample: "ingredients: flour, sugar"},
		&cvClassifierFake{cls: domain.CVClassification{IsCV: false, Confidence: 0.92, Reason: "document is a recipe collection"}},
		rasterizer,
		&pageReaderFake{},
		&profileExtractorFake{},
		&progressFake{},
		2,
		NewOnboardingMarker(profiles),
	)

	_, err := uc.Run(context.Background(), trigger)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotACV) {
		t.Fatalf("expected ErrNotACV, got %v", err)
	}
	if !strings.Contains(err.Error(), "recipe collection") {
		t.Fatalf("expected model reason in error, got %v", err)
	}

	if rasterizer.called {
		t.Fatalf("rasterizer must not run for a rejected document")
	}
	if len(profiles.onboarded) != 0 {
		t.Fatalf("onboarding must not fire for a rejected document")
	}
	if len(runs.finishes) != 1 || runs.finishes[0].status != domain.RunFailed {
		t.Fatalf("expected failed run, got %+v", runs.finishes)
	}
	if len(cvRepo.statusCalls) != 2 || cvRepo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected failed document status, got %+v", cvRepo.statusCalls)
	}
}

func TestPipelineRunFailsWhenPageExtractionFails(t *testing.T) {
	trigger := pipelineTrigger()

	blobs := newBlobFake()
	blobs.objects[trigger.Pathname] = []byte("%PDF-1.4 fake")

	cvRepo := &cvRepoFake{}
	runs := &runRepoFake{}
	profiles := &profileRepoFake{}

	uc := NewRunPipelineUseCase(
		cvRepo,
		runs,
		profiles,
		blobs,
		&proberFake{pages: 3, sample: "John Doe"},
		&cvClassifierFake{cls: domain.CVClassification{IsCV: true, Confidence: 0.9}},
		&rasterizerFake{pages: []ports.RasterPage{
			{PageNumber: 1, PNG: []byte{1}},
			{PageNumber: 2, PNG: []byte{2}},
			{PageNumber: 3, PNG: []byte{3}},
		}},
		&pageReaderFake{failOnPage: 2},
		&profileExtractorFake{},
		&progressFake{},
		2,
	)

	_, err := uc.Run(context.Background(), trigger)
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(cvRepo.pageMarkdowns) != 0 {
		t.Fatalf("no page markdown may be persisted from a partial batch, got %d", len(cvRepo.pageMarkdowns))
	}
	if cvRepo.consolidated != nil {
		t.Fatalf("consolidation must not run after extraction failure")
	}
	if profiles.upserted != nil {
		t.Fatalf("profile must not be upserted after extraction failure")
	}
	if len(runs.finishes) != 1 || runs.finishes[0].status != domain.RunFailed {
		t.Fatalf("expected failed run, got %+v", runs.finishes)
	}
}

func TestPipelineRunSurvivesProgressPublishFailure(t *testing.T) {
	trigger := pipelineTrigger()

	blobs := newBlobFake()
	blobs.objects[trigger.Pathname] = []byte("%PDF-1.4 fake")

	cvRepo := &cvRepoFake{}
	runs := &runRepoFake{}
	profiles := &profileRepoFake{}

	uc := NewRunPipelineUseCase(
		cvRepo,
		runs,
		profiles,
		blobs,
		&proberFake{pages: 1, sample: "Jane Doe"},
		&cvClassifierFake{cls: domain.CVClassification{IsCV: true, Confidence: 0.88}},
		&rasterizerFake{pages: []ports.RasterPage{{PageNumber: 1, PNG: []byte{1}}}},
		&pageReaderFake{},
		&profileExtractorFake{},
		&progressFake{err: errors.New("redis down")},
		1,
	)

	result, err := uc.Run(context.Background(), trigger)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success despite progress failures")
	}
}

func TestConsolidatePagesJoinsInPageOrder(t *testing.T) {
	pages := []domain.PageMarkdown{
		{PageNumber: 3, Markdown: "third"},
		{PageNumber: 1, Markdown: "first"},
		{PageNumber: 2, Markdown: "second"},
	}

	got := ConsolidatePages(pages)
	want := "first" + domain.PageSeparator + "second" + domain.PageSeparator + "third"
	if got != want {
		t.Fatalf("ConsolidatePages() = %q, want %q", got, want)
	}
}

func TestConsolidatePagesKeepsEmptyPages(t *testing.T) {
	pages := []domain.PageMarkdown{
		{PageNumber: 1, Markdown: "only"},
		{PageNumber: 2, Markdown: ""},
	}

	got := ConsolidatePages(pages)
	want := "only" + domain.PageSeparator
	if got != want {
		t.Fatalf("ConsolidatePages() = %q, want %q", got, want)
	}
}
