package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/talentforge/platform/internal/config"
	"github.com/talentforge/platform/internal/core/ports"
	"github.com/talentforge/platform/internal/core/usecase"
	"github.com/talentforge/platform/internal/infrastructure/llm/ollama"
	"github.com/talentforge/platform/internal/infrastructure/pdfcheck"
	redisprogress "github.com/talentforge/platform/internal/infrastructure/progress/redis"
	natsqueue "github.com/talentforge/platform/internal/infrastructure/queue/nats"
	"github.com/talentforge/platform/internal/infrastructure/raster/fitz"
	"github.com/talentforge/platform/internal/infrastructure/raster/poppler"
	"github.com/talentforge/platform/internal/infrastructure/repository/postgres"
	"github.com/talentforge/platform/internal/infrastructure/resilience"
	"github.com/talentforge/platform/internal/infrastructure/storage/localfs"
	"github.com/talentforge/platform/internal/infrastructure/storage/s3"
)

type App struct {
	Config config.Config

	Queue    ports.TaskQueue
	Docs     ports.DocumentReader
	Runs     ports.RunReader
	Profiles ports.ProfileReader
	Progress ports.ProgressReader

	UploadUC   ports.CVUploader
	PipelineUC ports.PipelineRunner

	closeFn func()
}

// New wires the full dependency graph. Extra checkpoint listeners, such as
// the worker's stage metrics, run after the built-in onboarding marker.
func New(ctx context.Context, cfg config.Config, listeners ...ports.CheckpointListener) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	cvRepo := postgres.NewCVRepository(db)
	if err := cvRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	runRepo := postgres.NewRunRepository(db)
	profileRepo := postgres.NewProfileRepository(db)

	if cfg.RunTimeoutSeconds > 0 {
		// Anything older than twice the run timeout cannot still be
		// executing; clear it so the active-run guard lets the user retry.
		maxAge := 2 * time.Duration(cfg.RunTimeoutSeconds) * time.Second
		if released, err := runRepo.ReleaseStaleRuns(ctx, maxAge); err != nil {
			slog.Warn("release_stale_runs_failed", "error", err)
		} else if released > 0 {
			slog.Info("released_stale_runs", "count", released)
		}
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init task queue: %w", err)
	}

	redisClient := redisprogress.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	progress := redisprogress.NewPublisher(redisClient, 24*time.Hour)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaVisionModel, cfg.OllamaRequestsPerS).
		WithExecutor(executor)
	classifier := ollama.NewClassifier(ollamaClient)
	pageReader := ollama.NewPageReader(ollamaClient)
	profileExtractor := ollama.NewProfileExtractor(ollamaClient)

	prober := pdfcheck.New(cfg.MaxPDFPages)
	rasterizer := newRasterizer(cfg)

	allListeners := append(
		[]ports.CheckpointListener{usecase.NewOnboardingMarker(profileRepo)},
		listeners...,
	)

	uploadUC := usecase.NewUploadCVUseCase(cvRepo, runRepo, blobs, queue)
	pipelineUC := usecase.NewRunPipelineUseCase(
		cvRepo,
		runRepo,
		profileRepo,
		blobs,
		prober,
		classifier,
		rasterizer,
		pageReader,
		profileExtractor,
		progress,
		cfg.OCRConcurrency,
		allListeners...,
	)

	return &App{
		Config: cfg,

		Queue:    queue,
		Docs:     cvRepo,
		Runs:     runRepo,
		Profiles: profileRepo,
		Progress: progress,

		UploadUC:   uploadUC,
		PipelineUC: pipelineUC,

		closeFn: func() {
			queue.Close()
			_ = redisClient.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newBlobStore(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newRasterizer(cfg config.Config) ports.Rasterizer {
	if strings.ToLower(cfg.RasterBackend) == "poppler" {
		return poppler.New(cfg.PopplerBinary, cfg.RasterDPI)
	}
	return fitz.New()
}
