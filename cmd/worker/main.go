package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talentforge/platform/internal/bootstrap"
	"github.com/talentforge/platform/internal/config"
	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
	"github.com/talentforge/platform/internal/observability/logging"
	"github.com/talentforge/platform/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	clock := newStageClock()

	listeners := make([]ports.CheckpointListener, 0, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		listeners = append(listeners, stageTimer{stage: stage, metrics: workerMetrics, clock: clock})
	}

	app, err := bootstrap.New(ctx, cfg, listeners...)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runTimeout := time.Duration(cfg.RunTimeoutSeconds) * time.Second

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRunTriggered(ctx, func(handlerCtx context.Context, trigger domain.PipelineTrigger) error {
		start := time.Now()
		clock.mark(trigger.RunID)
		workerMetrics.StartRun()

		if run, err := app.Runs.GetRunByID(handlerCtx, trigger.RunID); err == nil {
			workerMetrics.ObserveQueueLag("worker", start.Sub(run.StartedAt))
		}

		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		_, runErr := app.PipelineUC.Run(runCtx, trigger)

		clock.forget(trigger.RunID)
		workerMetrics.FinishRun("worker", time.Since(start), runErr)
		return runErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// stageTimer records the elapsed time of each pipeline stage from the
// checkpoint stream: the lap between two consecutive checkpoints is the
// duration of the stage that just completed.
type stageTimer struct {
	stage   domain.Stage
	metrics *metrics.WorkerMetrics
	clock   *stageClock
}

func (t stageTimer) Stage() domain.Stage {
	return t.stage
}

func (t stageTimer) Handle(_ context.Context, cp domain.Checkpoint) error {
	if d, ok := t.clock.lap(cp.RunID); ok {
		t.metrics.ObserveStage("worker", string(t.stage), d)
	}
	return nil
}

type stageClock struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func newStageClock() *stageClock {
	return &stageClock{marks: make(map[string]time.Time)}
}

func (c *stageClock) mark(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks[runID] = time.Now()
}

func (c *stageClock) lap(runID string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	prev, ok := c.marks[runID]
	if !ok {
		return 0, false
	}
	c.marks[runID] = now
	return now.Sub(prev), true
}

func (c *stageClock) forget(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.marks, runID)
}
