// Package worker runs the hub's background jobs on an asynq server.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/modhub/modhub/internal/queue"
)

// Hub is the slice of the catalog the handlers drive.
type Hub interface {
	IngestRepo(ctx context.Context, hubRepo, modulesPath string) error
	RefreshModuleStats(ctx context.Context, repoID string) error
	ProcessSubmission(ctx context.Context, repoID string) error
}

// Scheduler perpetuates refresh chains from inside handlers.
type Scheduler interface {
	ScheduleNextRefresh(ctx context.Context, repoID string, interval time.Duration) error
}

// Worker owns the handlers behind the hub's task types.
type Worker struct {
	hub             Hub
	sched           Scheduler
	refreshInterval time.Duration
	logger          *slog.Logger
}

// New creates a worker around a hub.
func New(hub Hub, sched Scheduler, refreshInterval time.Duration, logger *slog.Logger) *Worker {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	return &Worker{
		hub:             hub,
		sched:           sched,
		refreshInterval: refreshInterval,
		logger:          logger,
	}
}

// Mux registers the task handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeIngest, w.handleIngest)
	mux.HandleFunc(queue.TypeRefresh, w.handleRefresh)
	mux.HandleFunc(queue.TypeProcess, w.handleProcess)
	return mux
}

func (w *Worker) handleIngest(ctx context.Context, task *asynq.Task) error {
	var payload queue.IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: decode ingest payload: %w", err)
	}
	w.logger.Info("ingest job started", "hub_repo", payload.HubRepo)
	return w.hub.IngestRepo(ctx, payload.HubRepo, payload.ModulesPath)
}

func (w *Worker) handleRefresh(ctx context.Context, task *asynq.Task) error {
	var payload queue.RefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: decode refresh payload: %w", err)
	}
	// The next run is scheduled whatever happens to this one, so a failing
	// module keeps refreshing instead of silently dropping off the chain.
	defer func() {
		if err := w.sched.ScheduleNextRefresh(ctx, payload.RepoID, w.refreshInterval); err != nil {
			w.logger.Error("could not schedule next refresh",
				"module", payload.RepoID, "error", err)
		}
	}()
	return w.hub.RefreshModuleStats(ctx, payload.RepoID)
}

func (w *Worker) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: decode process payload: %w", err)
	}
	return w.hub.ProcessSubmission(ctx, payload.RepoID)
}

// Run starts the asynq server and blocks until it shuts down.
func (w *Worker) Run(redisURL string, concurrency int) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return fmt.Errorf("worker: parse redis uri: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Logger:      &slogAdapter{logger: w.logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			w.logger.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
	w.logger.Info("worker starting", "concurrency", concurrency)
	return srv.Run(w.Mux())
}

// slogAdapter bridges asynq's logger interface onto slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
