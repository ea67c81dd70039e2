// Package queue wraps the asynq client with the hub's task vocabulary: the
// one-shot catalog ingest, the recurring per-module stats refresh, and the
// submission workflow. Task identity rules live here so producers stay
// idempotent without coordinating.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names. Handlers are registered against these in the worker mux.
const (
	TypeIngest  = "hub:ingest"
	TypeRefresh = "module:refresh"
	TypeProcess = "submission:process"
)

// Job status values reported to callers polling an async operation.
const (
	StatusQueued   = "queued"
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusUnknown  = "unknown"
)

// ErrJobNotFound is returned by JobStatus when the job id is unknown, which
// also covers jobs whose completed record has already expired.
var ErrJobNotFound = errors.New("queue: job not found")

// IngestPayload asks the worker to ingest every module definition from the
// hub repository's modules directory.
type IngestPayload struct {
	HubRepo     string `json:"hub_repo"`
	ModulesPath string `json:"modules_path"`
}

// RefreshPayload asks the worker to refresh one module's hosting stats.
type RefreshPayload struct {
	RepoID string `json:"repo_id"`
}

// ProcessPayload asks the worker to run one submission through the hosting
// workflow.
type ProcessPayload struct {
	RepoID string `json:"repo_id"`
}

// Client enqueues hub tasks.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	maxRetry  int
}

// Open connects a queue client to Redis. redisURL accepts the same forms as
// redis:// URLs plus asynq's sentinel URIs.
func Open(redisURL string, maxRetry int) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis uri: %w", err)
	}
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		maxRetry:  maxRetry,
	}, nil
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	ierr := c.inspector.Close()
	if err := c.client.Close(); err != nil {
		return err
	}
	return ierr
}

// EnqueueIngest schedules a full catalog ingest. The fixed task id collapses
// concurrent bootstrap attempts into one ingest run.
func (c *Client) EnqueueIngest(ctx context.Context, hubRepo, modulesPath string) (string, error) {
	payload, err := json.Marshal(IngestPayload{HubRepo: hubRepo, ModulesPath: modulesPath})
	if err != nil {
		return "", fmt.Errorf("queue: encode ingest payload: %w", err)
	}
	id := "hub:ingest:" + strings.ToLower(hubRepo)
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeIngest, payload),
		asynq.TaskID(id),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(10*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: enqueue ingest: %w", err)
	}
	return info.ID, nil
}

// EnqueueProcess schedules processing of a submission. Each call is a fresh
// job so the caller can poll its individual progress.
func (c *Client) EnqueueProcess(ctx context.Context, repoID string) (string, error) {
	payload, err := json.Marshal(ProcessPayload{RepoID: repoID})
	if err != nil {
		return "", fmt.Errorf("queue: encode process payload: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeProcess, payload),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue process: %w", err)
	}
	return info.ID, nil
}

// ScheduleRefresh starts a module's recurring stats refresh chain. The first
// run lands on the current time slot, so a freshly added module gets its
// stats without waiting a full interval.
func (c *Client) ScheduleRefresh(ctx context.Context, repoID string, interval time.Duration) error {
	return c.scheduleRefreshAt(ctx, repoID, time.Now().Truncate(interval), interval)
}

// ScheduleNextRefresh perpetuates the chain from inside a refresh handler.
func (c *Client) ScheduleNextRefresh(ctx context.Context, repoID string, interval time.Duration) error {
	return c.scheduleRefreshAt(ctx, repoID, time.Now().Truncate(interval).Add(interval), interval)
}

// scheduleRefreshAt enqueues one refresh run with a deterministic time-slot
// task id. Two chains for the same module land on the same id and merge; the
// resulting ErrTaskIDConflict is the normal dedup signal, not a failure.
func (c *Client) scheduleRefreshAt(ctx context.Context, repoID string, at time.Time, interval time.Duration) error {
	payload, err := json.Marshal(RefreshPayload{RepoID: repoID})
	if err != nil {
		return fmt.Errorf("queue: encode refresh payload: %w", err)
	}
	id := refreshTaskID(repoID, at)
	_, err = c.client.EnqueueContext(ctx, asynq.NewTask(TypeRefresh, payload),
		asynq.TaskID(id),
		asynq.ProcessAt(at),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(2*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue: schedule refresh for %s: %w", repoID, err)
	}
	return nil
}

func refreshTaskID(repoID string, slot time.Time) string {
	return fmt.Sprintf("module:refresh:%s@%d", strings.ToLower(repoID), slot.Unix())
}

// JobStatus reports the lifecycle state of an enqueued job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (string, error) {
	info, err := c.inspector.GetTaskInfo("default", jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("queue: get task info: %w", err)
	}
	return mapState(info.State), nil
}

// mapState folds asynq's internal states into the four externally visible
// job states.
func mapState(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return StatusQueued
	case asynq.TaskStateActive:
		return StatusStarted
	case asynq.TaskStateCompleted:
		return StatusFinished
	case asynq.TaskStateArchived:
		return StatusFailed
	default:
		return StatusUnknown
	}
}
