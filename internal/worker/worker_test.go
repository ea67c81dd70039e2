package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/modhub/modhub/internal/queue"
)

type fakeHub struct {
	ingested   []string
	refreshed  []string
	processed  []string
	refreshErr error
}

func (f *fakeHub) IngestRepo(_ context.Context, hubRepo, _ string) error {
	f.ingested = append(f.ingested, hubRepo)
	return nil
}

func (f *fakeHub) RefreshModuleStats(_ context.Context, repoID string) error {
	f.refreshed = append(f.refreshed, repoID)
	return f.refreshErr
}

func (f *fakeHub) ProcessSubmission(_ context.Context, repoID string) error {
	f.processed = append(f.processed, repoID)
	return nil
}

type fakeSched struct {
	next []string
}

func (f *fakeSched) ScheduleNextRefresh(_ context.Context, repoID string, _ time.Duration) error {
	f.next = append(f.next, repoID)
	return nil
}

func newTestWorker(hub *fakeHub, sched *fakeSched) *Worker {
	return New(hub, sched, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func task(t *testing.T, taskType string, payload any) *asynq.Task {
	t.Helper()
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(taskType, buf)
}

func TestHandleIngest(t *testing.T) {
	hub := &fakeHub{}
	w := newTestWorker(hub, &fakeSched{})

	err := w.handleIngest(context.Background(), task(t, queue.TypeIngest,
		queue.IngestPayload{HubRepo: "acme/hub", ModulesPath: "modules"}))
	if err != nil {
		t.Fatalf("handleIngest: %v", err)
	}
	if len(hub.ingested) != 1 || hub.ingested[0] != "acme/hub" {
		t.Errorf("unexpected ingests %v", hub.ingested)
	}
}

func TestHandleRefreshPerpetuatesChain(t *testing.T) {
	hub := &fakeHub{}
	sched := &fakeSched{}
	w := newTestWorker(hub, sched)

	err := w.handleRefresh(context.Background(), task(t, queue.TypeRefresh,
		queue.RefreshPayload{RepoID: "acme/widget"}))
	if err != nil {
		t.Fatalf("handleRefresh: %v", err)
	}
	if len(sched.next) != 1 || sched.next[0] != "acme/widget" {
		t.Errorf("next refresh not scheduled: %v", sched.next)
	}
}

func TestHandleRefreshSchedulesNextOnFailure(t *testing.T) {
	hub := &fakeHub{refreshErr: errors.New("hosting down")}
	sched := &fakeSched{}
	w := newTestWorker(hub, sched)

	err := w.handleRefresh(context.Background(), task(t, queue.TypeRefresh,
		queue.RefreshPayload{RepoID: "acme/widget"}))
	if err == nil {
		t.Fatal("expected the refresh error to propagate for retry")
	}
	// The chain must survive a failed run.
	if len(sched.next) != 1 {
		t.Errorf("next refresh not scheduled after failure: %v", sched.next)
	}
}

func TestHandleProcess(t *testing.T) {
	hub := &fakeHub{}
	w := newTestWorker(hub, &fakeSched{})

	err := w.handleProcess(context.Background(), task(t, queue.TypeProcess,
		queue.ProcessPayload{RepoID: "acme/widget"}))
	if err != nil {
		t.Fatalf("handleProcess: %v", err)
	}
	if len(hub.processed) != 1 {
		t.Errorf("unexpected processed %v", hub.processed)
	}
}

func TestHandleBadPayload(t *testing.T) {
	w := newTestWorker(&fakeHub{}, &fakeSched{})
	bad := asynq.NewTask(queue.TypeRefresh, []byte("{nope"))
	if err := w.handleRefresh(context.Background(), bad); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMuxRegistersAllTypes(t *testing.T) {
	hub := &fakeHub{}
	w := newTestWorker(hub, &fakeSched{})
	mux := w.Mux()

	err := mux.ProcessTask(context.Background(), task(t, queue.TypeProcess,
		queue.ProcessPayload{RepoID: "acme/widget"}))
	if err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(hub.processed) != 1 {
		t.Error("process handler not registered")
	}
}
