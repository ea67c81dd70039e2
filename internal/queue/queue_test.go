package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestMapState(t *testing.T) {
	cases := []struct {
		state asynq.TaskState
		want  string
	}{
		{asynq.TaskStatePending, StatusQueued},
		{asynq.TaskStateScheduled, StatusQueued},
		{asynq.TaskStateRetry, StatusQueued},
		{asynq.TaskStateActive, StatusStarted},
		{asynq.TaskStateCompleted, StatusFinished},
		{asynq.TaskStateArchived, StatusFailed},
	}
	for _, tc := range cases {
		if got := mapState(tc.state); got != tc.want {
			t.Errorf("mapState(%v) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestRefreshTaskIDDeterministic(t *testing.T) {
	slot := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := refreshTaskID("Acme/Widget", slot)
	b := refreshTaskID("acme/widget", slot)
	if a != b {
		t.Errorf("task ids differ for same module and slot: %q vs %q", a, b)
	}
	next := refreshTaskID("acme/widget", slot.Add(time.Hour))
	if a == next {
		t.Error("task ids for consecutive slots must differ")
	}
}
