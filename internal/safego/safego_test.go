package safego

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test", func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	var ran atomic.Bool
	done := make(chan struct{})
	Go("panicky", func() {
		defer close(done)
		ran.Store(true)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
	if !ran.Load() {
		t.Error("function body did not run")
	}
	// Reaching here without the test binary dying is the assertion: the panic
	// was recovered inside the launched goroutine.
}
