package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestStartTicksImmediately(t *testing.T) {
	s := NewScheduler(nil, nil)
	var ticks atomic.Int32

	h := s.Start(context.Background(), time.Hour, func(context.Context) { ticks.Add(1) })
	defer h.Stop()

	waitFor(t, func() bool { return ticks.Load() == 1 })
	if s.Active() != 1 {
		t.Fatalf("expected one active handle, got %d", s.Active())
	}
}

func TestStartRepeatsAtInterval(t *testing.T) {
	s := NewScheduler(nil, nil)
	var ticks atomic.Int32

	h := s.Start(context.Background(), 10*time.Millisecond, func(context.Context) { ticks.Add(1) })
	defer h.Stop()

	waitFor(t, func() bool { return ticks.Load() >= 3 })
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	s := NewScheduler(nil, nil)
	var ticks atomic.Int32

	h := s.Start(context.Background(), 5*time.Millisecond, func(context.Context) { ticks.Add(1) })
	waitFor(t, func() bool { return ticks.Load() >= 2 })

	s.Stop(h)
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatalf("tick fired after stop: %d -> %d", after, ticks.Load())
	}
	if !h.Stopped() {
		t.Fatalf("expected handle to report stopped")
	}
	if s.Active() != 0 {
		t.Fatalf("expected no active handles, got %d", s.Active())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(nil, nil)
	h := s.Start(context.Background(), time.Hour, func(context.Context) {})

	h.Stop()
	h.Stop()
	s.Stop(h)

	var nilHandle *Handle
	nilHandle.Stop()
	if !nilHandle.Stopped() {
		t.Fatalf("nil handle should report stopped")
	}
}

func TestStopDoesNotCancelTickContext(t *testing.T) {
	s := NewScheduler(nil, nil)
	got := make(chan context.Context, 1)

	h := s.Start(context.Background(), time.Hour, func(ctx context.Context) {
		select {
		case got <- ctx:
		default:
		}
	})
	tickCtx := <-got
	h.Stop()

	if tickCtx.Err() != nil {
		t.Fatalf("in-flight work must survive stop, ctx err=%v", tickCtx.Err())
	}
}

func TestParentCancellationEndsLoop(t *testing.T) {
	s := NewScheduler(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32

	h := s.Start(ctx, 5*time.Millisecond, func(context.Context) { ticks.Add(1) })
	waitFor(t, func() bool { return ticks.Load() >= 1 })
	cancel()

	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not exit after parent cancellation")
	}
	h.Stop()
}
