package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
)

// DefaultInterval is the refresh period used when none is configured.
const DefaultInterval = 60 * time.Second

// TickFunc performs one refresh cycle. It must not block for long: the
// scheduler fires the next tick regardless of whether earlier work finished.
type TickFunc func(ctx context.Context)

// Handle identifies one running poll loop. It is the only way to stop it.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	onStop  func(*Handle)
}

// Stop cancels future ticks and waits for the loop to exit. Safe to call
// repeatedly and concurrently, but not from inside a tick.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.stopped = true
	onStop := h.onStop
	h.mu.Unlock()

	h.cancel()
	<-h.done
	if onStop != nil {
		onStop(h)
	}
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Scheduler starts poll loops and tracks how many are live.
type Scheduler struct {
	logger  *slog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	active map[*Handle]struct{}
}

// NewScheduler builds a scheduler. Both arguments may be nil.
func NewScheduler(logger *slog.Logger, m *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{logger: logger, metrics: m, active: make(map[*Handle]struct{})}
}

// Start runs tick once immediately, then every interval until the returned
// handle is stopped or ctx is done. A non-positive interval uses DefaultInterval.
// Ticks receive ctx itself, so stopping the handle does not cancel work a
// tick already started.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, tick TickFunc) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{}), onStop: s.forget}

	s.mu.Lock()
	s.active[h] = struct{}{}
	s.mu.Unlock()

	go s.run(loopCtx, ctx, h, interval, tick)
	return h
}

// Stop is equivalent to h.Stop.
func (s *Scheduler) Stop(h *Handle) {
	h.Stop()
}

// Active reports how many handles have been started and not stopped.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.active, h)
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx, tickCtx context.Context, h *Handle, interval time.Duration, tick TickFunc) {
	defer close(h.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("poll loop started", slog.Duration("interval", interval))
	s.fire(ctx, tickCtx, tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("poll loop stopped")
			return
		case <-ticker.C:
			s.fire(ctx, tickCtx, tick)
		}
	}
}

func (s *Scheduler) fire(loopCtx, tickCtx context.Context, tick TickFunc) {
	// Stop may race with a ready ticker; a cancelled loop never ticks.
	if loopCtx.Err() != nil {
		return
	}
	s.metrics.ObserveTick()
	tick(tickCtx)
}
