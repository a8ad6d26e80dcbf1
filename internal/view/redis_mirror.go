package view

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/logging"
)

const mirrorKeyPrefix = "walletsync:view:"

// Snapshotter is a View that can report what it rendered.
type Snapshotter interface {
	View
	Snapshot() Snapshot
}

// RedisMirror forwards to an inner view and publishes the resulting snapshot
// to Redis so an external UI can render it. Renders return as soon as the
// inner view is updated; a single writer goroutine publishes the latest
// snapshot. Mirror failures are logged only.
type RedisMirror struct {
	inner   Snapshotter
	cache   *redis.Client
	key     string
	ttl     time.Duration
	logger  *slog.Logger
	timeout time.Duration

	dirty     chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewRedisMirror mirrors inner under walletsync:view:<instance>. Call Close
// to flush the last snapshot and stop the writer.
func NewRedisMirror(inner Snapshotter, cache *redis.Client, instance string, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	return newRedisMirror(inner, cache, instance, ttl, logger, 2*time.Second)
}

func newRedisMirror(inner Snapshotter, cache *redis.Client, instance string, ttl time.Duration, logger *slog.Logger, timeout time.Duration) *RedisMirror {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &RedisMirror{
		inner:   inner,
		cache:   cache,
		key:     MirrorKey(instance),
		ttl:     ttl,
		logger:  logger,
		timeout: timeout,
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.run()
	return m
}

// MirrorKey is the Redis key holding an instance's snapshot.
func MirrorKey(instance string) string {
	return mirrorKeyPrefix + instance
}

// ShowLoginView renders the login screen and schedules a publish.
func (m *RedisMirror) ShowLoginView() {
	m.inner.ShowLoginView()
	m.markDirty()
}

// ShowDashboardView renders the dashboard and schedules a publish.
func (m *RedisMirror) ShowDashboardView() {
	m.inner.ShowDashboardView()
	m.markDirty()
}

// RenderPresenceList renders peers and schedules a publish.
func (m *RedisMirror) RenderPresenceList(peers []PeerUser) {
	m.inner.RenderPresenceList(peers)
	m.markDirty()
}

// RenderBalance renders balance and schedules a publish.
func (m *RedisMirror) RenderBalance(balance decimal.Decimal) {
	m.inner.RenderBalance(balance)
	m.markDirty()
}

// RenderWalletID renders walletID and schedules a publish.
func (m *RedisMirror) RenderWalletID(walletID string) {
	m.inner.RenderWalletID(walletID)
	m.markDirty()
}

// NotifyFailure records message and schedules a publish.
func (m *RedisMirror) NotifyFailure(message string) {
	m.inner.NotifyFailure(message)
	m.markDirty()
}

// PromptForAmount delegates to the inner view.
func (m *RedisMirror) PromptForAmount() (string, bool) {
	return m.inner.PromptForAmount()
}

// Snapshot returns the inner view's state, which may be ahead of Redis.
func (m *RedisMirror) Snapshot() Snapshot {
	return m.inner.Snapshot()
}

// Load reads the last published snapshot back from Redis.
func (m *RedisMirror) Load(ctx context.Context) (Snapshot, error) {
	raw, err := m.cache.Get(ctx, m.key).Bytes()
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Close publishes any pending snapshot and stops the writer. It is safe to
// call more than once.
func (m *RedisMirror) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	<-m.stopped
}

// markDirty never blocks; a pending signal already covers this render
// because the writer reads the snapshot when it publishes.
func (m *RedisMirror) markDirty() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

func (m *RedisMirror) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.dirty:
			m.publish()
		case <-m.done:
			select {
			case <-m.dirty:
				m.publish()
			default:
			}
			return
		}
	}
}

func (m *RedisMirror) publish() {
	payload, err := json.Marshal(m.inner.Snapshot())
	if err != nil {
		m.logger.Warn("encode view snapshot", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.cache.Set(ctx, m.key, payload, m.ttl).Err(); err != nil {
		m.logger.Warn("mirror view snapshot", slog.String("key", m.key), slog.Any("error", err))
	}
}
