// Package engine assembles the session, polling and transfer components into
// the wallet client that the daemon and the control API drive.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/walletsync/internal/balance"
	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
	"github.com/congo-pay/walletsync/internal/notification"
	"github.com/congo-pay/walletsync/internal/poll"
	"github.com/congo-pay/walletsync/internal/presence"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/transfer"
	"github.com/congo-pay/walletsync/internal/view"
)

// ErrNoLedger is returned by New without a ledger URL or sender.
var ErrNoLedger = errors.New("ledger url is required")

// Options configures an Engine.
type Options struct {
	LedgerURL      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	TransferLock   bool

	// View receives every render; a Dashboard is used when nil.
	View view.Snapshotter
	// Sender replaces the HTTP gateway, mainly in tests.
	Sender   gateway.Sender
	Notifier notification.Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// Engine is the wallet client.
type Engine struct {
	session   *session.Session
	manager   *session.Manager
	scheduler *poll.Scheduler
	presence  *presence.Syncer
	balance   *balance.Syncer
	initiator *transfer.Initiator
	view      view.Snapshotter
	logger    *slog.Logger

	cancel context.CancelFunc
}

// New wires the engine. Polling starts on the first successful login.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	sender := opts.Sender
	if sender == nil {
		if opts.LedgerURL == "" {
			return nil, ErrNoLedger
		}
		sender = gateway.New(opts.LedgerURL, gateway.Options{
			Timeout: opts.RequestTimeout,
			Logger:  logger.With(slog.String("component", "gateway")),
			Metrics: opts.Metrics,
		})
	}
	v := opts.View
	if v == nil {
		v = view.NewDashboard(nil)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := session.New()
	e := &Engine{
		session:   s,
		scheduler: poll.NewScheduler(logger.With(slog.String("component", "poll")), opts.Metrics),
		presence:  presence.NewSyncer(s, sender, v, logger.With(slog.String("component", "presence"))),
		balance:   balance.NewSyncer(s, sender, v, logger.With(slog.String("component", "balance")), opts.Metrics),
		initiator: transfer.NewInitiator(s, sender, v, transfer.Options{
			Lock:     opts.TransferLock,
			Notifier: notifier,
			Logger:   logger.With(slog.String("component", "transfer")),
			Metrics:  opts.Metrics,
		}),
		view:   v,
		logger: logger,
		cancel: cancel,
	}
	e.manager = session.NewManager(s, sender, v, e.scheduler, session.ManagerOptions{
		Interval:    opts.PollInterval,
		Tick:        e.Refresh,
		BaseContext: baseCtx,
		Logger:      logger.With(slog.String("component", "session")),
	})
	return e, nil
}

// Refresh fires one presence and one balance refresh without waiting for either.
func (e *Engine) Refresh(ctx context.Context) {
	e.presence.Refresh(ctx)
	e.balance.Refresh(ctx)
}

// Login authenticates walletID.
func (e *Engine) Login(ctx context.Context, walletID string) error {
	return e.manager.Login(ctx, walletID)
}

// Signup creates a wallet for username and logs it in.
func (e *Engine) Signup(ctx context.Context, username string) error {
	return e.manager.Signup(ctx, username)
}

// Logout ends the active session.
func (e *Engine) Logout(ctx context.Context) error {
	return e.manager.Logout(ctx)
}

// Transfer sends amount to receiverID. A nil amount prompts for one.
func (e *Engine) Transfer(ctx context.Context, receiverID string, amount *string) (transfer.Result, error) {
	if amount == nil {
		return e.initiator.InitiateWithPrompt(ctx, receiverID)
	}
	return e.initiator.Initiate(ctx, receiverID, amount)
}

// TransferState reports whether a transfer is awaiting its response.
func (e *Engine) TransferState() transfer.State {
	return e.initiator.State()
}

// Session returns a copy of the session.
func (e *Engine) Session() session.Info {
	return e.session.Info()
}

// Snapshot returns what the view currently shows.
func (e *Engine) Snapshot() view.Snapshot {
	return e.view.Snapshot()
}

// ActivePolls counts running poll loops; at most one while a session is active.
func (e *Engine) ActivePolls() int {
	return e.scheduler.Active()
}

// Shutdown stops polling and abandons in-flight refreshes. The ledger is not told.
func (e *Engine) Shutdown() {
	e.manager.Shutdown()
	e.cancel()
	e.logger.Info("engine stopped")
}
