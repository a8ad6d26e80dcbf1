package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/poll"
	"github.com/congo-pay/walletsync/internal/view"
)

var (
	// ErrNoSession is returned by operations that need an active wallet.
	ErrNoSession = errors.New("no active session")
	// ErrSessionBusy is returned by login/signup unless the session is anonymous.
	ErrSessionBusy = errors.New("session already active or authenticating")
	// ErrBlankInput is returned for an empty wallet id or username.
	ErrBlankInput = errors.New("wallet id or username is blank")
)

// UnreachableNotice is shown when a user-initiated call gets no response.
const UnreachableNotice = "Unable to reach the ledger, please try again."

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Interval between refresh ticks; poll.DefaultInterval when zero.
	Interval time.Duration
	// Tick runs one refresh cycle while the session is active.
	Tick poll.TickFunc
	// BaseContext bounds the lifetime of polling; it outlives individual
	// login requests. Defaults to context.Background().
	BaseContext context.Context
	Logger      *slog.Logger
}

// Manager owns the session lifecycle: Anonymous -> Authenticating -> Active -> Anonymous.
type Manager struct {
	session   *Session
	sender    gateway.Sender
	view      view.View
	scheduler *poll.Scheduler
	interval  time.Duration
	tick      poll.TickFunc
	baseCtx   context.Context
	logger    *slog.Logger
}

// NewManager builds a manager for s.
func NewManager(s *Session, sender gateway.Sender, v view.View, scheduler *poll.Scheduler, opts ManagerOptions) *Manager {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Tick == nil {
		opts.Tick = func(context.Context) {}
	}
	return &Manager{
		session:   s,
		sender:    sender,
		view:      v,
		scheduler: scheduler,
		interval:  opts.Interval,
		tick:      opts.Tick,
		baseCtx:   opts.BaseContext,
		logger:    opts.Logger,
	}
}

// Session exposes the managed session for read access.
func (m *Manager) Session() *Session {
	return m.session
}

type walletInfo struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Login authenticates an existing wallet.
func (m *Manager) Login(ctx context.Context, walletID string) error {
	return m.authenticate(ctx, gateway.OpLogin, gateway.Params{"wallet_id": walletID}, walletID)
}

// Signup creates a wallet for username and authenticates it.
func (m *Manager) Signup(ctx context.Context, username string) error {
	return m.authenticate(ctx, gateway.OpAdd, gateway.Params{"username": username}, username)
}

func (m *Manager) authenticate(ctx context.Context, op string, params gateway.Params, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrBlankInput
	}
	if !m.session.beginAuth() {
		return ErrSessionBusy
	}

	env, err := gateway.Call(ctx, m.sender, op, params)
	if err != nil {
		m.session.abortAuth()
		m.logger.Warn("authentication unreachable", slog.String("operation", op), slog.Any("error", err))
		m.view.NotifyFailure(UnreachableNotice)
		return err
	}
	if err := env.Err(op); err != nil {
		m.session.abortAuth()
		m.logger.Info("authentication rejected", slog.String("operation", op), slog.Int("code", env.Code))
		m.view.NotifyFailure(env.Message)
		return err
	}

	var info walletInfo
	if err := env.Decode(&info); err != nil || info.ID == "" {
		m.session.abortAuth()
		m.logger.Warn("authentication response malformed", slog.String("operation", op), slog.Any("error", err))
		m.view.NotifyFailure(UnreachableNotice)
		if err == nil {
			err = errors.New("missing wallet id")
		}
		return &gateway.TransportError{Operation: op, Err: fmt.Errorf("malformed wallet info: %w", err)}
	}

	epoch := m.session.activate(info.ID, info.Balance)
	m.view.RenderWalletID(info.ID)
	m.view.RenderBalance(info.Balance)
	m.view.ShowDashboardView()

	handle := m.scheduler.Start(m.baseCtx, m.interval, m.tick)
	if !m.session.attachPoll(epoch, handle) {
		// logged out between activation and here
		handle.Stop()
	}

	m.logger.Info("session active", slog.String("operation", op), slog.String("wallet_id", info.ID))
	return nil
}

// Logout ends the active session. The session is only torn down once the
// ledger confirms; otherwise it stays active and polling continues.
func (m *Manager) Logout(ctx context.Context) error {
	walletID, epoch, ok := m.session.Active()
	if !ok {
		return ErrNoSession
	}

	env, err := gateway.Call(ctx, m.sender, gateway.OpLogout, gateway.Params{"wallet_id": walletID})
	if err != nil {
		m.logger.Warn("logout unreachable", slog.String("wallet_id", walletID), slog.Any("error", err))
		m.view.NotifyFailure(UnreachableNotice)
		return err
	}
	if err := env.Err(gateway.OpLogout); err != nil {
		m.logger.Info("logout rejected", slog.String("wallet_id", walletID), slog.Int("code", env.Code))
		m.view.NotifyFailure(env.Message)
		return err
	}

	handle, ok := m.session.terminate(epoch)
	if !ok {
		return ErrNoSession
	}
	handle.Stop()

	m.view.RenderPresenceList(nil)
	m.view.ShowLoginView()
	m.logger.Info("session ended", slog.String("wallet_id", walletID))
	return nil
}

// Shutdown stops polling without talking to the ledger. Used on process exit.
func (m *Manager) Shutdown() {
	_, epoch, ok := m.session.Active()
	if !ok {
		return
	}
	if handle, ok := m.session.terminate(epoch); ok {
		handle.Stop()
	}
}
