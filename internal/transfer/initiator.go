package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
	"github.com/congo-pay/walletsync/internal/notification"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/view"
)

var (
	// ErrInvalidAmount is returned when the amount is missing or not a number.
	ErrInvalidAmount = errors.New("amount must be a decimal number")
	// ErrTransferInFlight is returned while another transfer awaits its response.
	ErrTransferInFlight = errors.New("a transfer is already in flight")
)

// FailedNotice is shown for every transfer the ledger does not confirm.
const FailedNotice = "Transaction Failed"

// DefaultAmount is offered when prompting for an amount.
const DefaultAmount = "1.0"

// State is the lifecycle of one transfer initiation.
type State int

const (
	Idle State = iota
	Submitted
	Confirmed
	Rejected
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "idle"
	}
}

// MarshalText reports the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes how an initiation ended.
type Result struct {
	State         State           `json:"state"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	// Applied is false when a newer balance had already been applied.
	Applied bool `json:"applied"`
}

type transactInfo struct {
	TransactionID string          `json:"transaction_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// Options configures an Initiator.
type Options struct {
	// Lock rejects a second transfer while one is in flight.
	Lock     bool
	Notifier notification.Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// Initiator submits transfers from the active wallet.
type Initiator struct {
	session  *session.Session
	sender   gateway.Sender
	view     view.View
	lock     bool
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Collector

	inflight atomic.Bool
	pending  atomic.Int32
}

// NewInitiator builds an initiator.
func NewInitiator(s *session.Session, sender gateway.Sender, v view.View, opts Options) *Initiator {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Initiator{
		session:  s,
		sender:   sender,
		view:     v,
		lock:     opts.Lock,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// State is Submitted while any transfer awaits its response.
func (i *Initiator) State() State {
	if i.pending.Load() > 0 {
		return Submitted
	}
	return Idle
}

// InitiateWithPrompt asks the view for the amount, then initiates.
func (i *Initiator) InitiateWithPrompt(ctx context.Context, receiverID string) (Result, error) {
	var amount *string
	if entered, ok := i.view.PromptForAmount(); ok {
		amount = &entered
	}
	return i.Initiate(ctx, receiverID, amount)
}

// Initiate sends amount from the active wallet to receiverID. A nil amount
// means the prompt was cancelled. Validation failures return before any
// request is made and without a notice.
func (i *Initiator) Initiate(ctx context.Context, receiverID string, amount *string) (Result, error) {
	if amount == nil {
		return Result{}, ErrInvalidAmount
	}
	raw := strings.TrimSpace(*amount)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return Result{}, ErrInvalidAmount
	}

	if i.lock {
		if !i.inflight.CompareAndSwap(false, true) {
			return Result{}, ErrTransferInFlight
		}
		defer i.inflight.Store(false)
	}
	i.pending.Add(1)
	defer i.pending.Add(-1)

	ticket, walletID, ok := i.session.Issue()
	if !ok {
		return Result{}, session.ErrNoSession
	}

	env, err := gateway.Call(ctx, i.sender, gateway.OpTransact, gateway.Params{
		"sender":   walletID,
		"receiver": receiverID,
		"amount":   raw,
	})
	if err == nil {
		err = env.Err(gateway.OpTransact)
	}
	if err != nil {
		return i.reject(walletID, receiverID, err)
	}

	var info transactInfo
	if err := env.Decode(&info); err != nil {
		return i.reject(walletID, receiverID, &gateway.TransportError{Operation: gateway.OpTransact, Err: err})
	}

	res := Result{State: Confirmed, TransactionID: info.TransactionID, Balance: info.Balance}
	res.Applied = i.session.ApplyBalance(ticket, info.Balance, i.view.RenderBalance)
	if !res.Applied {
		i.metrics.ObserveStaleBalance("transfer")
	}
	i.metrics.ObserveTransfer(Confirmed.String())
	i.logger.Info("transfer confirmed",
		slog.String("wallet_id", walletID),
		slog.String("receiver", receiverID),
		slog.String("transaction_id", info.TransactionID),
	)

	if i.notifier != nil {
		err := i.notifier.TransferConfirmed(ctx, notification.Transfer{
			TransactionID: info.TransactionID,
			SenderID:      walletID,
			ReceiverID:    receiverID,
			Amount:        value,
			Balance:       info.Balance,
			ConfirmedAt:   time.Now().UTC(),
		})
		if err != nil {
			i.logger.Warn("transfer notification failed", slog.String("transaction_id", info.TransactionID), slog.Any("error", err))
		}
	}
	return res, nil
}

func (i *Initiator) reject(walletID, receiverID string, err error) (Result, error) {
	i.metrics.ObserveTransfer(Rejected.String())
	i.logger.Info("transfer failed",
		slog.String("wallet_id", walletID),
		slog.String("receiver", receiverID),
		slog.Any("error", err),
	)
	i.view.NotifyFailure(FailedNotice)
	return Result{State: Rejected}, err
}
