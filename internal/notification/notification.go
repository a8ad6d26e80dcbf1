package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// KindTransferConfirmed marks a transfer the ledger accepted.
	KindTransferConfirmed = "transfer_confirmed"
)

// Transfer describes a confirmed transfer.
type Transfer struct {
	TransactionID string
	SenderID      string
	ReceiverID    string
	Amount        decimal.Decimal
	Balance       decimal.Decimal
	ConfirmedAt   time.Time
}

// Notifier receives the transaction id of every confirmed transfer.
type Notifier interface {
	TransferConfirmed(ctx context.Context, transfer Transfer) error
}

// LoggerNotifier writes confirmations to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// TransferConfirmed logs the transfer.
func (n *LoggerNotifier) TransferConfirmed(_ context.Context, t Transfer) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", KindTransferConfirmed),
		slog.String("transaction_id", t.TransactionID),
		slog.String("sender", t.SenderID),
		slog.String("receiver", t.ReceiverID),
		slog.String("amount", t.Amount.String()),
	)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

// TransferConfirmed implements Notifier.
func (f Fanout) TransferConfirmed(ctx context.Context, t Transfer) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.TransferConfirmed(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
