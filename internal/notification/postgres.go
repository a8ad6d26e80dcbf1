package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrMissingTransactionID is returned for confirmations without an id.
var ErrMissingTransactionID = errors.New("transaction id is required")

const schema = `CREATE TABLE IF NOT EXISTS confirmed_transfers (
    id UUID PRIMARY KEY,
    transaction_id TEXT NOT NULL UNIQUE,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount NUMERIC NOT NULL,
    balance_after NUMERIC NOT NULL,
    confirmed_at TIMESTAMPTZ NOT NULL
)`

// PostgresRecorder appends confirmed transfers to an audit table. Replays of
// the same transaction id are ignored.
type PostgresRecorder struct {
	db Execer
}

// NewPostgresRecorder constructs a Postgres-backed notifier.
func NewPostgresRecorder(db Execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create confirmed_transfers: %w", err)
	}
	return nil
}

// TransferConfirmed implements Notifier.
func (r *PostgresRecorder) TransferConfirmed(ctx context.Context, t Transfer) error {
	if t.TransactionID == "" {
		return ErrMissingTransactionID
	}
	_, err := r.db.Exec(ctx, `INSERT INTO confirmed_transfers
        (id, transaction_id, sender_id, receiver_id, amount, balance_after, confirmed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (transaction_id) DO NOTHING`,
		uuid.New(), t.TransactionID, t.SenderID, t.ReceiverID, t.Amount.String(), t.Balance.String(), t.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("record transfer %s: %w", t.TransactionID, err)
	}
	return nil
}
