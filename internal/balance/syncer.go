package balance

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/view"
)

type fetchInfo struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Syncer keeps the session balance fresh. Like presence, failures stay silent.
type Syncer struct {
	session *session.Session
	sender  gateway.Sender
	view    view.View
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewSyncer builds a balance syncer. logger and m may be nil.
func NewSyncer(s *session.Session, sender gateway.Sender, v view.View, logger *slog.Logger, m *metrics.Collector) *Syncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{session: s, sender: sender, view: v, logger: logger, metrics: m}
}

// Refresh issues a fetch request if a session is active and reports whether it did.
func (b *Syncer) Refresh(ctx context.Context) bool {
	ticket, walletID, ok := b.session.Issue()
	if !ok {
		return false
	}
	b.sender.Send(ctx, gateway.OpFetch, gateway.Params{"wallet_id": walletID}, func(env gateway.Envelope, err error) {
		b.apply(ticket, env, err)
	})
	return true
}

func (b *Syncer) apply(ticket session.Ticket, env gateway.Envelope, err error) {
	if err == nil {
		err = env.Err(gateway.OpFetch)
	}
	if err != nil {
		b.logger.Debug("balance refresh dropped", slog.Any("error", err))
		return
	}

	var info fetchInfo
	if err := env.Decode(&info); err != nil {
		b.logger.Debug("balance refresh undecodable", slog.Any("error", err))
		return
	}
	if !b.session.ApplyBalance(ticket, info.Balance, b.view.RenderBalance) {
		b.metrics.ObserveStaleBalance("poll")
		b.logger.Debug("stale balance discarded", slog.String("balance", info.Balance.String()))
	}
}
