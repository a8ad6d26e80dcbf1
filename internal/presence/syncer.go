package presence

import (
	"context"
	"log/slog"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/view"
)

type listInfo struct {
	Users []view.PeerUser `json:"users_list"`
}

// Syncer refreshes the online peer list. Failures are never surfaced to the
// user; the previous list simply stays on screen.
type Syncer struct {
	session *session.Session
	sender  gateway.Sender
	view    view.View
	logger  *slog.Logger
}

// NewSyncer builds a presence syncer.
func NewSyncer(s *session.Session, sender gateway.Sender, v view.View, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{session: s, sender: sender, view: v, logger: logger}
}

// Refresh issues a list request if a session is active and reports whether it did.
func (p *Syncer) Refresh(ctx context.Context) bool {
	walletID, epoch, ok := p.session.Active()
	if !ok {
		return false
	}
	p.sender.Send(ctx, gateway.OpList, nil, func(env gateway.Envelope, err error) {
		p.apply(walletID, epoch, env, err)
	})
	return true
}

func (p *Syncer) apply(walletID string, epoch uint64, env gateway.Envelope, err error) {
	if err == nil {
		err = env.Err(gateway.OpList)
	}
	if err != nil {
		p.logger.Debug("presence refresh dropped", slog.Any("error", err))
		return
	}

	var info listInfo
	if err := env.Decode(&info); err != nil {
		p.logger.Debug("presence refresh undecodable", slog.Any("error", err))
		return
	}
	peers := Others(info.Users, walletID)
	if !p.session.ApplyPresence(epoch, func() { p.view.RenderPresenceList(peers) }) {
		p.logger.Debug("presence refresh outlived its session")
	}
}

// Others returns a new slice of the users whose id is not self, in order.
func Others(users []view.PeerUser, self string) []view.PeerUser {
	out := make([]view.PeerUser, 0, len(users))
	for _, u := range users {
		if u.ID == self {
			continue
		}
		out = append(out, u)
	}
	return out
}
