package view

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const maxNotices = 20

// Notice is a failure message surfaced to the user.
type Notice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is a copy of everything currently rendered.
type Snapshot struct {
	Screen      string          `json:"screen"`
	WalletID    string          `json:"wallet_id,omitempty"`
	WalletText  string          `json:"wallet_text,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	BalanceText string          `json:"balance_text,omitempty"`
	Peers       []PeerUser      `json:"peers"`
	Notices     []Notice        `json:"notices,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PromptFunc asks the user for a transfer amount.
type PromptFunc func() (string, bool)

// Dashboard is a headless, concurrency-safe View that keeps the rendered
// state in memory for other surfaces to read.
type Dashboard struct {
	prompt PromptFunc

	mu    sync.RWMutex
	state Snapshot
}

// NewDashboard starts on the login screen. prompt may be nil, in which case
// every prompt is treated as cancelled.
func NewDashboard(prompt PromptFunc) *Dashboard {
	return &Dashboard{
		prompt: prompt,
		state:  Snapshot{Screen: ScreenLogin, Peers: []PeerUser{}, UpdatedAt: time.Now().UTC()},
	}
}

// ShowLoginView switches to the login screen and clears the wallet fields.
func (d *Dashboard) ShowLoginView() {
	d.update(func(s *Snapshot) {
		s.Screen = ScreenLogin
		s.WalletID, s.WalletText = "", ""
		s.Balance, s.BalanceText = decimal.Zero, ""
	})
}

// ShowDashboardView switches to the dashboard screen.
func (d *Dashboard) ShowDashboardView() {
	d.update(func(s *Snapshot) { s.Screen = ScreenDashboard })
}

// RenderPresenceList replaces the peer list with a copy of peers.
func (d *Dashboard) RenderPresenceList(peers []PeerUser) {
	list := make([]PeerUser, len(peers))
	copy(list, peers)
	d.update(func(s *Snapshot) { s.Peers = list })
}

// RenderBalance shows balance as "CC <amount>".
func (d *Dashboard) RenderBalance(balance decimal.Decimal) {
	d.update(func(s *Snapshot) {
		s.Balance = balance
		s.BalanceText = BalanceText(balance)
	})
}

// RenderWalletID shows walletID as "Wallet ID: <id>".
func (d *Dashboard) RenderWalletID(walletID string) {
	d.update(func(s *Snapshot) {
		s.WalletID = walletID
		s.WalletText = WalletText(walletID)
	})
}

// NotifyFailure appends a notice, keeping the most recent ones.
func (d *Dashboard) NotifyFailure(message string) {
	d.update(func(s *Snapshot) {
		s.Notices = append(s.Notices, Notice{Message: message, At: time.Now().UTC()})
		if len(s.Notices) > maxNotices {
			s.Notices = s.Notices[len(s.Notices)-maxNotices:]
		}
	})
}

// PromptForAmount asks the configured prompt; without one it reports cancelled.
func (d *Dashboard) PromptForAmount() (string, bool) {
	if d.prompt == nil {
		return "", false
	}
	return d.prompt()
}

// Snapshot returns a deep copy of the rendered state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := d.state
	out.Peers = append([]PeerUser(nil), d.state.Peers...)
	if out.Peers == nil {
		out.Peers = []PeerUser{}
	}
	out.Notices = append([]Notice(nil), d.state.Notices...)
	return out
}

func (d *Dashboard) update(fn func(*Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
	d.state.UpdatedAt = time.Now().UTC()
}
