package session

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/poll"
)

// State is the lifecycle position of the session.
type State int

const (
	Anonymous State = iota
	Authenticating
	Active
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	default:
		return "anonymous"
	}
}

// Ticket is handed out when a balance-affecting request is issued. Its
// response may only be applied if no newer ticket was applied first and the
// session it was issued in is still the current one.
type Ticket struct {
	epoch uint64
	seq   uint64
}

// Info is a point-in-time copy of the session.
type Info struct {
	State    State           `json:"-"`
	Status   string          `json:"state"`
	WalletID string          `json:"wallet_id,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
	Polling  bool            `json:"polling"`
}

// Session is the single authenticated wallet context of the process. Only
// Manager moves it between states; syncers and the transfer initiator read
// it and write the balance through tickets.
type Session struct {
	mu       sync.RWMutex
	state    State
	walletID string
	balance  decimal.Decimal
	poll     *poll.Handle

	// epoch changes on every entry into and exit from Active.
	epoch   uint64
	issued  uint64
	applied uint64
}

// New returns an anonymous session.
func New() *Session {
	return &Session{}
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WalletID returns the active wallet id; ok is false unless Active.
func (s *Session) WalletID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active {
		return "", false
	}
	return s.walletID, true
}

// Balance returns the cached balance.
func (s *Session) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Info returns a copy of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		State:    s.state,
		Status:   s.state.String(),
		WalletID: s.walletID,
		Balance:  s.balance,
		Polling:  s.poll != nil && !s.poll.Stopped(),
	}
}

// Epoch identifies the current Active period.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Current reports whether the session is still Active in epoch.
func (s *Session) Current(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Active && s.epoch == epoch
}

// Issue hands out the next balance ticket together with the wallet id to
// use for the request. ok is false when there is no active session.
func (s *Session) Issue() (t Ticket, walletID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return Ticket{}, "", false
	}
	s.issued++
	return Ticket{epoch: s.epoch, seq: s.issued}, s.walletID, true
}

// ApplyBalance stores balance if t is still relevant and newer than every
// ticket applied so far. It reports whether the write happened. render, when
// non-nil, runs under the session lock after a successful write so displays
// observe balances in the same order as the session; it must not call back
// into the session.
func (s *Session) ApplyBalance(t Ticket, balance decimal.Decimal, render func(decimal.Decimal)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active || t.epoch != s.epoch || t.seq <= s.applied {
		return false
	}
	s.applied = t.seq
	s.balance = balance
	if render != nil {
		render(balance)
	}
	return true
}

// ApplyPresence runs render only if the session is still Active in epoch.
// render runs under the session lock, so a logout either happens before it
// and suppresses it or waits for it and clears what it drew. It must not call
// back into the session.
func (s *Session) ApplyPresence(epoch uint64, render func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active || s.epoch != epoch {
		return false
	}
	render()
	return true
}

func (s *Session) beginAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Anonymous {
		return false
	}
	s.state = Authenticating
	return true
}

func (s *Session) abortAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		s.state = Anonymous
	}
}

func (s *Session) activate(walletID string, balance decimal.Decimal) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Active
	s.walletID = walletID
	s.balance = balance
	s.epoch++
	s.issued, s.applied = 0, 0
	return s.epoch
}

// attachPoll records h only if the session is still Active in epoch, which
// keeps poll != nil implying walletID != "".
func (s *Session) attachPoll(epoch uint64, h *poll.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active || s.epoch != epoch {
		return false
	}
	s.poll = h
	return true
}

// terminate returns the session to Anonymous and hands back the poll handle
// for the caller to stop.
func (s *Session) terminate(epoch uint64) (*poll.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active || s.epoch != epoch {
		return nil, false
	}
	h := s.poll
	s.state = Anonymous
	s.walletID = ""
	s.balance = decimal.Zero
	s.poll = nil
	s.epoch++
	return h, true
}

// Active returns the wallet id and epoch of the active session in one read.
func (s *Session) Active() (walletID string, epoch uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active {
		return "", 0, false
	}
	return s.walletID, s.epoch, true
}
