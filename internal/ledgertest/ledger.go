package ledgertest

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrServerFull mirrors the ledger refusing signups once the genesis pool is drained.
	ErrServerFull = errors.New("Server full cannot add new users.")
	// ErrUnknownWallet is returned for login with an unregistered wallet id.
	ErrUnknownWallet = errors.New("User does not exists with the name")
	// ErrNotLoggedIn is returned by fetch for wallets outside the online set.
	ErrNotLoggedIn = errors.New("Cannot find wallet info in logged in users.")
	// ErrCannotLogout is returned by logout for wallets outside the online set.
	ErrCannotLogout = errors.New("User cannot be logged out")
	// ErrLowBalance is returned when the sender cannot cover the amount.
	ErrLowBalance = errors.New("Low balance, cannot proceed with transaction")
	// ErrInvalidAmount is returned when the amount is not a positive number.
	ErrInvalidAmount = errors.New("Invalid amount")
	// ErrUnknownReceiver is returned when the receiver wallet does not exist.
	ErrUnknownReceiver = errors.New("Receiver wallet not found")
)

var (
	// GenesisAmount seeds the pool that funds new signups.
	GenesisAmount = decimal.NewFromInt(1000)
	// SignupGrant is credited to every new wallet.
	SignupGrant = decimal.NewFromInt(50)
)

// Account is a wallet known to the fake ledger.
type Account struct {
	ID      string
	Name    string
	Balance decimal.Decimal
}

// Ledger is a concurrency-safe in-memory stand-in for the remote accounting.
type Ledger struct {
	mu       sync.Mutex
	genesis  decimal.Decimal
	accounts map[string]*Account
	online   []string
}

// NewLedger creates a ledger with a full genesis pool and no wallets.
func NewLedger() *Ledger {
	return &Ledger{
		genesis:  GenesisAmount,
		accounts: make(map[string]*Account),
	}
}

// Add creates a wallet for username, funds it from the genesis pool and marks it online.
func (l *Ledger) Add(username string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.genesis.LessThan(SignupGrant) {
		return Account{}, ErrServerFull
	}
	l.genesis = l.genesis.Sub(SignupGrant)

	acc := &Account{ID: uuid.NewString(), Name: username, Balance: SignupGrant}
	l.accounts[acc.ID] = acc
	l.setOnline(acc.ID)
	return *acc, nil
}

// Seed registers an offline wallet with an explicit balance, bypassing the genesis pool.
func (l *Ledger) Seed(name string, balance decimal.Decimal) Account {
	return l.SeedWallet(uuid.NewString(), name, balance)
}

// SeedWallet is Seed with a caller-chosen wallet id. An existing wallet is replaced.
func (l *Ledger) SeedWallet(id, name string, balance decimal.Decimal) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := &Account{ID: id, Name: name, Balance: balance}
	l.accounts[id] = acc
	return *acc
}

// Login marks an existing wallet online.
func (l *Ledger) Login(id string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[id]
	if !ok {
		return Account{}, ErrUnknownWallet
	}
	l.setOnline(id)
	return *acc, nil
}

// Fetch returns an online wallet.
func (l *Ledger) Fetch(id string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.isOnline(id) {
		return Account{}, ErrNotLoggedIn
	}
	return *l.accounts[id], nil
}

// Logout removes a wallet from the online set.
func (l *Ledger) Logout(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, online := range l.online {
		if online == id {
			l.online = append(l.online[:i], l.online[i+1:]...)
			return nil
		}
	}
	return ErrCannotLogout
}

// Online lists the online wallets in login order.
func (l *Ledger) Online() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Account, 0, len(l.online))
	for _, id := range l.online {
		out = append(out, *l.accounts[id])
	}
	return out
}

// Transact moves amount from an online sender to any known receiver and
// returns the sender's new balance.
func (l *Ledger) Transact(sender, receiver, amount string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil || !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOnline(sender) {
		return decimal.Zero, ErrNotLoggedIn
	}
	to, ok := l.accounts[receiver]
	if !ok {
		return decimal.Zero, ErrUnknownReceiver
	}
	from := l.accounts[sender]
	if from.Balance.LessThan(value) {
		return decimal.Zero, ErrLowBalance
	}

	from.Balance = from.Balance.Sub(value)
	to.Balance = to.Balance.Add(value)
	return from.Balance, nil
}

// Balance reports a wallet's balance regardless of online state.
func (l *Ledger) Balance(id string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[id]
	if !ok {
		return decimal.Zero, false
	}
	return acc.Balance, true
}

// Genesis reports what is left in the signup pool.
func (l *Ledger) Genesis() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.genesis
}

func (l *Ledger) setOnline(id string) {
	if !l.isOnline(id) {
		l.online = append(l.online, id)
	}
}

func (l *Ledger) isOnline(id string) bool {
	for _, online := range l.online {
		if online == id {
			return true
		}
	}
	return false
}
