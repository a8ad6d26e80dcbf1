package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/ledgertest"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/transfer"
	"github.com/congo-pay/walletsync/internal/view"
)

func startLedger(t *testing.T) *ledgertest.Server {
	t.Helper()
	srv, err := ledgertest.Start()
	if err != nil {
		t.Fatalf("start ledger: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newEngine(t *testing.T, srv *ledgertest.Server, interval time.Duration) *Engine {
	t.Helper()
	e, err := New(Options{
		LedgerURL:      srv.URL(),
		PollInterval:   interval,
		RequestTimeout: 2 * time.Second,
		TransferLock:   true,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return e
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresLedger(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoLedger) {
		t.Fatalf("expected ErrNoLedger, got %v", err)
	}
}

func TestLoginShowsDashboardAndPeers(t *testing.T) {
	srv := startLedger(t)
	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(10))
	srv.Ledger.SeedWallet("def", "bob", decimal.NewFromInt(5))
	if _, err := srv.Ledger.Login("def"); err != nil {
		t.Fatalf("login def: %v", err)
	}

	e := newEngine(t, srv, time.Hour)
	if err := e.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}

	snap := e.Snapshot()
	if snap.Screen != view.ScreenDashboard || snap.BalanceText != "CC 10" || snap.WalletText != "Wallet ID: abc" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if e.ActivePolls() != 1 {
		t.Fatalf("expected one poll loop, got %d", e.ActivePolls())
	}

	eventually(t, "presence list", func() bool {
		peers := e.Snapshot().Peers
		return len(peers) == 1 && peers[0].ID == "def" && peers[0].Name == "bob"
	})
	eventually(t, "immediate fetch", func() bool { return srv.Calls(gateway.OpFetch) >= 1 })
}

func TestSignupThroughLedger(t *testing.T) {
	srv := startLedger(t)
	e := newEngine(t, srv, time.Hour)

	if err := e.Signup(context.Background(), "carol"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	info := e.Session()
	if info.State != session.Active || !info.Balance.Equal(ledgertest.SignupGrant) {
		t.Fatalf("unexpected session %+v", info)
	}
	if !srv.Ledger.Genesis().Equal(ledgertest.GenesisAmount.Sub(ledgertest.SignupGrant)) {
		t.Fatalf("signup should draw from genesis, got %s", srv.Ledger.Genesis())
	}
}

func TestUnknownWalletStaysOnLogin(t *testing.T) {
	srv := startLedger(t)
	e := newEngine(t, srv, time.Hour)

	err := e.Login(context.Background(), "ghost")
	var appErr *gateway.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected application error, got %v", err)
	}
	snap := e.Snapshot()
	if snap.Screen != view.ScreenLogin || len(snap.Notices) != 1 || snap.Notices[0].Message != appErr.Message {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if e.ActivePolls() != 0 {
		t.Fatalf("failed login must not poll")
	}
}

func TestPollingRepeatsAndLogoutStopsIt(t *testing.T) {
	srv := startLedger(t)
	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(10))
	e := newEngine(t, srv, 20*time.Millisecond)

	if err := e.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}
	eventually(t, "repeated ticks", func() bool { return srv.Calls(gateway.OpList) >= 3 })

	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(12))
	eventually(t, "balance refresh", func() bool { return e.Snapshot().BalanceText == "CC 12" })

	if err := e.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if e.ActivePolls() != 0 {
		t.Fatalf("expected polling stopped")
	}
	if snap := e.Snapshot(); snap.Screen != view.ScreenLogin || len(snap.Peers) != 0 {
		t.Fatalf("unexpected snapshot after logout %+v", snap)
	}

	// in-flight refreshes may still land; after they settle nothing new is sent
	time.Sleep(100 * time.Millisecond)
	lists, fetches := srv.Calls(gateway.OpList), srv.Calls(gateway.OpFetch)
	time.Sleep(100 * time.Millisecond)
	if srv.Calls(gateway.OpList) != lists || srv.Calls(gateway.OpFetch) != fetches {
		t.Fatalf("refreshes continued after logout")
	}
}

func TestTransferEndToEnd(t *testing.T) {
	srv := startLedger(t)
	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(10))
	srv.Ledger.SeedWallet("def", "bob", decimal.NewFromInt(0))
	e := newEngine(t, srv, time.Hour)
	// park the first poll so it cannot report the pre-transfer balance
	release := srv.Hold(gateway.OpFetch)
	defer release()

	if err := e.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}
	amount := "2.5"
	res, err := e.Transfer(context.Background(), "def", &amount)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.State != transfer.Confirmed || res.TransactionID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := e.Snapshot().BalanceText; got != "CC 7.5" {
		t.Fatalf("expected CC 7.5, got %q", got)
	}
	if bal, _ := srv.Ledger.Balance("def"); !bal.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("receiver should hold 2.5, got %s", bal)
	}

	tooMuch := "100"
	if _, err := e.Transfer(context.Background(), "def", &tooMuch); err == nil {
		t.Fatalf("expected low balance rejection")
	}
	snap := e.Snapshot()
	if snap.BalanceText != "CC 7.5" {
		t.Fatalf("rejected transfer changed balance to %q", snap.BalanceText)
	}
	if n := len(snap.Notices); n == 0 || snap.Notices[n-1].Message != transfer.FailedNotice {
		t.Fatalf("expected failure notice, got %+v", snap.Notices)
	}
}

func TestTransferInvalidAmountNeverReachesLedger(t *testing.T) {
	srv := startLedger(t)
	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(10))
	e := newEngine(t, srv, time.Hour)
	if err := e.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}

	amount := "abc"
	if _, err := e.Transfer(context.Background(), "def", &amount); !errors.Is(err, transfer.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if srv.Calls(gateway.OpTransact) != 0 {
		t.Fatalf("invalid amount reached the ledger")
	}
}

func TestShutdownStopsPolling(t *testing.T) {
	srv := startLedger(t)
	srv.Ledger.SeedWallet("abc", "alice", decimal.NewFromInt(10))
	e := newEngine(t, srv, 20*time.Millisecond)
	if err := e.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}

	e.Shutdown()
	if e.ActivePolls() != 0 {
		t.Fatalf("expected no poll loops after shutdown")
	}
	if e.Session().State != session.Anonymous {
		t.Fatalf("expected anonymous after shutdown")
	}
}
