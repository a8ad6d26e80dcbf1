package balance

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/gateway/gatewaytest"
	"github.com/congo-pay/walletsync/internal/metrics"
	"github.com/congo-pay/walletsync/internal/poll"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/view"
)

func login(t *testing.T, sender *gatewaytest.Sender, d *view.Dashboard) *session.Session {
	t.Helper()
	sender.On(gateway.OpLogin, gatewaytest.Reply(gatewaytest.OK(map[string]any{"id": "abc", "balance": 10})))
	s := session.New()
	m := session.NewManager(s, sender, d, poll.NewScheduler(nil, nil), session.ManagerOptions{Interval: time.Hour})
	t.Cleanup(m.Shutdown)
	if err := m.Login(context.Background(), "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return s
}

func balanceOf(v int64) gatewaytest.Responder {
	return gatewaytest.Reply(gatewaytest.OK(map[string]any{"id": "abc", "balance": v}))
}

func TestRefreshUpdatesBalance(t *testing.T) {
	sender := gatewaytest.New()
	d := view.NewDashboard(nil)
	s := login(t, sender, d)
	sender.On(gateway.OpFetch, balanceOf(42))

	if !NewSyncer(s, sender, d, nil, nil).Refresh(context.Background()) {
		t.Fatalf("expected refresh to send")
	}
	if !s.Balance().Equal(decimal.NewFromInt(42)) {
		t.Fatalf("expected balance 42, got %s", s.Balance())
	}
	if got := d.Snapshot().BalanceText; got != "CC 42" {
		t.Fatalf("expected CC 42, got %q", got)
	}
	calls := sender.Calls(gateway.OpFetch)
	if len(calls) != 1 || calls[0].Params["wallet_id"] != "abc" {
		t.Fatalf("unexpected fetch calls %+v", calls)
	}
}

func TestRefreshFailureIsSilent(t *testing.T) {
	sender := gatewaytest.New()
	d := view.NewDashboard(nil)
	s := login(t, sender, d)
	syncer := NewSyncer(s, sender, d, nil, nil)

	sender.On(gateway.OpFetch, gatewaytest.Unreachable(gateway.OpFetch))
	syncer.Refresh(context.Background())
	sender.On(gateway.OpFetch, gatewaytest.Reply(gatewaytest.Fail(500, "Wallet not found")))
	syncer.Refresh(context.Background())

	if !s.Balance().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("failed refresh must keep balance, got %s", s.Balance())
	}
	snap := d.Snapshot()
	if snap.BalanceText != "CC 10" || len(snap.Notices) != 0 {
		t.Fatalf("unexpected dashboard %+v", snap)
	}
}

func TestOutOfOrderResponsesKeepNewest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	sender := gatewaytest.New()
	d := view.NewDashboard(nil)
	s := login(t, sender, d)
	syncer := NewSyncer(s, sender, d, nil, m)

	sender.Defer(gateway.OpFetch, true)
	syncer.Refresh(context.Background())
	syncer.Refresh(context.Background())
	calls := sender.Calls(gateway.OpFetch)
	if len(calls) != 2 {
		t.Fatalf("expected two fetches, got %d", len(calls))
	}

	calls[1].Resolve(gatewaytest.OK(map[string]any{"id": "abc", "balance": 5}), nil)
	calls[0].Resolve(gatewaytest.OK(map[string]any{"id": "abc", "balance": 9}), nil)

	if !s.Balance().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("older response overwrote newer balance: %s", s.Balance())
	}
	if got := d.Snapshot().BalanceText; got != "CC 5" {
		t.Fatalf("expected CC 5, got %q", got)
	}
	if got := counterValue(t, reg, "walletsync_balance_writes_discarded_total"); got != 1 {
		t.Fatalf("expected one stale balance, got %v", got)
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	sender := gatewaytest.New()
	if NewSyncer(session.New(), sender, view.NewDashboard(nil), nil, nil).Refresh(context.Background()) {
		t.Fatalf("expected no refresh without a session")
	}
	if sender.Count(gateway.OpFetch) != 0 {
		t.Fatalf("expected no fetch calls")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
