package gateway

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/congo-pay/walletsync/internal/ledgertest"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
)

func startLedger(t *testing.T) *ledgertest.Server {
	t.Helper()
	srv, err := ledgertest.Start()
	if err != nil {
		t.Fatalf("start ledger: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestDoDecodesDoubleEncodedResponse(t *testing.T) {
	srv := startLedger(t)
	gw := New(srv.URL(), Options{Logger: logging.Discard()})

	env, err := gw.Do(context.Background(), OpAdd, Params{"username": "alice"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !env.OK() {
		t.Fatalf("expected ok, got %+v", env)
	}
	var info struct {
		ID      string  `json:"id"`
		Balance float64 `json:"balance"`
	}
	if err := env.Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.ID == "" || info.Balance != 50 {
		t.Fatalf("unexpected info %+v", info)
	}

	reqs := srv.Requests()
	if len(reqs) != 1 || reqs[0]["operation"] != OpAdd || reqs[0]["username"] != "alice" {
		t.Fatalf("unexpected form %+v", reqs)
	}
}

func TestDoAcceptsSingleEncoding(t *testing.T) {
	srv := startLedger(t)
	srv.SingleEncoding(true)
	gw := New(srv.URL(), Options{})

	env, err := gw.Do(context.Background(), OpList, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !env.OK() {
		t.Fatalf("expected ok, got %+v", env)
	}
}

func TestDoApplicationFailureIsNotTransportFailure(t *testing.T) {
	srv := startLedger(t)
	gw := New(srv.URL(), Options{})

	env, err := gw.Do(context.Background(), OpLogin, Params{"wallet_id": "missing"})
	if err != nil {
		t.Fatalf("application failure must not be a transport error: %v", err)
	}
	if env.OK() || env.Message != ledgertest.ErrUnknownWallet.Error() {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestDoOperationFieldCannotBeOverridden(t *testing.T) {
	srv := startLedger(t)
	gw := New(srv.URL(), Options{})

	if _, err := gw.Do(context.Background(), OpList, Params{"operation": "logout"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if srv.Calls(OpList) != 1 || srv.Calls(OpLogout) != 0 {
		t.Fatalf("operation field was overridden: %+v", srv.Requests())
	}
}

func TestDoTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	reg := prometheus.NewRegistry()
	col, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	gw := New("http://"+addr, Options{Metrics: col})

	_, err = gw.Do(context.Background(), OpList, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var tErr *TransportError
	if !errors.As(err, &tErr) || tErr.Operation != OpList {
		t.Fatalf("expected TransportError for list, got %v", err)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	srv := startLedger(t)
	release := srv.Hold(OpList)
	defer release()
	gw := New(srv.URL(), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := gw.Do(ctx, OpList, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSendInvokesContinuationOnce(t *testing.T) {
	srv := startLedger(t)
	gw := New(srv.URL(), Options{})

	calls := make(chan Envelope, 2)
	gw.Send(context.Background(), OpList, nil, func(env Envelope, err error) {
		if err != nil {
			t.Errorf("send: %v", err)
		}
		calls <- env
	})

	select {
	case env := <-calls:
		if !env.OK() {
			t.Fatalf("expected ok list, got %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("continuation never ran")
	}

	select {
	case <-calls:
		t.Fatalf("continuation ran twice")
	case <-time.After(50 * time.Millisecond):
	}
}

type stubSender struct {
	env Envelope
	err error
}

func (s stubSender) Send(_ context.Context, _ string, _ Params, fn Continuation) {
	go fn(s.env, s.err)
}

func TestCallAdaptsSender(t *testing.T) {
	env, err := Call(context.Background(), stubSender{env: Envelope{Code: 200}}, OpFetch, nil)
	if err != nil || !env.OK() {
		t.Fatalf("unexpected result %+v %v", env, err)
	}
}
