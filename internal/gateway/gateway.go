package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
)

const (
	apiPath         = "/api"
	requestIDHeader = "X-Request-ID"
	operationField  = "operation"
)

// Params carries the operation-specific form fields.
type Params map[string]string

// Continuation receives the outcome of one request. err is non-nil only for
// transport failures; application failures arrive as an Envelope whose code
// is not 200.
type Continuation func(env Envelope, err error)

// Sender is the single entry point for ledger calls.
type Sender interface {
	Send(ctx context.Context, operation string, params Params, fn Continuation)
}

// Options tune a Gateway. Zero values mean no timeout, discard logging and no metrics.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Gateway posts form-encoded operations to the ledger's RPC endpoint.
type Gateway struct {
	endpoint string
	client   *fiber.Client
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New builds a gateway for the ledger reachable at baseURL.
func New(baseURL string, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{
		endpoint: strings.TrimRight(baseURL, "/") + apiPath,
		client:   &fiber.Client{UserAgent: "walletsync"},
		timeout:  opts.Timeout,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Send issues the operation without blocking the caller. fn is invoked exactly
// once, on its own goroutine.
func (g *Gateway) Send(ctx context.Context, operation string, params Params, fn Continuation) {
	go func() {
		env, err := g.Do(ctx, operation, params)
		fn(env, err)
	}()
}

// Do performs the round trip and waits for it. A cancelled context resolves
// as a transport failure; the underlying request is left to finish on its own.
func (g *Gateway) Do(ctx context.Context, operation string, params Params) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		g.metrics.ObserveRequest(operation, metrics.OutcomeTransport)
		return Envelope{}, &TransportError{Operation: operation, Err: err}
	}

	type result struct {
		env Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		env, err := g.roundTrip(operation, params)
		done <- result{env: env, err: err}
	}()

	select {
	case res := <-done:
		return res.env, res.err
	case <-ctx.Done():
		return Envelope{}, &TransportError{Operation: operation, Err: ctx.Err()}
	}
}

func (g *Gateway) roundTrip(operation string, params Params) (Envelope, error) {
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for k, v := range params {
		if k == operationField {
			continue
		}
		args.Set(k, v)
	}
	args.Set(operationField, operation)

	requestID := uuid.NewString()
	agent := g.client.Post(g.endpoint).Set(requestIDHeader, requestID).Form(args)
	if g.timeout > 0 {
		agent.Timeout(g.timeout)
	}

	start := time.Now()
	status, body, errs := agent.Bytes()
	attrs := []any{
		slog.String("operation", operation),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		g.metrics.ObserveRequest(operation, metrics.OutcomeTransport)
		g.logger.Debug("ledger request failed", append(attrs, slog.Any("error", err))...)
		return Envelope{}, &TransportError{Operation: operation, Err: err}
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		g.metrics.ObserveRequest(operation, metrics.OutcomeUndecodable)
		g.logger.Debug("ledger response undecodable", append(attrs, slog.Int("status", status), slog.Any("error", err))...)
		return Envelope{}, &TransportError{Operation: operation, Err: err}
	}

	outcome := metrics.OutcomeOK
	if !env.OK() {
		outcome = metrics.OutcomeRejected
	}
	g.metrics.ObserveRequest(operation, outcome)
	g.logger.Debug("ledger request completed", append(attrs, slog.Int("status", status), slog.Int("code", env.Code))...)
	return env, nil
}

// Call adapts any Sender to a blocking call.
func Call(ctx context.Context, s Sender, operation string, params Params) (Envelope, error) {
	if g, ok := s.(*Gateway); ok {
		return g.Do(ctx, operation, params)
	}
	type result struct {
		env Envelope
		err error
	}
	done := make(chan result, 1)
	s.Send(ctx, operation, params, func(env Envelope, err error) {
		done <- result{env: env, err: err}
	})
	res := <-done
	return res.env, res.err
}
