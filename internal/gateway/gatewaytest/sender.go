// Package gatewaytest provides a scripted gateway.Sender for unit tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/congo-pay/walletsync/internal/gateway"
)

// Responder produces the outcome of one operation.
type Responder func(params gateway.Params) (gateway.Envelope, error)

// Call is one recorded Send.
type Call struct {
	Operation string
	Params    gateway.Params

	sender *Sender
	fn     gateway.Continuation
	once   sync.Once
}

// Resolve delivers env/err to the caller. Only the first resolution counts.
func (c *Call) Resolve(env gateway.Envelope, err error) {
	c.once.Do(func() { c.fn(env, err) })
}

// Respond resolves the call with the sender's responder for its operation.
func (c *Call) Respond() {
	env, err := c.sender.respond(c.Operation, c.Params)
	c.Resolve(env, err)
}

// Sender records every call. By default it resolves inline, before Send
// returns; in deferred mode calls wait until the test resolves them.
type Sender struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      []*Call
	deferred   map[string]bool
}

// New returns a Sender that answers unknown operations with code 500.
func New() *Sender {
	return &Sender{responders: make(map[string]Responder), deferred: make(map[string]bool)}
}

// On sets the responder for operation.
func (s *Sender) On(operation string, r Responder) *Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[operation] = r
	return s
}

// Defer switches operation between inline and test-driven resolution.
func (s *Sender) Defer(operation string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[operation] = on
}

// Send implements gateway.Sender.
func (s *Sender) Send(_ context.Context, operation string, params gateway.Params, fn gateway.Continuation) {
	c := &Call{Operation: operation, Params: params, sender: s, fn: fn}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	deferred := s.deferred[operation]
	s.mu.Unlock()

	if !deferred {
		c.Respond()
	}
}

// Calls returns every recorded call for operation, or all calls when operation is empty.
func (s *Sender) Calls(operation string) []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Call
	for _, c := range s.calls {
		if operation == "" || c.Operation == operation {
			out = append(out, c)
		}
	}
	return out
}

// Count is len(Calls(operation)).
func (s *Sender) Count(operation string) int {
	return len(s.Calls(operation))
}

func (s *Sender) respond(operation string, params gateway.Params) (gateway.Envelope, error) {
	s.mu.Lock()
	r := s.responders[operation]
	s.mu.Unlock()
	if r == nil {
		return Fail(500, "Unknown operation"), nil
	}
	return r(params)
}

// OK builds a 200 envelope carrying info.
func OK(info any) gateway.Envelope {
	env := gateway.Envelope{Code: gateway.CodeOK}
	if info != nil {
		raw, err := json.Marshal(info)
		if err != nil {
			panic(err)
		}
		env.Info = raw
	}
	return env
}

// Fail builds a rejected envelope.
func Fail(code int, message string) gateway.Envelope {
	return gateway.Envelope{Code: code, Message: message}
}

// Reply always answers with env.
func Reply(env gateway.Envelope) Responder {
	return func(gateway.Params) (gateway.Envelope, error) { return env, nil }
}

// Unreachable always fails at the transport level.
func Unreachable(operation string) Responder {
	return func(gateway.Params) (gateway.Envelope, error) {
		return gateway.Envelope{}, &gateway.TransportError{Operation: operation, Err: context.DeadlineExceeded}
	}
}
