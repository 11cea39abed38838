// Package pipeline runs a single RPC call through an ordered chain of
// stages, independent of the transport the call arrived on.
//
// A stage either completes the call by returning without calling next,
// continues by calling next, or fails by returning an error. Errors travel
// back up the chain unchanged so that a single translator at the edge of
// the transport turns them into a response.
package pipeline

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// ErrNextCalledTwice is returned when a stage invokes next more than once.
var ErrNextCalledTwice = errors.New("pipeline: next called more than once")

// Call is one procedure invocation flowing through the chain.
type Call struct {
	ctx context.Context

	// Path names the procedure being called.
	Path string
	// Transport is the transport the call arrived on.
	Transport correlation.Transport
	// Token is the raw credential presented by the caller, if any. It is
	// untyped because callers may present anything.
	Token any
	// Payload is the decoded JSON input, nil when the call has no body.
	Payload any
	// Public marks procedures that skip authentication.
	Public bool
	// Result is set by the final handler.
	Result any
}

// NewCall creates a call bound to ctx. The transport is taken from the
// request context in ctx when present.
func NewCall(ctx context.Context, path string, payload any) *Call {
	c := &Call{
		ctx:       ctx,
		Path:      path,
		Transport: correlation.TransportHTTP,
		Payload:   payload,
	}
	if rc, ok := correlation.FromContext(ctx); ok {
		c.Transport = rc.Transport()
	}
	return c
}

// Context returns the call's context.
func (c *Call) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// SetContext replaces the call's context.
func (c *Call) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Logger returns the request-scoped logger for the call.
func (c *Call) Logger() observability.Logger {
	return correlation.LoggerFromContext(c.Context(), nil)
}

// Handler processes a call.
type Handler func(call *Call) error

// Next continues the chain with the following stage.
type Next func() error

// Stage is one step of the chain.
type Stage func(call *Call, next Next) error

// Chain is an immutable ordered list of stages.
type Chain struct {
	stages []Stage
}

// New creates a chain that runs stages left to right.
func New(stages ...Stage) Chain {
	return Chain{stages: append([]Stage(nil), stages...)}
}

// Append returns a new chain with stages added after the existing ones.
func (ch Chain) Append(stages ...Stage) Chain {
	merged := make([]Stage, 0, len(ch.stages)+len(stages))
	merged = append(merged, ch.stages...)
	merged = append(merged, stages...)
	return Chain{stages: merged}
}

// Len returns the number of stages.
func (ch Chain) Len() int {
	return len(ch.stages)
}

// Then returns a handler that runs the chain and finally final.
func (ch Chain) Then(final Handler) Handler {
	if final == nil {
		final = func(*Call) error { return nil }
	}

	h := final
	for i := len(ch.stages) - 1; i >= 0; i-- {
		h = wrap(ch.stages[i], h)
	}
	return h
}

func wrap(stage Stage, inner Handler) Handler {
	return func(call *Call) error {
		called := false
		return stage(call, func() error {
			if called {
				return ErrNextCalledTwice
			}
			called = true
			return inner(call)
		})
	}
}
