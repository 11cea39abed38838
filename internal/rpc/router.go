// Package rpc exposes registered procedures over HTTP and WebSocket. Every
// call, whichever transport it arrives on, runs through the same pipeline
// chain before the procedure is invoked.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// Default limits.
const (
	DefaultMaxBodyBytes  = 1 << 20
	DefaultMaxFrameBytes = 1 << 20
)

// Sentinel errors for procedure registration.
var (
	ErrEmptyName          = errors.New("procedure name is empty")
	ErrNilProcedure       = errors.New("procedure is nil")
	ErrDuplicateProcedure = errors.New("procedure already registered")
)

// Procedure handles one call. The input is the decoded, key-normalized
// JSON payload, or nil when the call carried none.
type Procedure func(ctx context.Context, input any) (any, error)

type procedure struct {
	fn     Procedure
	public bool
}

// ProcedureOption configures a registered procedure.
type ProcedureOption func(*procedure)

// Public marks a procedure as callable without a proxy token.
func Public() ProcedureOption {
	return func(p *procedure) {
		p.public = true
	}
}

// Router holds the registered procedures and the chain calls run through.
type Router struct {
	mu    sync.RWMutex
	procs map[string]procedure

	chain         pipeline.Chain
	logger        observability.Logger
	metrics       *observability.Metrics
	cookieName    string
	maxBodyBytes  int64
	maxFrameBytes int64
	checkOrigin   func(r *http.Request) bool
}

// RouterOption is a functional option for the router.
type RouterOption func(*Router)

// WithLogger sets the fallback logger.
func WithLogger(logger observability.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics for WebSocket connections and calls.
func WithMetrics(metrics *observability.Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = metrics
	}
}

// WithTokenCookie sets the cookie name the credential is read from.
func WithTokenCookie(name string) RouterOption {
	return func(r *Router) {
		if name != "" {
			r.cookieName = name
		}
	}
}

// WithMaxBodyBytes limits the size of HTTP call bodies.
func WithMaxBodyBytes(n int64) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

// WithMaxFrameBytes limits the size of inbound WebSocket frames.
func WithMaxFrameBytes(n int64) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxFrameBytes = n
		}
	}
}

// WithCheckOrigin sets the WebSocket origin check. By default only
// same-origin upgrades are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) RouterOption {
	return func(r *Router) {
		r.checkOrigin = fn
	}
}

// NewRouter creates a router whose calls run through chain.
func NewRouter(chain pipeline.Chain, opts ...RouterOption) *Router {
	r := &Router{
		procs:         make(map[string]procedure),
		chain:         chain,
		logger:        observability.NopLogger(),
		cookieName:    middleware.DefaultTokenCookie,
		maxBodyBytes:  DefaultMaxBodyBytes,
		maxFrameBytes: DefaultMaxFrameBytes,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a procedure under name.
func (r *Router) Register(name string, fn Procedure, opts ...ProcedureOption) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilProcedure, name)
	}

	p := procedure{fn: fn}
	for _, opt := range opts {
		opt(&p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProcedure, name)
	}
	r.procs[name] = p
	return nil
}

// Procedures returns the registered procedure names in sorted order.
func (r *Router) Procedures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs call through the chain and the procedure named by call.Path.
// On success the procedure's output is stored in call.Result.
func (r *Router) Invoke(call *pipeline.Call) error {
	r.mu.RLock()
	p, ok := r.procs[call.Path]
	r.mu.RUnlock()

	if !ok {
		err := apierr.Newf(http.StatusNotFound, "procedure %q not found", call.Path)
		err.Route = call.Path
		return err
	}

	call.Public = p.public

	return r.chain.Then(func(call *pipeline.Call) error {
		out, err := p.fn(call.Context(), call.Payload)
		if err != nil {
			return err
		}
		call.Result = out
		return nil
	})(call)
}
