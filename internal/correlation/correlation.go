// Package correlation carries the per-request correlation scope.
//
// A RequestContext is created once at the pipeline entry point and passed
// explicitly inside the request's context.Context. Code anywhere in the
// request's call graph, including goroutines started with that context,
// reads the same value through FromContext.
package correlation

import (
	"context"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

const (
	// Key is the well-known key under which the request context is stored
	// in gin keys and the log field name of the correlation ID.
	Key = "reqId"

	// HeaderName is the response and outbound header carrying the ID.
	HeaderName = "X-Correlation-ID"

	// UpstreamField is the log field recording an inbound correlation header.
	UpstreamField = "upstream_correlation_id"
)

// Transport identifies how a request reached the gateway.
type Transport string

// Transports.
const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "ws"
)

// Generator produces correlation IDs.
type Generator func() string

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.New().String()
}

// RequestContext is the immutable per-request correlation scope.
type RequestContext struct {
	id        string
	transport Transport
	logger    observability.Logger
}

// New creates a request context. The logger is bound with the
// correlation ID field.
func New(id string, transport Transport, logger observability.Logger) *RequestContext {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RequestContext{
		id:        id,
		transport: transport,
		logger:    logger.With(observability.String(Key, id)),
	}
}

// ID returns the correlation ID.
func (rc *RequestContext) ID() string { return rc.id }

// Transport returns the transport the request arrived on.
func (rc *RequestContext) Transport() Transport { return rc.transport }

// Logger returns the logger bound to this request.
func (rc *RequestContext) Logger() observability.Logger { return rc.logger }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying rc.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the request context stored in ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// IDFromContext returns the correlation ID in ctx, or "".
func IDFromContext(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.id
	}
	return ""
}

// LoggerFromContext returns the request logger in ctx, or fallback when ctx
// carries no request context.
func LoggerFromContext(ctx context.Context, fallback observability.Logger) observability.Logger {
	if rc, ok := FromContext(ctx); ok {
		return rc.logger.WithContext(ctx)
	}
	if fallback == nil {
		return observability.NopLogger()
	}
	return fallback.WithContext(ctx)
}
