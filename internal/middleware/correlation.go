package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// CorrelationOption is a functional option for the correlation middleware.
type CorrelationOption func(*correlationConfig)

type correlationConfig struct {
	generator correlation.Generator
}

// WithIDGenerator overrides the correlation ID generator.
func WithIDGenerator(gen correlation.Generator) CorrelationOption {
	return func(c *correlationConfig) {
		if gen != nil {
			c.generator = gen
		}
	}
}

// Correlation begins the request scope. It assigns a fresh correlation ID,
// binds a RequestContext into the request's context and gin keys, sets the
// correlation response header, and releases the scope when the request
// completes. An inbound correlation header is only recorded on the request
// logger; it never replaces the generated ID.
func Correlation(logger observability.Logger, opts ...CorrelationOption) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	cfg := correlationConfig{generator: correlation.NewID}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		transport := correlation.TransportHTTP
		if websocket.IsWebSocketUpgrade(c.Request) {
			transport = correlation.TransportWebSocket
		}

		base := logger
		if upstream := c.GetHeader(correlation.HeaderName); upstream != "" {
			base = base.With(observability.String(correlation.UpstreamField, upstream))
		}

		rc := correlation.New(cfg.generator(), transport, base)

		ctx, cancel := context.WithCancel(correlation.NewContext(c.Request.Context(), rc))
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Set(correlation.Key, rc)
		c.Header(correlation.HeaderName, rc.ID())

		c.Next()
	}
}

// GetRequestContext returns the request context bound by Correlation.
func GetRequestContext(c *gin.Context) (*correlation.RequestContext, bool) {
	v, exists := c.Get(correlation.Key)
	if !exists {
		return nil, false
	}
	rc, ok := v.(*correlation.RequestContext)
	return rc, ok
}

// GetCorrelationID returns the correlation ID of the request, or "".
func GetCorrelationID(c *gin.Context) string {
	if rc, ok := GetRequestContext(c); ok {
		return rc.ID()
	}
	return ""
}

// requestLogger returns the request-scoped logger, or fallback.
func requestLogger(c *gin.Context, fallback observability.Logger) observability.Logger {
	return correlation.LoggerFromContext(c.Request.Context(), fallback)
}
