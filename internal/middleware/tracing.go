package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// SpanKey is the gin key under which the request span is stored.
const SpanKey = "otel-span"

// Tracing starts a server span for each request, continuing an inbound
// W3C trace context. It must run after Correlation so that the span
// carries the correlation ID.
func Tracing(tracer *observability.Tracer, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if tracer == nil || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := observability.ExtractTraceContext(c.Request.Context(), c.Request.Header)

		spanName := c.Request.Method + " " + c.Request.URL.Path
		if route := c.FullPath(); route != "" {
			spanName = c.Request.Method + " " + route
		}

		ctx, span := tracer.StartSpan(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("url.path", c.Request.URL.Path),
				attribute.String("server.address", c.Request.Host),
				attribute.String("user_agent.original", c.Request.UserAgent()),
				attribute.String("client.address", c.ClientIP()),
			),
		)
		defer span.End()

		if id := correlation.IDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("correlation.id", id))
		}

		c.Set(SpanKey, span)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := ResponseStatus(c)
		span.SetAttributes(attribute.Int("http.response.status_code", status))

		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}

// GetSpan returns the request span, or nil when tracing is not active.
func GetSpan(c *gin.Context) trace.Span {
	if v, exists := c.Get(SpanKey); exists {
		if s, ok := v.(trace.Span); ok {
			return s
		}
	}
	return nil
}
