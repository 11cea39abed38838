// Package proxy forwards requests the gateway does not handle itself to the
// backend application.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Default circuit breaker settings.
const (
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 30 * time.Second
)

// Failure messages written to the client.
const (
	MsgBadGateway  = "backend unavailable"
	MsgBreakerOpen = "backend temporarily unavailable"
)

// Sentinel errors for proxy construction.
var (
	ErrEmptyTarget   = errors.New("backend URL is empty")
	ErrInvalidTarget = errors.New("invalid backend URL")
)

type errSlotKey struct{}

// errSlot carries the transport error of one proxied request out of the
// ReverseProxy error handler.
type errSlot struct {
	err error
}

// Proxy is a reverse proxy to a single backend guarded by a circuit breaker.
type Proxy struct {
	target     *url.URL
	rp         *httputil.ReverseProxy
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
	metrics    *observability.Metrics
	cookieName string
	timeout    time.Duration

	threshold      int
	breakerTimeout time.Duration
	transport      http.RoundTripper
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics that receive breaker state changes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// WithTransport sets the transport used to reach the backend.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithTokenCookie sets the name of the cookie stripped before forwarding.
func WithTokenCookie(name string) Option {
	return func(p *Proxy) {
		if name != "" {
			p.cookieName = name
		}
	}
}

// WithTimeout bounds each proxied request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Proxy) {
		p.timeout = timeout
	}
}

// WithBreaker configures the circuit breaker. The breaker opens after
// threshold consecutive backend failures and probes again after timeout.
func WithBreaker(threshold int, timeout time.Duration) Option {
	return func(p *Proxy) {
		if threshold > 0 {
			p.threshold = threshold
		}
		if timeout > 0 {
			p.breakerTimeout = timeout
		}
	}
}

// New creates a proxy to backendURL.
func New(backendURL string, opts ...Option) (*Proxy, error) {
	if strings.TrimSpace(backendURL) == "" {
		return nil, ErrEmptyTarget
	}
	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, backendURL)
	}

	p := &Proxy{
		target:         target,
		logger:         observability.NopLogger(),
		cookieName:     middleware.DefaultTokenCookie,
		threshold:      DefaultBreakerThreshold,
		breakerTimeout: DefaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	base := httputil.NewSingleHostReverseProxy(target)
	p.rp = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			base.Director(req)
			p.prepare(req)
		},
		Transport:    p.transport,
		ErrorHandler: captureError,
	}

	p.breaker = gobreaker.NewCircuitBreaker(p.breakerSettings())
	return p, nil
}

func (p *Proxy) breakerSettings() gobreaker.Settings {
	threshold := uint32(p.threshold) //nolint:gosec // positive, bounded by config validation
	return gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     p.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if p.metrics != nil {
				p.metrics.SetBackendBreakerState(breakerStateValue(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Target returns the backend URL.
func (p *Proxy) Target() string {
	return p.target.String()
}

// State returns the current circuit breaker state.
func (p *Proxy) State() gobreaker.State {
	return p.breaker.State()
}

// Handle forwards the request to the backend. Transport failures are
// reported as 502 and an open breaker as 503, both through the error
// translator.
func (p *Proxy) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	slot := &errSlot{}
	req := c.Request.WithContext(context.WithValue(ctx, errSlotKey{}, slot))

	_, err := p.breaker.Execute(func() (any, error) {
		p.rp.ServeHTTP(c.Writer, req)
		return nil, slot.err
	})
	if err == nil {
		return
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		middleware.Fail(c, apierr.Wrap(http.StatusServiceUnavailable, MsgBreakerOpen, err))
		return
	}
	middleware.Fail(c, apierr.Wrap(http.StatusBadGateway, MsgBadGateway, err))
}

// prepare rewrites the outbound request: the proxy token cookie is removed
// and the correlation and trace headers are set.
func (p *Proxy) prepare(req *http.Request) {
	StripCookie(req.Header, p.cookieName)

	if id := correlation.IDFromContext(req.Context()); id != "" {
		req.Header.Set(correlation.HeaderName, id)
	}
	observability.InjectTraceContext(req.Context(), req)
}

// StripCookie removes the named cookie from the Cookie header. The header
// is dropped entirely when no other cookie remains.
func StripCookie(header http.Header, name string) {
	values := header.Values("Cookie")
	if len(values) == 0 {
		return
	}

	kept := make([]string, 0, len(values))
	for _, line := range values {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, _, _ := strings.Cut(part, "=")
			if strings.TrimSpace(key) == name {
				continue
			}
			kept = append(kept, part)
		}
	}

	if len(kept) == 0 {
		header.Del("Cookie")
		return
	}
	header.Set("Cookie", strings.Join(kept, "; "))
}

// captureError records the transport error for Handle without writing a
// response, leaving the reply to the error translator.
func captureError(_ http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(errSlotKey{}).(*errSlot); ok {
		slot.err = err
	}
}
