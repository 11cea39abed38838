// Package health provides the liveness and readiness endpoints of the
// gateway.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// DefaultReadinessTimeout bounds the readiness checks of one probe.
const DefaultReadinessTimeout = 5 * time.Second

// Status values reported by the endpoints.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDraining = "draining"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Report is the body of a probe response.
type Report struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

type namedCheck struct {
	name  string
	check CheckFunc
}

// Handler serves /healthz and /readyz.
type Handler struct {
	version   string
	logger    observability.Logger
	timeout   time.Duration
	startTime time.Time
	draining  atomic.Bool

	mu     sync.RWMutex
	checks []namedCheck
}

// Option is a functional option for configuring the handler.
type Option func(*Handler)

// WithLogger sets the logger for failed checks.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTimeout sets the readiness probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// NewHandler creates a health handler reporting version.
func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		version:   version,
		logger:    observability.NopLogger(),
		timeout:   DefaultReadinessTimeout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// SetDraining marks the server as shutting down; readiness then fails.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// RegisterRoutes mounts /healthz and /readyz on routes.
func (h *Handler) RegisterRoutes(routes gin.IRoutes) {
	routes.GET("/healthz", h.Liveness)
	routes.GET("/readyz", h.Readiness)
}

// Liveness reports that the process is serving.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, Report{
		Status:    StatusOK,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	})
}

// Readiness runs the registered checks and reports 503 if any fails or the
// server is draining.
func (h *Handler) Readiness(c *gin.Context) {
	if h.draining.Load() {
		c.JSON(http.StatusServiceUnavailable, Report{
			Status:    StatusDraining,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report := h.runChecks(ctx)

	status := http.StatusOK
	if report.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *Handler) runChecks(ctx context.Context) *Report {
	h.mu.RLock()
	checks := make([]namedCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	report := &Report{
		Status:    StatusOK,
		Checks:    make(map[string]*CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, nc := range checks {
		wg.Add(1)
		go func(nc namedCheck) {
			defer wg.Done()

			start := time.Now()
			err := nc.check(ctx)
			duration := time.Since(start)

			result := &CheckResult{Status: StatusOK, Duration: duration.String()}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				h.logger.Warn("health check failed",
					observability.String("check", nc.name),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[nc.name] = result
			if err != nil {
				report.Status = StatusError
			}
		}(nc)
	}

	wg.Wait()
	return report
}
