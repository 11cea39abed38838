// Package account serves the login and logout endpoints that issue and
// clear the proxy token cookie.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Default login throttling: one attempt per second with a burst of five,
// per client address.
const (
	DefaultLoginRate  = 1.0
	DefaultLoginBurst = 5
)

const maxTrackedClients = 10000

// Login attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeThrottled = "throttled"
	OutcomeInvalid   = "invalid"
)

// Failure messages written to the client.
const (
	MsgInvalidBody      = "invalid request body"
	MsgPasswordRequired = "password is required"
	MsgIncorrect        = "incorrect password"
	MsgThrottled        = "too many login attempts"
	MsgIssueFailed      = "failed to issue token"
)

// ErrInvalidHash is returned when the configured password hash is not a
// bcrypt hash.
var ErrInvalidHash = errors.New("invalid password hash")

// TokenSigner issues proxy tokens.
type TokenSigner interface {
	Sign(ctx context.Context) (string, error)
	TTL() time.Duration
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Password string `json:"password"`
}

// Handler serves the account endpoints.
type Handler struct {
	hash         []byte
	signer       TokenSigner
	logger       observability.Logger
	metrics      *observability.Metrics
	cookieName   string
	secureCookie bool

	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// Option is a functional option for configuring the handler.
type Option func(*Handler)

// WithLogger sets the fallback logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics sets the metrics that receive login outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// WithTokenCookie sets the name of the token cookie.
func WithTokenCookie(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.cookieName = name
		}
	}
}

// WithSecureCookie marks the token cookie as HTTPS only.
func WithSecureCookie(secure bool) Option {
	return func(h *Handler) {
		h.secureCookie = secure
	}
}

// WithRateLimit sets the per-client login rate and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limit = rate.Limit(perSecond)
		}
		if burst > 0 {
			h.burst = burst
		}
	}
}

// NewHandler creates an account handler that accepts the password matching
// passwordHash and issues tokens with signer.
func NewHandler(passwordHash string, signer TokenSigner, opts ...Option) (*Handler, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}

	h := &Handler{
		hash:       []byte(passwordHash),
		signer:     signer,
		logger:     observability.NopLogger(),
		cookieName: middleware.DefaultTokenCookie,
		limit:      rate.Limit(DefaultLoginRate),
		burst:      DefaultLoginBurst,
		clients:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the login and logout endpoints on routes.
func (h *Handler) Register(routes gin.IRoutes) {
	routes.POST("/login", h.Login)
	routes.POST("/logout", h.Logout)
}

// Login checks the password and sets the token cookie.
func (h *Handler) Login(c *gin.Context) {
	logger := correlation.LoggerFromContext(c.Request.Context(), h.logger)
	client := c.ClientIP()

	if !h.allow(client) {
		h.record(OutcomeThrottled)
		logger.Warn("login throttled", observability.String("client_ip", client))
		middleware.Fail(c, apierr.New(http.StatusTooManyRequests, MsgThrottled))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.record(OutcomeInvalid)
		middleware.Fail(c, apierr.Wrap(http.StatusBadRequest, MsgInvalidBody, err))
		return
	}
	if req.Password == "" {
		h.record(OutcomeInvalid)
		middleware.Fail(c, apierr.New(http.StatusBadRequest, MsgPasswordRequired))
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.hash, []byte(req.Password)); err != nil {
		h.record(OutcomeFailure)
		logger.Info("login rejected", observability.String("client_ip", client))
		middleware.Fail(c, apierr.New(http.StatusUnauthorized, MsgIncorrect))
		return
	}

	tok, err := h.signer.Sign(c.Request.Context())
	if err != nil {
		middleware.Fail(c, apierr.Wrap(http.StatusInternalServerError, MsgIssueFailed, err))
		return
	}

	h.record(OutcomeSuccess)
	logger.Info("login succeeded", observability.String("client_ip", client))

	http.SetCookie(c.Writer, h.cookie(tok, int(h.signer.TTL().Seconds())))
	c.JSON(http.StatusOK, gin.H{"result": true})
}

// Logout clears the token cookie.
func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.cookie("", -1))
	c.JSON(http.StatusOK, gin.H{"result": true})
}

func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) allow(client string) bool {
	h.mu.Lock()
	limiter, ok := h.clients[client]
	if !ok {
		if len(h.clients) >= maxTrackedClients {
			h.clients = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.clients[client] = limiter
	}
	h.mu.Unlock()

	return limiter.Allow()
}

func (h *Handler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLoginAttempt(outcome)
	}
}
