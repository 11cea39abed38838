package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// DefaultTokenCookie is the cookie carrying the proxy token.
const DefaultTokenCookie = "UMBREL_PROXY_TOKEN"

// Authentication failure messages.
const (
	MsgMissingToken = "missing token"
	MsgInvalidToken = "invalid token"
	MsgForbidden    = "forbidden"
)

// TokenValidator verifies a credential presented by a caller.
type TokenValidator interface {
	Validate(ctx context.Context, token any) (bool, error)
}

// AuthOption is a functional option for the auth middlewares.
type AuthOption func(*authConfig)

type authConfig struct {
	logger     observability.Logger
	cookieName string
	whitelist  []string
}

// WithAuthLogger sets the fallback logger for auth decisions.
func WithAuthLogger(logger observability.Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = logger
	}
}

// WithTokenCookie sets the name of the token cookie.
func WithTokenCookie(name string) AuthOption {
	return func(c *authConfig) {
		if name != "" {
			c.cookieName = name
		}
	}
}

// WithWhitelist sets path prefixes that bypass authentication.
func WithWhitelist(prefixes ...string) AuthOption {
	return func(c *authConfig) {
		c.whitelist = append(c.whitelist, prefixes...)
	}
}

func newAuthConfig(opts []AuthOption) authConfig {
	cfg := authConfig{
		logger:     observability.NopLogger(),
		cookieName: DefaultTokenCookie,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// AuthGate rejects calls that do not carry a valid proxy token. Public
// calls pass through. A missing token or a token that fails verification
// fails with 401; a verified token that is not a proxy token fails with 403.
func AuthGate(validator TokenValidator, opts ...AuthOption) pipeline.Stage {
	cfg := newAuthConfig(opts)

	return func(call *pipeline.Call, next pipeline.Next) error {
		if call.Public {
			return next()
		}
		if err := authorize(call.Context(), validator, call.Token, cfg.logger); err != nil {
			return err
		}
		return next()
	}
}

// RequireProxyToken is the gin form of AuthGate for routes outside the RPC
// pipeline. Requests whose path starts with a whitelisted prefix skip the
// check.
func RequireProxyToken(validator TokenValidator, opts ...AuthOption) gin.HandlerFunc {
	cfg := newAuthConfig(opts)

	return func(c *gin.Context) {
		if isWhitelisted(c.Request.URL.Path, cfg.whitelist) {
			c.Next()
			return
		}

		tok := ExtractToken(c.Request, cfg.cookieName)
		if err := authorize(c.Request.Context(), validator, tok, cfg.logger); err != nil {
			Fail(c, err)
			return
		}
		c.Next()
	}
}

func authorize(ctx context.Context, validator TokenValidator, tok any, logger observability.Logger) error {
	if tok == nil || tok == "" {
		return apierr.New(http.StatusUnauthorized, MsgMissingToken)
	}

	ok, err := validator.Validate(ctx, tok)
	if err != nil {
		return apierr.Wrap(http.StatusUnauthorized, MsgInvalidToken, err)
	}
	if !ok {
		return apierr.New(http.StatusForbidden, MsgForbidden)
	}

	correlation.LoggerFromContext(ctx, logger).Debug("proxy token accepted")
	return nil
}

func isWhitelisted(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ExtractToken returns the credential presented with r: the token cookie,
// or else a bearer token. It returns nil when neither is present.
func ExtractToken(r *http.Request, cookieName string) any {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if tok, ok := ExtractBearerToken(r); ok && tok != "" {
		return tok
	}
	return nil
}

// ExtractBearerToken extracts the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}

	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(auth[len(prefix):]), true
}
