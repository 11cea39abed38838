// Package token verifies and issues the gateway's proxy tokens: HS256 JWS
// credentials that must carry the claim proxyToken=true.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

const (
	// Algorithm is the only signature algorithm accepted or issued.
	Algorithm = jwa.HS256

	// ProxyTokenClaim is the private claim that marks a proxy token.
	ProxyTokenClaim = "proxyToken"

	// PrefixLength is the number of token characters written to logs.
	PrefixLength = 12
)

// Auth decision outcomes reported to metrics.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
	OutcomeInvalidInput = "invalid_input"
)

// Validator verifies proxy tokens. It is safe for concurrent use.
type Validator struct {
	secret  []byte
	skew    time.Duration
	now     func() time.Time
	logger  observability.Logger
	metrics *observability.Metrics
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*Validator)

// WithValidatorLogger sets the fallback logger, used when the context
// carries no request logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics for the validator.
func WithValidatorMetrics(metrics *observability.Metrics) ValidatorOption {
	return func(v *Validator) {
		v.metrics = metrics
	}
}

// WithClockSkew sets the tolerated clock skew for time-based claims.
func WithClockSkew(skew time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.skew = skew
	}
}

// WithValidatorClock overrides the time source.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a validator for tokens signed with secret.
func NewValidator(secret []byte, opts ...ValidatorOption) (*Validator, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	v := &Validator{
		secret: secret,
		now:    time.Now,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Validate reports whether tok is a valid proxy token.
//
// Input that is not a string yields false without error. A token that fails
// verification yields an error wrapping ErrVerification. A verified token
// is accepted only if its proxyToken claim is exactly true; any other value
// yields false without error.
func (v *Validator) Validate(ctx context.Context, tok any) (bool, error) {
	logger := correlation.LoggerFromContext(ctx, v.logger)

	raw, ok := tok.(string)
	if !ok {
		logger.Debug("token is not a string", observability.String("type", fmt.Sprintf("%T", tok)))
		v.record(OutcomeInvalidInput)
		return false, nil
	}

	logger.Debug("validating proxy token", observability.String("token_prefix", Prefix(raw)))

	parsed, err := jwt.Parse([]byte(raw),
		jwt.WithKey(Algorithm, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
	if err != nil {
		v.record(OutcomeError)
		return false, fmt.Errorf("%w: %w", ErrVerification, err)
	}

	claim, found := parsed.Get(ProxyTokenClaim)
	isProxy, isBool := claim.(bool)
	if !found || !isBool || !isProxy {
		v.record(OutcomeRejected)
		return false, nil
	}

	v.record(OutcomeAccepted)
	return true, nil
}

func (v *Validator) record(outcome string) {
	if v.metrics != nil {
		v.metrics.RecordAuthDecision(outcome)
	}
}

// Prefix returns the first PrefixLength characters of tok for logging.
// Shorter tokens are returned whole.
func Prefix(tok string) string {
	runes := []rune(tok)
	if len(runes) <= PrefixLength {
		return tok
	}
	return string(runes[:PrefixLength])
}
