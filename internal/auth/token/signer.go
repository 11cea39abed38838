package token

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// DefaultTTL is the lifetime of issued proxy tokens.
const DefaultTTL = 7 * 24 * time.Hour

// Signer issues proxy tokens. It is safe for concurrent use.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger observability.Logger
}

// SignerOption is a functional option for the signer.
type SignerOption func(*Signer)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) SignerOption {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSignerClock overrides the time source.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// WithSignerLogger sets the fallback logger for the signer.
func WithSignerLogger(logger observability.Logger) SignerOption {
	return func(s *Signer) {
		s.logger = logger
	}
}

// NewSigner creates a signer using secret.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	s := &Signer{
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign issues a new proxy token.
func (s *Signer) Sign(ctx context.Context) (string, error) {
	now := s.now()

	tok, err := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Claim(ProxyTokenClaim, true).
		Build()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigning, err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(Algorithm, s.secret))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigning, err)
	}

	correlation.LoggerFromContext(ctx, s.logger).Debug("issued proxy token",
		observability.String("token_prefix", Prefix(string(signed))),
		observability.Duration("ttl", s.ttl),
	)

	return string(signed), nil
}
