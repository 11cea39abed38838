package token

import "errors"

// Sentinel errors for proxy token operations.
var (
	// ErrVerification indicates that a token failed signature or claim
	// verification. The underlying cause is wrapped alongside it.
	ErrVerification = errors.New("token verification failed")

	// ErrEmptySecret indicates that no signing secret was configured.
	ErrEmptySecret = errors.New("signing secret is empty")

	// ErrSigning indicates that a token could not be issued.
	ErrSigning = errors.New("token signing failed")
)
