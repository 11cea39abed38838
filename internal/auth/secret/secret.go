// Package secret resolves the process-wide HMAC secret used to sign and
// verify proxy tokens.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// EnvVar is the environment variable that overrides the secret file.
const EnvVar = "GATEWAY_AUTH_SECRET"

// TokenBits is the entropy of generated secrets.
const TokenBits = 256

// ErrNoSource indicates that neither the environment nor a file path
// provided a secret.
var ErrNoSource = errors.New("no secret source configured")

// Source describes where the secret comes from.
type Source struct {
	// Value is used as-is when non-empty.
	Value string
	// File is read, or created with a random secret when missing.
	File string
}

// Resolve returns the secret. A non-empty Value wins over File. The
// returned secret is never empty.
func Resolve(src Source, logger observability.Logger) ([]byte, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if v := strings.TrimSpace(src.Value); v != "" {
		logger.Info("using auth secret from configuration")
		return []byte(v), nil
	}

	if src.File == "" {
		return nil, ErrNoSource
	}

	data, err := os.ReadFile(src.File)
	switch {
	case err == nil:
		if v := strings.TrimSpace(string(data)); v != "" {
			logger.Info("loaded auth secret", observability.String("path", src.File))
			return []byte(v), nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read secret file %s: %w", src.File, err)
	}

	v, err := RandomToken(TokenBits)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(src.File), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(src.File, []byte(v), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secret file %s: %w", src.File, err)
	}

	logger.Info("generated new auth secret", observability.String("path", src.File))
	return []byte(v), nil
}

// RandomToken returns bits of randomness hex-encoded.
func RandomToken(bits int) (string, error) {
	if bits <= 0 || bits%8 != 0 {
		return "", fmt.Errorf("invalid token size %d: must be a positive multiple of 8", bits)
	}

	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
