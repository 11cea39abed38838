package config

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns every problem found as
// ValidationErrors.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errors = nil

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateListener(&config.Spec.Listener)
	v.validateAuth(&config.Spec.Auth)
	v.validateAccount(&config.Spec.Account)
	v.validateBackend(&config.Spec.Backend)
	v.validateObservability(&config.Spec.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateRoot(config *GatewayConfig) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, APIVersionPrefix) {
		v.addError("apiVersion", fmt.Sprintf("apiVersion must start with '%s'", APIVersionPrefix))
	}

	if config.Kind != Kind {
		v.addError("kind", fmt.Sprintf("kind must be '%s'", Kind))
	}

	if config.Metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

func (v *Validator) validateListener(l *ListenerConfig) {
	if l.Address == "" {
		v.addError("spec.listener.address", "address is required")
	}
	if l.MaxBodyBytes < 0 {
		v.addError("spec.listener.maxBodyBytes", "must not be negative")
	}
	if l.ReadTimeout < 0 || l.WriteTimeout < 0 || l.IdleTimeout < 0 || l.ShutdownTimeout < 0 {
		v.addError("spec.listener", "timeouts must not be negative")
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if a.Secret == "" && a.SecretFile == "" {
		v.addError("spec.auth", "either secret or secretFile is required")
	}
	if a.TokenTTL <= 0 {
		v.addError("spec.auth.tokenTTL", "must be positive")
	}
	if a.ClockSkew < 0 {
		v.addError("spec.auth.clockSkew", "must not be negative")
	}
	for i, prefix := range a.Whitelist {
		if !strings.HasPrefix(prefix, "/") {
			v.addError(fmt.Sprintf("spec.auth.whitelist[%d]", i), "path prefix must start with '/'")
		}
	}
}

func (v *Validator) validateAccount(a *AccountConfig) {
	if a.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			v.addError("spec.account.passwordHash", "must be a bcrypt hash")
		}
	}
	if a.LoginRate < 0 {
		v.addError("spec.account.loginRate", "must not be negative")
	}
	if a.LoginBurst < 0 {
		v.addError("spec.account.loginBurst", "must not be negative")
	}
}

func (v *Validator) validateBackend(b *BackendConfig) {
	if b.URL == "" {
		v.addError("spec.backend.url", "url is required")
	} else if u, err := url.Parse(b.URL); err != nil || u.Scheme == "" || u.Host == "" {
		v.addError("spec.backend.url", "url must be an absolute URL")
	}
	if b.CircuitBreaker.Threshold < 0 {
		v.addError("spec.backend.circuitBreaker.threshold", "must not be negative")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("spec.observability.logging.level", "must be one of debug, info, warn, error")
	}

	switch o.Logging.Format {
	case "json", "console":
	default:
		v.addError("spec.observability.logging.format", "must be json or console")
	}

	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		v.addError("spec.observability.metrics.path", "must start with '/'")
	}

	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("spec.observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
