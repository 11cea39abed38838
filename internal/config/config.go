package config

import (
	"time"
)

// APIVersionPrefix is the required prefix of apiVersion.
const APIVersionPrefix = "gateway.avaguard.io/"

// Kind is the required configuration kind.
const Kind = "Gateway"

// GatewayConfig is the root of the gateway configuration file.
type GatewayConfig struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion"`
	Kind       string      `yaml:"kind" json:"kind"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`
	Spec       GatewaySpec `yaml:"spec" json:"spec"`
}

// Metadata identifies the gateway instance.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// GatewaySpec holds the gateway settings.
type GatewaySpec struct {
	Listener      ListenerConfig      `yaml:"listener" json:"listener"`
	Auth          AuthConfig          `yaml:"auth" json:"auth"`
	Account       AccountConfig       `yaml:"account" json:"account"`
	Backend       BackendConfig       `yaml:"backend" json:"backend"`
	WebSocket     WebSocketConfig     `yaml:"websocket" json:"websocket"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ListenerConfig configures the HTTP listener.
type ListenerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
	TrustedProxies  []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// AuthConfig configures proxy token signing and verification.
type AuthConfig struct {
	// Secret is the HMAC signing secret. When empty the secret is read
	// from SecretFile, which is created with a random value if missing.
	Secret       string   `yaml:"secret,omitempty" json:"-"`
	SecretFile   string   `yaml:"secretFile,omitempty" json:"secretFile,omitempty"`
	TokenCookie  string   `yaml:"tokenCookie,omitempty" json:"tokenCookie,omitempty"`
	TokenTTL     Duration `yaml:"tokenTTL,omitempty" json:"tokenTTL,omitempty"`
	ClockSkew    Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`
	SecureCookie bool     `yaml:"secureCookie,omitempty" json:"secureCookie,omitempty"`
	// Whitelist lists path prefixes proxied without a token.
	Whitelist []string `yaml:"whitelist,omitempty" json:"whitelist,omitempty"`
}

// AccountConfig configures the login endpoint.
type AccountConfig struct {
	// PasswordHash is the bcrypt hash of the account password. Login is
	// disabled when empty.
	PasswordHash string  `yaml:"passwordHash,omitempty" json:"-"`
	LoginRate    float64 `yaml:"loginRate,omitempty" json:"loginRate,omitempty"`
	LoginBurst   int     `yaml:"loginBurst,omitempty" json:"loginBurst,omitempty"`
}

// BackendConfig configures the proxied application.
type BackendConfig struct {
	URL            string               `yaml:"url" json:"url"`
	Timeout        Duration             `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
}

// CircuitBreakerConfig configures the backend circuit breaker.
type CircuitBreakerConfig struct {
	Threshold int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// WebSocketConfig configures the RPC WebSocket endpoint.
type WebSocketConfig struct {
	MaxFrameBytes  int64    `yaml:"maxFrameBytes,omitempty" json:"maxFrameBytes,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
}

// ObservabilityConfig represents observability configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level     string `yaml:"level,omitempty" json:"level,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	Output    string `yaml:"output,omitempty" json:"output,omitempty"`
	AccessLog *bool  `yaml:"accessLog,omitempty" json:"accessLog,omitempty"`
}

// AccessLogEnabled reports whether access logging is on. It defaults to true.
func (l LoggingConfig) AccessLogEnabled() bool {
	return l.AccessLog == nil || *l.AccessLog
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// Default values applied to unset fields.
const (
	DefaultAddress         = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultMaxFrameBytes   = 1 << 20
	DefaultSecretFile      = "data/secrets/jwt"
	DefaultTokenCookie     = "UMBREL_PROXY_TOKEN"
	DefaultTokenTTL        = 7 * 24 * time.Hour
	DefaultClockSkew       = 30 * time.Second
	DefaultLoginRate       = 1.0
	DefaultLoginBurst      = 5
	DefaultBackendTimeout  = 60 * time.Second
	DefaultBreakerLimit    = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultLogOutput       = "stdout"
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNS       = "gateway"
	DefaultServiceName     = "avaguard"
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		APIVersion: APIVersionPrefix + "v1",
		Kind:       Kind,
		Metadata:   Metadata{Name: DefaultServiceName},
	}
	cfg.Spec.Backend.URL = "http://localhost:3000"
	cfg.Spec.Observability.Metrics.Enabled = true
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func (c *GatewayConfig) ApplyDefaults() {
	l := &c.Spec.Listener
	setString(&l.Address, DefaultAddress)
	setDuration(&l.ReadTimeout, DefaultReadTimeout)
	setDuration(&l.WriteTimeout, DefaultWriteTimeout)
	setDuration(&l.IdleTimeout, DefaultIdleTimeout)
	setDuration(&l.ShutdownTimeout, DefaultShutdownTimeout)
	if l.MaxBodyBytes == 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}

	a := &c.Spec.Auth
	setString(&a.SecretFile, DefaultSecretFile)
	setString(&a.TokenCookie, DefaultTokenCookie)
	setDuration(&a.TokenTTL, DefaultTokenTTL)
	setDuration(&a.ClockSkew, DefaultClockSkew)

	acc := &c.Spec.Account
	if acc.LoginRate == 0 {
		acc.LoginRate = DefaultLoginRate
	}
	if acc.LoginBurst == 0 {
		acc.LoginBurst = DefaultLoginBurst
	}

	b := &c.Spec.Backend
	setDuration(&b.Timeout, DefaultBackendTimeout)
	if b.CircuitBreaker.Threshold == 0 {
		b.CircuitBreaker.Threshold = DefaultBreakerLimit
	}
	setDuration(&b.CircuitBreaker.Timeout, DefaultBreakerTimeout)

	if c.Spec.WebSocket.MaxFrameBytes == 0 {
		c.Spec.WebSocket.MaxFrameBytes = DefaultMaxFrameBytes
	}

	o := &c.Spec.Observability
	setString(&o.Logging.Level, DefaultLogLevel)
	setString(&o.Logging.Format, DefaultLogFormat)
	setString(&o.Logging.Output, DefaultLogOutput)
	setString(&o.Metrics.Path, DefaultMetricsPath)
	setString(&o.Metrics.Namespace, DefaultMetricsNS)
	setString(&o.Tracing.ServiceName, DefaultServiceName)
	if o.Tracing.SamplingRate == 0 {
		o.Tracing.SamplingRate = 1.0
	}
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDuration(field *Duration, value time.Duration) {
	if *field == 0 {
		*field = Duration(value)
	}
}
