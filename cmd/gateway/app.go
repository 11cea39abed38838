package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avaguard/internal/account"
	"github.com/vyrodovalexey/avaguard/internal/auth/secret"
	"github.com/vyrodovalexey/avaguard/internal/auth/token"
	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/health"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
	"github.com/vyrodovalexey/avaguard/internal/proxy"
	"github.com/vyrodovalexey/avaguard/internal/rpc"
	"github.com/vyrodovalexey/avaguard/internal/server"
)

// application holds all gateway components.
type application struct {
	config  *config.GatewayConfig
	server  *server.Server
	health  *health.Handler
	proxy   *proxy.Proxy
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// initApplication wires every component from the configuration.
func initApplication(
	ctx context.Context,
	cfg *config.GatewayConfig,
	logger observability.Logger,
) (*application, error) {
	spec := &cfg.Spec
	obs := &spec.Observability

	var metrics *observability.Metrics
	if obs.Metrics.Enabled {
		metrics = observability.NewMetrics(obs.Metrics.Namespace)
		metrics.SetBuildInfo(version, gitCommit, buildTime)
	}

	tracer, err := initTracer(ctx, obs.Tracing)
	if err != nil {
		return nil, err
	}

	key, err := secret.Resolve(secret.Source{
		Value: firstNonEmpty(spec.Auth.Secret, os.Getenv(secret.EnvVar)),
		File:  spec.Auth.SecretFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth secret: %w", err)
	}

	validator, err := token.NewValidator(key,
		token.WithClockSkew(spec.Auth.ClockSkew.Duration()),
		token.WithValidatorLogger(logger),
		token.WithValidatorMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token validator: %w", err)
	}
	signer, err := token.NewSigner(key,
		token.WithTTL(spec.Auth.TokenTTL.Duration()),
		token.WithSignerLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	router, err := initRPCRouter(cfg, validator, logger, metrics)
	if err != nil {
		return nil, err
	}

	acc, err := initAccount(cfg, signer, logger, metrics)
	if err != nil {
		return nil, err
	}

	backend, err := proxy.New(spec.Backend.URL,
		proxy.WithLogger(logger),
		proxy.WithMetrics(metrics),
		proxy.WithTokenCookie(spec.Auth.TokenCookie),
		proxy.WithTimeout(spec.Backend.Timeout.Duration()),
		proxy.WithBreaker(spec.Backend.CircuitBreaker.Threshold, spec.Backend.CircuitBreaker.Timeout.Duration()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend proxy: %w", err)
	}

	healthHandler := health.NewHandler(version, health.WithLogger(logger))
	healthHandler.AddCheck("backend", backendCheck(backend))

	srv, err := server.New(serverConfig(spec.Listener), server.Deps{
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         tracer,
		Validator:      validator,
		RPC:            router,
		Account:        acc,
		Proxy:          backend,
		Health:         healthHandler,
		MetricsPath:    obs.Metrics.Path,
		TokenCookie:    spec.Auth.TokenCookie,
		Whitelist:      spec.Auth.Whitelist,
		AccessLog:      obs.Logging.AccessLogEnabled(),
		TrustedProxies: spec.Listener.TrustedProxies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &application{
		config:  cfg,
		server:  srv,
		health:  healthHandler,
		proxy:   backend,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// initTracer initializes the OpenTelemetry tracer.
func initTracer(ctx context.Context, cfg config.TracingConfig) (*observability.Tracer, error) {
	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.SamplingRate,
		Enabled:        cfg.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

func initRPCRouter(
	cfg *config.GatewayConfig,
	validator *token.Validator,
	logger observability.Logger,
	metrics *observability.Metrics,
) (*rpc.Router, error) {
	chain := pipeline.New(
		middleware.WebSocketLogging(logger),
		middleware.NormalizeKeys(),
		middleware.AuthGate(validator, middleware.WithAuthLogger(logger)),
	)

	opts := []rpc.RouterOption{
		rpc.WithLogger(logger),
		rpc.WithMetrics(metrics),
		rpc.WithTokenCookie(cfg.Spec.Auth.TokenCookie),
		rpc.WithMaxBodyBytes(cfg.Spec.Listener.MaxBodyBytes),
		rpc.WithMaxFrameBytes(cfg.Spec.WebSocket.MaxFrameBytes),
	}
	if origins := cfg.Spec.WebSocket.AllowedOrigins; len(origins) > 0 {
		opts = append(opts, rpc.WithCheckOrigin(originChecker(origins)))
	}

	router := rpc.NewRouter(chain, opts...)
	if err := rpc.RegisterSystemProcedures(router, version); err != nil {
		return nil, fmt.Errorf("failed to register procedures: %w", err)
	}
	return router, nil
}

// initAccount returns nil when no password hash is configured.
func initAccount(
	cfg *config.GatewayConfig,
	signer *token.Signer,
	logger observability.Logger,
	metrics *observability.Metrics,
) (*account.Handler, error) {
	acc := cfg.Spec.Account
	if acc.PasswordHash == "" {
		logger.Warn("no account password hash configured, login is disabled")
		return nil, nil
	}

	handler, err := account.NewHandler(acc.PasswordHash, signer,
		account.WithLogger(logger),
		account.WithMetrics(metrics),
		account.WithTokenCookie(cfg.Spec.Auth.TokenCookie),
		account.WithSecureCookie(cfg.Spec.Auth.SecureCookie),
		account.WithRateLimit(acc.LoginRate, acc.LoginBurst),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account handler: %w", err)
	}
	return handler, nil
}

// backendCheck reports the backend unready while its breaker is open.
func backendCheck(p *proxy.Proxy) health.CheckFunc {
	return func(context.Context) error {
		if p.State() == gobreaker.StateOpen {
			return fmt.Errorf("circuit breaker open for %s", p.Target())
		}
		return nil
	}
}

// originChecker accepts upgrades without an Origin header and those whose
// origin is listed. "*" allows any origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.TrimSuffix(strings.ToLower(origin), "/")]
		return ok
	}
}

func serverConfig(l config.ListenerConfig) server.Config {
	cfg := server.DefaultConfig()
	cfg.Address = l.Address
	cfg.ReadTimeout = l.ReadTimeout.Duration()
	cfg.WriteTimeout = l.WriteTimeout.Duration()
	cfg.IdleTimeout = l.IdleTimeout.Duration()
	cfg.ShutdownTimeout = l.ShutdownTimeout.Duration()
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
