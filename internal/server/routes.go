package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/account"
	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/health"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/proxy"
	"github.com/vyrodovalexey/avaguard/internal/rpc"
)

// Route paths served by the gateway itself.
const (
	RPCPath       = "/trpc/:procedure"
	WebSocketPath = "/trpc/ws"
	AccountPath   = "/v1/account"
	HealthPath    = "/healthz"
	ReadyPath     = "/readyz"
)

// DefaultMetricsPath is where Prometheus metrics are served.
const DefaultMetricsPath = "/metrics"

// Errors returned by NewEngine.
var (
	ErrNoValidator = errors.New("token validator is required")
	ErrNoRPCRouter = errors.New("rpc router is required")
)

// Deps are the components the engine routes to. Account, Proxy, Metrics,
// Tracer and Health are optional.
type Deps struct {
	Logger      observability.Logger
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	Validator   middleware.TokenValidator
	RPC         *rpc.Router
	Account     *account.Handler
	Proxy       *proxy.Proxy
	Health      *health.Handler
	MetricsPath string
	TokenCookie string
	// Whitelist lists path prefixes proxied without a token.
	Whitelist      []string
	AccessLog      bool
	TrustedProxies []string
}

// NewEngine builds the gin engine. Middleware runs in this order: error
// translation, correlation, tracing, metrics, access log. Paths not routed
// here are proxied to the backend behind the proxy token gate.
func NewEngine(deps Deps) (*gin.Engine, error) {
	if deps.Validator == nil {
		return nil, ErrNoValidator
	}
	if deps.RPC == nil {
		return nil, ErrNoRPCRouter
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	metricsPath := deps.MetricsPath
	if metricsPath == "" {
		metricsPath = DefaultMetricsPath
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}

	quiet := []string{HealthPath, ReadyPath, metricsPath}

	engine.Use(
		middleware.ErrorTranslator(logger),
		middleware.Correlation(logger),
	)
	if deps.Tracer != nil {
		engine.Use(middleware.Tracing(deps.Tracer, quiet...))
	}
	if deps.Metrics != nil {
		engine.Use(middleware.Metrics(deps.Metrics))
	}
	if deps.AccessLog {
		engine.Use(middleware.AccessLog(logger, quiet...))
	}

	if deps.Health != nil {
		deps.Health.RegisterRoutes(engine)
	}
	if deps.Metrics != nil {
		engine.GET(metricsPath, gin.WrapH(deps.Metrics.Handler()))
	}

	engine.POST(RPCPath, deps.RPC.HandleHTTP)
	engine.GET(WebSocketPath, deps.RPC.HandleWebSocket)

	if deps.Account != nil {
		deps.Account.Register(engine.Group(AccountPath))
	}

	if deps.Proxy != nil {
		engine.NoRoute(
			middleware.RequireProxyToken(deps.Validator,
				middleware.WithAuthLogger(logger),
				middleware.WithTokenCookie(deps.TokenCookie),
				middleware.WithWhitelist(deps.Whitelist...),
			),
			deps.Proxy.Handle,
		)
	} else {
		engine.NoRoute(notFound)
	}

	return engine, nil
}

func notFound(c *gin.Context) {
	middleware.Fail(c, apierr.New(http.StatusNotFound, "not found"))
}
