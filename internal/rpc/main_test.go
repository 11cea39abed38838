package rpc

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vyrodovalexey/avaguard/internal/auth/token"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

var testSecret = []byte("rpc-test-secret-rpc-test-secret!")

type fixture struct {
	engine  *gin.Engine
	router  *Router
	metrics *observability.Metrics
	token   string
}

func newFixture(t *testing.T, opts ...RouterOption) *fixture {
	t.Helper()

	validator, err := token.NewValidator(testSecret)
	require.NoError(t, err)
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	tok, err := signer.Sign(context.Background())
	require.NoError(t, err)

	metrics := observability.NewMetrics("rpc")
	chain := pipeline.New(
		middleware.WebSocketLogging(nil),
		middleware.NormalizeKeys(),
		middleware.AuthGate(validator),
	)

	opts = append([]RouterOption{
		WithMetrics(metrics),
		WithCheckOrigin(func(*http.Request) bool { return true }),
	}, opts...)
	router := NewRouter(chain, opts...)
	require.NoError(t, RegisterSystemProcedures(router, "test-version"))

	engine := gin.New()
	engine.Use(middleware.ErrorTranslator(nil), middleware.Correlation(nil))
	engine.POST("/trpc/:procedure", router.HandleHTTP)
	engine.GET("/trpc/ws", router.HandleWebSocket)

	return &fixture{engine: engine, router: router, metrics: metrics, token: tok}
}
