package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newObservedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func requestScope(id string, transport correlation.Transport, logger observability.Logger) context.Context {
	return correlation.NewContext(context.Background(), correlation.New(id, transport, logger))
}

func serve(t *testing.T, r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type stubValidator struct {
	ok  bool
	err error

	calls int
	last  any
}

func (s *stubValidator) Validate(_ context.Context, tok any) (bool, error) {
	s.calls++
	s.last = tok
	return s.ok, s.err
}
