package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func probe(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()

	engine := gin.New()
	h.RegisterRoutes(engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	return w.Code, report
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	h := NewHandler("1.2.3")
	h.AddCheck("failing", func(context.Context) error { return errors.New("down") })

	code, report := probe(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.NotEmpty(t, report.Uptime)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   StatusOK,
		},
		{
			name: "all passing",
			checks: map[string]CheckFunc{
				"backend": func(context.Context) error { return nil },
				"secret":  func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   StatusOK,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"backend": func(context.Context) error { return errors.New("breaker open") },
				"secret":  func(context.Context) error { return nil },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler("v")
			for name, check := range tt.checks {
				h.AddCheck(name, check)
			}

			code, report := probe(t, h, "/readyz")

			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantBody, report.Status)
			assert.Len(t, report.Checks, len(tt.checks))
		})
	}
}

func TestReadiness_ReportsCheckError(t *testing.T) {
	t.Parallel()

	h := NewHandler("v")
	h.AddCheck("backend", func(context.Context) error { return errors.New("breaker open") })

	_, report := probe(t, h, "/readyz")

	require.Contains(t, report.Checks, "backend")
	assert.Equal(t, StatusError, report.Checks["backend"].Status)
	assert.Equal(t, "breaker open", report.Checks["backend"].Error)
}

func TestReadiness_Timeout(t *testing.T) {
	t.Parallel()

	h := NewHandler("v", WithTimeout(20*time.Millisecond))
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, _ := probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadiness_Draining(t *testing.T) {
	t.Parallel()

	h := NewHandler("v")
	h.SetDraining(true)

	code, report := probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDraining, report.Status)

	h.SetDraining(false)
	code, _ = probe(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}
