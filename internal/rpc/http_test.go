package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
)

func postCall(t *testing.T, f *fixture, procedure, body, tok string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/trpc/"+procedure, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.AddCookie(&http.Cookie{Name: middleware.DefaultTokenCookie, Value: tok})
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp, "result")
	return resp["result"]
}

func TestHandleHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		procedure  string
		body       string
		withToken  bool
		wantStatus int
		wantBody   string
		wantResult any
	}{
		{
			name:       "public procedure without token",
			procedure:  ProcPing,
			wantStatus: http.StatusOK,
			wantResult: "pong",
		},
		{
			name:       "public version",
			procedure:  ProcVersion,
			wantStatus: http.StatusOK,
			wantResult: "test-version",
		},
		{
			name:       "protected procedure without token",
			procedure:  ProcEcho,
			body:       `{"a":1}`,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `"missing token"`,
		},
		{
			name:       "echo normalizes keys",
			procedure:  ProcEcho,
			body:       `{"user_name":"a","nested_obj":{"inner-key":true}}`,
			withToken:  true,
			wantStatus: http.StatusOK,
			wantResult: map[string]any{"userName": "a", "nestedObj": map[string]any{"innerKey": true}},
		},
		{
			name:       "echo without body",
			procedure:  ProcEcho,
			withToken:  true,
			wantStatus: http.StatusOK,
			wantResult: nil,
		},
		{
			name:       "unknown procedure",
			procedure:  "apps.missing",
			withToken:  true,
			wantStatus: http.StatusNotFound,
			wantBody:   `"procedure \"apps.missing\" not found"`,
		},
		{
			name:       "invalid JSON",
			procedure:  ProcEcho,
			body:       `{"broken`,
			withToken:  true,
			wantStatus: http.StatusBadRequest,
			wantBody:   `"invalid JSON body"`,
		},
	}

	f := newFixture(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tok := ""
			if tt.withToken {
				tok = f.token
			}

			w := postCall(t, f, tt.procedure, tt.body, tok)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
				return
			}
			assert.Equal(t, tt.wantResult, decodeResult(t, w))
		})
	}
}

func TestHandleHTTP_WhoAmI(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := postCall(t, f, ProcWhoAmI, "", f.token)

	require.Equal(t, http.StatusOK, w.Code)
	result, ok := decodeResult(t, w).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, w.Header().Get(correlation.HeaderName), result["correlationId"])
	assert.Equal(t, "http", result["transport"])
}

func TestHandleHTTP_BearerToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/trpc/"+ProcWhoAmI, nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHTTP_InvalidToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := postCall(t, f, ProcWhoAmI, "", f.token+"x")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `"invalid token"`, w.Body.String())
}

func TestHandleHTTP_BodyTooLarge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithMaxBodyBytes(16))
	w := postCall(t, f, ProcEcho, `{"payload":"`+strings.Repeat("x", 64)+`"}`, f.token)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
