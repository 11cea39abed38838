package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
)

type wsReply struct {
	ID     json.RawMessage        `json:"id"`
	Result any                    `json:"result"`
	Error  *middleware.FrameError `json:"error"`
}

func dial(t *testing.T, srv *httptest.Server, tok string) (*websocket.Conn, *http.Response) {
	t.Helper()

	header := http.Header{}
	if tok != "" {
		header.Set("Cookie", middleware.DefaultTokenCookie+"="+tok)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/trpc/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, resp
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) wsReply {
	t.Helper()

	require.NoError(t, conn.NetConn().SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestHandleWebSocket_Calls(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	conn, resp := dial(t, srv, f.token)
	connID := resp.Header.Get(correlation.HeaderName)
	require.NotEmpty(t, connID)

	reply := roundTrip(t, conn, `{"id":1,"method":"system.ping"}`)
	assert.JSONEq(t, `1`, string(reply.ID))
	assert.Equal(t, "pong", reply.Result)
	assert.Nil(t, reply.Error)

	reply = roundTrip(t, conn, `{"id":"two","method":"system.echo","params":{"user_name":"a"}}`)
	assert.JSONEq(t, `"two"`, string(reply.ID))
	assert.Equal(t, map[string]any{"userName": "a"}, reply.Result)

	// Every call on the connection shares the connection's correlation scope.
	for i := 0; i < 3; i++ {
		reply = roundTrip(t, conn, `{"id":3,"method":"system.whoami"}`)
		identity, ok := reply.Result.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, connID, identity["correlationId"])
		assert.Equal(t, "ws", identity["transport"])
	}
}

func TestHandleWebSocket_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	tests := []struct {
		name        string
		token       string
		frame       string
		wantID      string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unknown procedure",
			token:       f.token,
			frame:       `{"id":7,"method":"apps.missing"}`,
			wantID:      `7`,
			wantStatus:  http.StatusNotFound,
			wantMessage: `procedure "apps.missing" not found`,
		},
		{
			name:        "missing token",
			frame:       `{"id":8,"method":"system.echo"}`,
			wantID:      `8`,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: middleware.MsgMissingToken,
		},
		{
			name:        "invalid frame",
			token:       f.token,
			frame:       `not json`,
			wantID:      `null`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid frame",
		},
		{
			name:        "missing method",
			token:       f.token,
			frame:       `{"id":9}`,
			wantID:      `9`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "method is required",
		},
		{
			name:        "truncated frame",
			token:       f.token,
			frame:       `{"id":10,"method":"system.echo","params":"unterminated}`,
			wantID:      `null`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, _ := dial(t, srv, tt.token)
			reply := roundTrip(t, conn, tt.frame)

			assert.JSONEq(t, tt.wantID, string(reply.ID))
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.wantStatus, reply.Error.Status)
			assert.Equal(t, tt.wantMessage, reply.Error.Message)
		})
	}
}

func TestHandleWebSocket_ErrorDoesNotCloseConnection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	conn, _ := dial(t, srv, "")

	reply := roundTrip(t, conn, `{"id":1,"method":"system.whoami"}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, http.StatusUnauthorized, reply.Error.Status)

	reply = roundTrip(t, conn, `{"id":2,"method":"system.ping"}`)
	assert.Nil(t, reply.Error)
	assert.Equal(t, "pong", reply.Result)
}

func TestHandleWebSocket_ReleasesConnection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	conn, _ := dial(t, srv, f.token)
	roundTrip(t, conn, `{"id":1,"method":"system.ping"}`)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		body := scrapeMetrics(t, f)
		return strings.Contains(body, "rpc_ws_connections_active 0")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, scrapeMetrics(t, f), `rpc_ws_calls_total{status="200"} 1`)
}

func TestHandleWebSocket_RejectsPlainRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trpc/ws", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReply_MarshalJSON(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(Reply{ID: json.RawMessage(`1`), Result: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"result":false}`, string(out))

	out, err = json.Marshal(Reply{ID: json.RawMessage(`2`), Error: &middleware.FrameError{Status: 404, Message: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"error":{"status":404,"message":"x"}}`, string(out))
}

func scrapeMetrics(t *testing.T, f *fixture) string {
	t.Helper()

	w := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}
