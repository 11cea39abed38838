package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// Request is an inbound WebSocket frame.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Reply is an outbound WebSocket frame. A reply carries an error when
// Error is set and a result otherwise.
type Reply struct {
	ID     json.RawMessage        `json:"id"`
	Result any                    `json:"result,omitempty"`
	Error  *middleware.FrameError `json:"error,omitempty"`
}

// MarshalJSON always emits the result member of a successful reply, even
// when the result is a zero value.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			ID    json.RawMessage        `json:"id"`
			Error *middleware.FrameError `json:"error"`
		}{ID: r.ID, Error: r.Error})
	}
	return json.Marshal(struct {
		ID     json.RawMessage `json:"id"`
		Result any             `json:"result"`
	}{ID: r.ID, Result: r.Result})
}

var nullID = json.RawMessage("null")

// HandleWebSocket serves GET /trpc/ws. The connection shares one
// correlation scope; every frame becomes a call run through the chain.
// Frames are processed one at a time in arrival order. The credential is
// taken from the upgrade request.
func (r *Router) HandleWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     r.checkOrigin,
	}

	header := http.Header{}
	if id := middleware.GetCorrelationID(c); id != "" {
		header.Set(correlation.HeaderName, id)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		// The upgrader has already written the HTTP error.
		middleware.Fail(c, apierr.Wrap(http.StatusBadRequest, "websocket upgrade failed", err))
		return
	}

	ctx := c.Request.Context()
	logger := correlation.LoggerFromContext(ctx, r.logger)
	token := middleware.ExtractToken(c.Request, r.cookieName)

	r.connOpened()
	defer r.connClosed()
	logger.Debug("websocket connection opened")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(r.maxFrameBytes)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				ctx.Err() == nil {
				logger.Warn("websocket read failed", observability.Error(err))
			}
			logger.Debug("websocket connection closed")
			return
		}

		reply := r.serveFrame(c, data, token, logger)
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", observability.Error(err))
			return
		}
	}
}

func (r *Router) serveFrame(c *gin.Context, data []byte, token any, logger observability.Logger) Reply {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return r.errorReply(nullID, apierr.Wrap(http.StatusBadRequest, "invalid frame", err), "", logger)
	}

	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if req.Method == "" {
		return r.errorReply(id, apierr.New(http.StatusBadRequest, "method is required"), "", logger)
	}

	var payload any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &payload); err != nil {
			return r.errorReply(id, apierr.Wrap(http.StatusBadRequest, "invalid params", err), req.Method, logger)
		}
	}

	call := pipeline.NewCall(c.Request.Context(), req.Method, payload)
	call.Transport = correlation.TransportWebSocket
	call.Token = token

	if err := r.Invoke(call); err != nil {
		return r.errorReply(id, err, req.Method, logger)
	}

	r.recordCall(http.StatusOK)
	return Reply{ID: id, Result: call.Result}
}

func (r *Router) errorReply(id json.RawMessage, err error, route string, logger observability.Logger) Reply {
	middleware.LogError(logger, err, route)

	frame := middleware.ErrorFrame(err)
	r.recordCall(frame.Status)
	return Reply{ID: id, Error: &frame}
}

func (r *Router) connOpened() {
	if r.metrics != nil {
		r.metrics.WebSocketOpened()
	}
}

func (r *Router) connClosed() {
	if r.metrics != nil {
		r.metrics.WebSocketClosed()
	}
}

func (r *Router) recordCall(status int) {
	if r.metrics != nil {
		r.metrics.RecordWebSocketCall(status)
	}
}
