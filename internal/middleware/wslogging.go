package middleware

import (
	"github.com/vyrodovalexey/avaguard/internal/correlation"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// WebSocketLogging logs each call that arrived over WebSocket with its
// path. Calls on other transports pass through without logging.
func WebSocketLogging(logger observability.Logger) pipeline.Stage {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(call *pipeline.Call, next pipeline.Next) error {
		if call.Transport != correlation.TransportWebSocket {
			return next()
		}

		correlation.LoggerFromContext(call.Context(), logger).Info("websocket call",
			observability.String("path", call.Path),
		)
		return next()
	}
}
