package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// FrameError is the error member of a WebSocket response frame.
type FrameError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ErrorTranslator turns the last error recorded on the gin context, or a
// recovered panic, into the response. The status is derived with
// apierr.DeriveStatus and the body is the JSON-encoded message string.
// The failure is logged before anything is written. When the response has
// already been written the failure is only logged.
//
// It must be registered before every other middleware.
func ErrorTranslator(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if r == http.ErrAbortHandler {
					panic(r)
				}
				translate(c, logger, panicError(r), debug.Stack())
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		translate(c, logger, c.Errors.Last().Err, nil)
	}
}

func translate(c *gin.Context, logger observability.Logger, err error, panicStack []byte) {
	route := routeOf(err, c.Request.URL.RequestURI())
	status := apierr.DeriveStatus(err)
	message := apierr.DeriveMessage(err)

	var extra []observability.Field
	if panicStack != nil {
		extra = append(extra, observability.ByteString("stack", panicStack))
	}
	LogError(requestLogger(c, logger), err, route, extra...)

	if c.Writer.Written() {
		return
	}
	c.AbortWithStatusJSON(status, message)
}

// LogError logs a pipeline failure with its message, route, and stack.
// Server errors are logged at error level, client errors at warn level.
func LogError(logger observability.Logger, err error, route string, extra ...observability.Field) {
	status := apierr.DeriveStatus(err)

	fields := make([]observability.Field, 0, 5+len(extra))
	fields = append(fields,
		observability.String("message", apierr.DeriveMessage(err)),
		observability.String("route", route),
		observability.Int("status", status),
		observability.Error(err),
	)
	if stack := apierr.StackOf(err); stack != "" {
		fields = append(fields, observability.String("stack", stack))
	}
	fields = append(fields, extra...)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
		return
	}
	logger.Warn("request failed", fields...)
}

// ErrorFrame applies the translator's derivation rules to a failure raised
// while serving a WebSocket call. The caller logs it with LogError first.
func ErrorFrame(err error) FrameError {
	return FrameError{
		Status:  apierr.DeriveStatus(err),
		Message: apierr.DeriveMessage(err),
	}
}

// ResponseStatus returns the status the client will receive: the written
// status, or the status the translator will derive from a pending error.
func ResponseStatus(c *gin.Context) int {
	if !c.Writer.Written() && len(c.Errors) > 0 {
		return apierr.DeriveStatus(c.Errors.Last().Err)
	}
	return c.Writer.Status()
}

// Fail records err on the context and stops the handler chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// routeOf returns the route named by the envelope in err, or fallback.
func routeOf(err error, fallback string) string {
	var e *apierr.Error
	if errors.As(err, &e) && e.Route != "" {
		return e.Route
	}
	return fallback
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
