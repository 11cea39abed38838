package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/apierr"
	"github.com/vyrodovalexey/avaguard/internal/middleware"
	"github.com/vyrodovalexey/avaguard/internal/pipeline"
)

// ProcedureParam is the route parameter naming the procedure.
const ProcedureParam = "procedure"

// Response is the body of a successful HTTP call.
type Response struct {
	Result any `json:"result"`
}

// HandleHTTP serves POST /trpc/:procedure. The body, if any, must be JSON.
// Failures are left to the error translator.
func (r *Router) HandleHTTP(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.maxBodyBytes)

	payload, err := decodeBody(c)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	call := pipeline.NewCall(c.Request.Context(), c.Param(ProcedureParam), payload)
	call.Token = middleware.ExtractToken(c.Request, r.cookieName)

	if err := r.Invoke(call); err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Result: call.Result})
}

func decodeBody(c *gin.Context) (any, error) {
	raw, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apierr.Wrap(http.StatusRequestEntityTooLarge, "request body too large", err)
		}
		return nil, apierr.Wrap(http.StatusBadRequest, "failed to read request body", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apierr.Wrap(http.StatusBadRequest, "invalid JSON body", err)
	}
	return payload, nil
}
