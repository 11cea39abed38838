package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Metrics records request count, latency and in-flight requests. Requests
// are labelled with the matched route pattern so that path parameters do
// not inflate label cardinality.
func Metrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		metrics.IncActiveRequests()
		defer metrics.DecActiveRequests()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = observability.UnmatchedRoute
		}
		metrics.RecordRequest(c.Request.Method, route, ResponseStatus(c), time.Since(start))
	}
}
