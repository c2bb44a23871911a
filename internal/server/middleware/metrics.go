package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/metrics"
)

// WithMetrics records a counter and latency histogram per served request.
func WithMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		metrics.RecordRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
