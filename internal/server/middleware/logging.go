package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/tracing"
)

// WithLoggingTracing save the trace ID and request ID to the request context.
// So the logger can log the trace ID and request ID in the next logs.
func WithLoggingTracing(config tracing.Config) gin.HandlerFunc {
	requestHeader := config.RequestHeader
	if requestHeader == "" {
		requestHeader = "TV-Request-Id"
	}

	return func(c *gin.Context) {
		// Use the trace header from the request first.
		traceID := getTraceIDFromHeader(c, config)
		if traceID == "" && c.Request.Body != nil {
			if fromBody, err := tryGetTraceIDFromBody(c, config); err == nil {
				traceID = fromBody
			}
		}

		if traceID == "" {
			traceID = tracing.GenerateTraceID()
		}

		// Generate request ID for each request
		requestID := tracing.GenerateRequestID()

		// Set request ID header in response
		c.Header(requestHeader, requestID)

		ctx := tracing.WithTraceID(c.Request.Context(), traceID)
		ctx = tracing.WithRequestID(ctx, requestID)

		operationName := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		ctx = tracing.WithOperationName(ctx, operationName)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
