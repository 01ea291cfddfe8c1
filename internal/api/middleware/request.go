package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/edgeterm/edgeterm/internal/shared/id"
)

// RequestIDHeader carries the request identifier on responses and may be
// supplied by the caller for correlation.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key the request ID is stored under.
const requestIDKey = "request_id"

// RequestID assigns every request an identifier, honoring one supplied by
// the caller, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = string(id.NewRequestID())
		}

		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set(RequestIDHeader, reqID)
		c.Next()
	}
}

// GetRequestID returns the identifier assigned to this request, if any.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
