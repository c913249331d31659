package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/custodia-labs/kb/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID propagates or assigns an X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs one line per request through the process logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		format := "[HTTP] %s %s %d %v id=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.GetString("request_id")}
		switch {
		case status >= 500:
			logger.Error(format, args...)
		case status >= 400:
			logger.Warn(format, args...)
		default:
			logger.Debug(format, args...)
		}
	}
}
