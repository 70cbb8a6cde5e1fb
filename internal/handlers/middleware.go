package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lukezje16/pdfmerger/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and logs it once finished.
// Probe endpoints are logged at debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		level := slog.LevelInfo
		if path == "/healthz" || path == "/metrics" {
			level = slog.LevelDebug
		}
		logging.Logger().Log(c.Request.Context(), level, "[HTTP] request",
			"request_id", id,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond).String(),
			"ip", c.ClientIP(),
		)
	}
}
