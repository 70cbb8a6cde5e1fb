// Package handlers is the HTTP surface of the merge service.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukezje16/pdfmerger/internal/auth"
	"github.com/lukezje16/pdfmerger/internal/i18n"
	"github.com/lukezje16/pdfmerger/internal/manager"
)

type Options struct {
	MaxFileSize        int64
	MaxFilesPerSession int
	FileExpiry         time.Duration
	// NormalizerAvailable reports whether the fallback re-encoder is installed.
	NormalizerAvailable func() bool
	// HealthCheck is probed by /healthz. Nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

type Handler struct {
	mgr      *manager.Manager
	opts     Options
	validate *validator.Validate
}

func New(mgr *manager.Manager, opts Options) *Handler {
	return &Handler{mgr: mgr, opts: opts, validate: validator.New()}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine, sessions *auth.Sessions, limiter *auth.RateLimiter) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(i18n.LanguageMiddleware(), sessions.Middleware())
	api.GET("/config", h.Config)
	api.GET("/version", h.Version)
	api.POST("/upload", limiter.Middleware(), h.Upload)
	api.GET("/files", h.ListFiles)
	api.DELETE("/files/:id", h.RemoveFile)
	api.POST("/merge", h.Merge)
	api.GET("/download/:id", h.Download)

	r.GET("/download", i18n.LanguageMiddleware(), sessions.Middleware(), h.Download)
}

// message translates a backend.messages key for the request.
func message(c *gin.Context, key string) string {
	return i18n.TFromContext(c.Request.Context(), "backend.messages."+key)
}

func (h *Handler) Health(c *gin.Context) {
	if h.opts.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
