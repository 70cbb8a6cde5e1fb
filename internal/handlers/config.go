package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lukezje16/pdfmerger/internal/i18n"
	"github.com/lukezje16/pdfmerger/internal/validator"
	"github.com/lukezje16/pdfmerger/internal/version"
)

// Config returns the limits the client should enforce before uploading.
func (h *Handler) Config(c *gin.Context) {
	normalizer := false
	if h.opts.NormalizerAvailable != nil {
		normalizer = h.opts.NormalizerAvailable()
	}
	c.JSON(http.StatusOK, gin.H{
		"maxFileSize":          h.opts.MaxFileSize,
		"maxFileSizeFormatted": validator.FormatSize(h.opts.MaxFileSize),
		"maxFilesPerSession":   h.opts.MaxFilesPerSession,
		"fileExpirySeconds":    int(h.opts.FileExpiry.Seconds()),
		"normalizerAvailable":  normalizer,
		"language":             i18n.GetLanguageFromContext(c.Request.Context()),
		"languages":            i18n.Supported(),
	})
}

func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
