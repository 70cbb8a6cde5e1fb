package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/i18n"
	"github.com/lukezje16/pdfmerger/internal/logging"
)

// respondError writes err as {success:false, message, error}. The message is
// localized when the error key has a translation.
func respondError(c *gin.Context, err error) {
	e := apperrors.As(err)
	status := e.HTTPStatus()
	if status >= 500 {
		logging.Errorf("[HTTP] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	msg, ok := i18n.FromContext(c.Request.Context()).Lookup("backend.errors."+e.Key, e.Data)
	if !ok {
		msg = e.Message
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": msg,
		"error":   e.Key,
	})
}
