package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lukezje16/pdfmerger/internal/auth"
	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
)

// Download streams a merged PDF. The id comes from the path or ?id=.
func (h *Handler) Download(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		id = c.Query("id")
	}
	if err := h.validate.Var(id, "required,len=32,hexadecimal,lowercase"); err != nil {
		respondError(c, apperrors.Validation("invalid_download_id", "Invalid download ID"))
		return
	}

	artifact, rc, err := h.mgr.Download(c.Request.Context(), auth.SessionID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, artifact.Size, "application/pdf", rc, map[string]string{
		"Content-Disposition":    fmt.Sprintf(`attachment; filename="%s"`, artifact.Filename),
		"Cache-Control":          "private, max-age=0, must-revalidate",
		"X-Content-Type-Options": "nosniff",
	})
}
