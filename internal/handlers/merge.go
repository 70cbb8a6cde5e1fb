package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lukezje16/pdfmerger/internal/auth"
	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
)

type mergeRequest struct {
	FileIDs []string `json:"fileIds"`
}

// Merge concatenates the listed files in the given order.
func (h *Handler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation("invalid_request", "Invalid request"))
		return
	}
	if len(req.FileIDs) > 0 {
		rule := fmt.Sprintf("max=%d,dive,required,max=64", h.opts.MaxFilesPerSession)
		if err := h.validate.Var(req.FileIDs, rule); err != nil {
			respondError(c, apperrors.Validation("invalid_request", "Invalid request"))
			return
		}
	}

	res, err := h.mgr.Merge(c.Request.Context(), auth.SessionID(c), req.FileIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{
		"success":    true,
		"message":    message(c, "merge_success"),
		"downloadId": res.DownloadID,
		"filename":   res.Filename,
		"pageCount":  res.PageCount,
	}
	if len(res.Unconsumed) > 0 {
		body["unconsumed"] = res.Unconsumed
	}
	c.JSON(http.StatusOK, body)
}
