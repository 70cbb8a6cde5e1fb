package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lukezje16/pdfmerger/internal/auth"
	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/manager"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/validator"
)

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 1 << 20

type fileResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"sizeFormatted"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

func toFileResponse(f session.File) fileResponse {
	return fileResponse{
		ID:            f.ID,
		Name:          f.OriginalName,
		Size:          f.Size,
		SizeFormatted: validator.FormatSize(f.Size),
		UploadedAt:    f.UploadedAt,
	}
}

// Upload accepts one PDF in the "pdf" (or "file") multipart field.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxFileSize+multipartOverhead)

	fh, err := formFile(c, "pdf", "file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			limit := validator.FormatSize(h.opts.MaxFileSize)
			respondError(c, apperrors.TooLarge(validator.KeyTooLarge, "File size exceeds "+limit+" limit").With("limit", limit))
			return
		}
		respondError(c, apperrors.Validation(validator.KeyNoFile, "No file was uploaded"))
		return
	}

	body, err := fh.Open()
	if err != nil {
		respondError(c, apperrors.IO("failed to open upload", err))
		return
	}
	defer body.Close()

	file, err := h.mgr.Upload(c.Request.Context(), auth.SessionID(c), manager.Upload{
		Name: fh.Filename,
		Size: fh.Size,
		MIME: fh.Header.Get("Content-Type"),
		Body: body,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message(c, "upload_success"),
		"file":    toFileResponse(*file),
	})
}

func formFile(c *gin.Context, fields ...string) (*multipart.FileHeader, error) {
	var err error
	for _, field := range fields {
		var fh *multipart.FileHeader
		if fh, err = c.FormFile(field); err == nil {
			return fh, nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
	}
	return nil, err
}

func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.mgr.List(c.Request.Context(), auth.SessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": out})
}

// RemoveFile succeeds whether or not the file still exists.
func (h *Handler) RemoveFile(c *gin.Context) {
	if err := h.mgr.Remove(c.Request.Context(), auth.SessionID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message(c, "file_removed")})
}
