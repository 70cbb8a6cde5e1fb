// Package validator decides whether an upload is a PDF worth keeping.
package validator

import (
	"bytes"
	"fmt"
	"io"
	"mime"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/logging"
)

const (
	pdfMime = "application/pdf"
	// sniffLimit matches mimetype's own default read limit.
	sniffLimit = 3072
)

var pdfMagic = []byte("%PDF")

// Rejection keys, also used as translation keys.
const (
	KeyNoFile        = "no_file"
	KeyTooLarge      = "file_too_large"
	KeyInvalidType   = "invalid_type"
	KeyInvalidFormat = "invalid_format"
)

type Validator struct {
	MaxSize int64
}

func New(maxSize int64) *Validator {
	return &Validator{MaxSize: maxSize}
}

// Validate checks, in order: size, sniffed content type, PDF magic bytes.
// The client-declared MIME type is only logged when it disagrees. r is left
// positioned at offset 0 on success.
func (v *Validator) Validate(r io.ReadSeeker, declaredSize int64, declaredMime string) error {
	if r == nil {
		return apperrors.Validation(KeyNoFile, "No file was uploaded")
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return apperrors.IO("measure upload", err)
	}
	if declaredSize > size {
		size = declaredSize
	}
	if size > v.MaxSize {
		return apperrors.TooLarge(KeyTooLarge, fmt.Sprintf("File size exceeds %s limit", FormatSize(v.MaxSize))).
			With("limit", FormatSize(v.MaxSize))
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return apperrors.IO("rewind upload", err)
	}

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return apperrors.IO("read upload", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if declared, _, _ := mime.ParseMediaType(declaredMime); declared != "" && declared != pdfMime {
		logging.Debugf("[UPLOAD] declared type %q, detected %q", declared, detected.String())
	}
	if n == 0 || !detected.Is(pdfMime) {
		return apperrors.Validation(KeyInvalidType, "Invalid file type. Only PDF files are allowed.")
	}
	if !bytes.HasPrefix(head, pdfMagic) {
		return apperrors.Validation(KeyInvalidFormat, "Invalid PDF file format")
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return apperrors.IO("rewind upload", err)
	}
	return nil
}
