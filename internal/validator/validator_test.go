package validator

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func rejectionKey(t *testing.T, err error) string {
	t.Helper()
	var e *apperrors.Error
	require.True(t, errors.As(err, &e), "want *errors.Error, got %v", err)
	return e.Key
}

func TestValidateAcceptsPDF(t *testing.T) {
	v := New(1 << 20)
	r := strings.NewReader(minimalPDF)
	require.NoError(t, v.Validate(r, int64(len(minimalPDF)), "application/pdf"))

	pos, _ := r.Seek(0, io.SeekCurrent)
	assert.Zero(t, pos, "reader must be rewound")
}

func TestValidateIgnoresDeclaredMime(t *testing.T) {
	v := New(1 << 20)
	assert.NoError(t, v.Validate(strings.NewReader(minimalPDF), 0, "application/octet-stream"))

	err := v.Validate(strings.NewReader("GIF89a......"), 0, "application/pdf")
	assert.Equal(t, KeyInvalidType, rejectionKey(t, err))
}

func TestValidateOrder(t *testing.T) {
	v := New(64)

	tests := []struct {
		name     string
		body     string
		declared int64
		wantKey  string
		wantType apperrors.ErrorType
	}{
		{"oversized non-pdf reports size first", strings.Repeat("x", 100), 100, KeyTooLarge, apperrors.TypeTooLarge},
		{"declared size over limit", minimalPDF[:20], 1 << 30, KeyTooLarge, apperrors.TypeTooLarge},
		{"plain text", "hello world", 11, KeyInvalidType, apperrors.TypeValidation},
		{"empty", "", 0, KeyInvalidType, apperrors.TypeValidation},
		{"bom before header", "\xEF\xBB\xBF%PDF-1.4\n%%EOF\n", 0, KeyInvalidFormat, apperrors.TypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(bytes.NewReader([]byte(tt.body)), tt.declared, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantKey, rejectionKey(t, err))
			assert.Equal(t, tt.wantType, apperrors.As(err).Type)
		})
	}
}

func TestValidateBoundary(t *testing.T) {
	body := minimalPDF
	v := New(int64(len(body)))
	assert.NoError(t, v.Validate(strings.NewReader(body), int64(len(body)), ""))

	v = New(int64(len(body)) - 1)
	assert.Equal(t, KeyTooLarge, rejectionKey(t, v.Validate(strings.NewReader(body), 0, "")))
}

func TestValidateNilReader(t *testing.T) {
	assert.Equal(t, KeyNoFile, rejectionKey(t, New(10).Validate(nil, 0, "")))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{1 << 20, "1 MB"},
		{50 << 20, "50 MB"},
		{1288490189, "1.2 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.n), "%d", tt.n)
	}
}
