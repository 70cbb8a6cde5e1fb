package security

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path contains directory traversal sequences")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrRelativePath   = errors.New("path must be absolute")
	ErrEmptyPath      = errors.New("path cannot be empty")
	ErrInvalidPath    = errors.New("invalid path")
	ErrOutsideBaseDir = errors.New("path is outside allowed base directory")
)

// MaxFilenameLength bounds the sanitized part of stored upload names.
const MaxFilenameLength = 100

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// ValidateFilePath accepts clean relative paths only.
func ValidateFilePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.Contains(path, "\x00") {
		return ErrInvalidPath
	}
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}
	if strings.Contains(path, "..") {
		return ErrPathTraversal
	}
	clean := filepath.Clean(path)
	if clean == "." || strings.HasPrefix(clean, "../") {
		return ErrPathTraversal
	}
	return nil
}

// ValidateStorageKey is stricter than ValidateFilePath: keys are slash
// separated and may not contain empty or dot segments.
func ValidateStorageKey(key string) error {
	if err := ValidateFilePath(key); err != nil {
		return err
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrPathTraversal
		}
	}
	return nil
}

// ValidateExistingFilePath accepts absolute paths that do not climb.
func ValidateExistingFilePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.Contains(path, "\x00") {
		return ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		return ErrRelativePath
	}
	if strings.Contains(path, "..") {
		return ErrPathTraversal
	}
	return nil
}

// IsWithin reports whether path lies strictly below base once both are
// cleaned. Neither path is resolved through symlinks.
func IsWithin(base, path string) bool {
	base = filepath.Clean(base)
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SafeJoin joins a relative user path under basePath after validating it.
func SafeJoin(basePath, userPath string) (string, error) {
	if basePath == "" {
		return "", ErrEmptyPath
	}
	if err := ValidateFilePath(userPath); err != nil {
		return "", err
	}
	joined := filepath.Join(basePath, userPath)
	if !IsWithin(basePath, joined) {
		return "", ErrOutsideBaseDir
	}
	return joined, nil
}

// SanitizeFilename maps a client-supplied name to the stored form: only
// [A-Za-z0-9._-] survive, everything else becomes '_', and the result is
// truncated to maxLen bytes. Directory components are dropped first.
func SanitizeFilename(name string, maxLen int) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
	}
	switch name {
	case "", ".", "..":
		return "document.pdf"
	}
	return name
}
