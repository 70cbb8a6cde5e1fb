package security

import (
	"fmt"
	"path/filepath"
)

// SecurePath is a filesystem path that has already passed validation. The
// Safe* helpers only accept SecurePath so unvalidated strings never reach os.
type SecurePath struct {
	path string
}

// NewSecurePath validates a relative path.
func NewSecurePath(rel string) (*SecurePath, error) {
	if err := ValidateFilePath(rel); err != nil {
		return nil, err
	}
	return &SecurePath{path: filepath.Clean(rel)}, nil
}

// NewSecurePathFromExisting wraps an absolute path produced by the service
// itself (configured roots, storage lookups).
func NewSecurePathFromExisting(abs string) (*SecurePath, error) {
	if err := ValidateExistingFilePath(abs); err != nil {
		return nil, err
	}
	return &SecurePath{path: filepath.Clean(abs)}, nil
}

// NewSecurePathIn joins rel under base and rejects anything that escapes.
func NewSecurePathIn(base *SecurePath, rel string) (*SecurePath, error) {
	if base == nil {
		return nil, fmt.Errorf("nil base path")
	}
	joined, err := SafeJoin(base.path, rel)
	if err != nil {
		return nil, err
	}
	return &SecurePath{path: joined}, nil
}

func (sp *SecurePath) String() string {
	if sp == nil {
		return ""
	}
	return sp.path
}

func (sp *SecurePath) Dir() *SecurePath {
	if sp == nil {
		return nil
	}
	return &SecurePath{path: filepath.Dir(sp.path)}
}

func (sp *SecurePath) Base() string {
	if sp == nil {
		return ""
	}
	return filepath.Base(sp.path)
}

// Join appends a relative element, rejecting traversal.
func (sp *SecurePath) Join(elem string) (*SecurePath, error) {
	if sp == nil {
		return nil, fmt.Errorf("cannot join onto nil SecurePath")
	}
	return NewSecurePathIn(sp, elem)
}

// Within reports whether sp lies below root.
func (sp *SecurePath) Within(root *SecurePath) bool {
	if sp == nil || root == nil {
		return false
	}
	return IsWithin(root.path, sp.path)
}
