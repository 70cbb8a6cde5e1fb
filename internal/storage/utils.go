package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
)

// Materialize returns a local path holding the object at key. Filesystem
// backends hand back the stored file itself; others are spooled into scratch.
// release must be called once the caller is done with the path.
func Materialize(ctx context.Context, backend StorageBackend, key string, scratch *security.SecurePath) (string, func(), error) {
	if lp, ok := backend.(LocalPather); ok {
		p, err := lp.LocalPath(key)
		if err != nil {
			return "", nil, err
		}
		return p, func() {}, nil
	}

	reader, err := backend.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer reader.Close()

	if err := security.SafeMkdirAll(scratch, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	tmp, err := security.SafeCreateTemp(scratch, "src-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	sp, err := security.NewSecurePathFromExisting(tmp.Name())
	if err != nil {
		tmp.Close()
		return "", nil, err
	}
	release := func() {
		if err := security.SafeRemoveIfExists(sp); err != nil {
			logging.Warnf("[STORAGE] failed to remove scratch copy %s: %v", sp, err)
		}
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		release()
		return "", nil, fmt.Errorf("failed to spool %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		release()
		return "", nil, err
	}
	return sp.String(), release, nil
}

// PutFile uploads a local file to key.
func PutFile(ctx context.Context, backend StorageBackend, path, key string) error {
	sp, err := security.NewSecurePathFromExisting(path)
	if err != nil {
		return fmt.Errorf("invalid source path %s: %w", path, err)
	}
	f, err := security.SafeOpen(sp)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer f.Close()

	if err := backend.Put(ctx, key, f); err != nil {
		return fmt.Errorf("failed to store file %s: %w", key, err)
	}
	return nil
}
