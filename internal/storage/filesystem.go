package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
)

// tempPrefix marks Put's staging files. Listings hide them.
const tempPrefix = ".put-"

// afterMkdir runs between creating a Put's directory and its temp file.
var afterMkdir = func(dir string) {}

type FilesystemBackend struct {
	basePath string
}

func NewFilesystemBackend(basePath string) *FilesystemBackend {
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	return &FilesystemBackend{
		basePath: basePath,
	}
}

func (fsb *FilesystemBackend) BasePath() string {
	return fsb.basePath
}

// Put writes into a temp file next to the target and renames it into place.
func (fsb *FilesystemBackend) Put(ctx context.Context, key string, data io.Reader) error {
	target, err := fsb.keyToPath(key)
	if err != nil {
		return fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	dir := target.Dir()
	tmp, err := fsb.createTemp(dir)
	if err != nil {
		logging.Errorf("[STORAGE] failed to create file for %s: %v", key, err)
		return fmt.Errorf("failed to create file for %s: %w", key, err)
	}
	tmpPath, _ := security.NewSecurePathFromExisting(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: data}); err != nil {
		tmp.Close()
		security.SafeRemoveIfExists(tmpPath)
		logging.Errorf("[STORAGE] failed to write %s: %v", key, err)
		return fmt.Errorf("failed to write data to %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		security.SafeRemoveIfExists(tmpPath)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := security.SafeRename(tmpPath, target); err != nil {
		security.SafeRemoveIfExists(tmpPath)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// createTemp makes dir and a temp file in it. A concurrent PruneEmptyDirs
// can remove the fresh, still empty dir in between, so that case is retried.
func (fsb *FilesystemBackend) createTemp(dir *security.SecurePath) (*os.File, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := security.SafeMkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		afterMkdir(dir.String())
		tmp, err := security.SafeCreateTemp(dir, tempPrefix+"*")
		if err == nil {
			return tmp, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (fsb *FilesystemBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := fsb.keyToPath(key)
	if err != nil {
		return nil, fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	file, err := security.SafeOpen(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file %s: %w", key, err)
	}
	return file, nil
}

func (fsb *FilesystemBackend) Delete(ctx context.Context, key string) error {
	p, err := fsb.keyToPath(key)
	if err != nil {
		return fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	if err := security.SafeRemoveIfExists(p); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (fsb *FilesystemBackend) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := fsb.ListWithInfo(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (fsb *FilesystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	p, err := fsb.keyToPath(key)
	if err != nil {
		return false, fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	info, err := security.SafeLstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence of %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// ListWithInfo walks regular files under prefix. Symlinks are reported by
// WalkDir as non-regular entries and are skipped, never followed.
func (fsb *FilesystemBackend) ListWithInfo(ctx context.Context, prefix string) ([]StorageInfo, error) {
	root, err := fsb.prefixToPath(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid storage prefix %s: %w", prefix, err)
	}
	var infos []StorageInfo
	if _, err := security.SafeLstat(root); os.IsNotExist(err) {
		return infos, nil
	}

	err = filepath.WalkDir(root.String(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		key := fsb.pathToKey(path)
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, StorageInfo{
				Key:          key,
				Size:         info.Size(),
				LastModified: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
	}
	return infos, nil
}

func (fsb *FilesystemBackend) GetInfo(ctx context.Context, key string) (*StorageInfo, error) {
	p, err := fsb.keyToPath(key)
	if err != nil {
		return nil, fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	info, err := security.SafeLstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get info for %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &StorageInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (fsb *FilesystemBackend) LocalPath(key string) (string, error) {
	p, err := fsb.keyToPath(key)
	if err != nil {
		return "", fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	return p.String(), nil
}

// PruneEmptyDirs removes empty directories below prefix, deepest first. The
// prefix directory itself is kept.
func (fsb *FilesystemBackend) PruneEmptyDirs(ctx context.Context, prefix string) (int, error) {
	root, err := fsb.prefixToPath(prefix)
	if err != nil {
		return 0, fmt.Errorf("invalid storage prefix %s: %w", prefix, err)
	}
	var dirs []string
	err = filepath.WalkDir(root.String(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != root.String() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	removed := 0
	for _, dir := range dirs {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		sp, err := security.NewSecurePathFromExisting(dir)
		if err != nil || !sp.Within(root) {
			continue
		}
		// os.Remove refuses non-empty directories, which is the check we want.
		if err := os.Remove(sp.String()); err == nil {
			removed++
		}
	}
	return removed, nil
}

// PruneStaleTemps removes Put staging files under prefix last modified before
// cutoff. Only regular files are considered.
func (fsb *FilesystemBackend) PruneStaleTemps(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	root, err := fsb.prefixToPath(prefix)
	if err != nil {
		return 0, fmt.Errorf("invalid storage prefix %s: %w", prefix, err)
	}
	removed := 0
	err = filepath.WalkDir(root.String(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		sp, err := security.NewSecurePathFromExisting(path)
		if err != nil || !sp.Within(root) {
			return nil
		}
		if err := security.SafeRemoveIfExists(sp); err != nil {
			logging.Warnf("[STORAGE] failed to remove stale temp file %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune temp files under %s: %w", prefix, err)
	}
	return removed, nil
}

func (fsb *FilesystemBackend) keyToPath(key string) (*security.SecurePath, error) {
	if err := security.ValidateStorageKey(key); err != nil {
		return nil, err
	}
	base, err := security.NewSecurePathFromExisting(fsb.basePath)
	if err != nil {
		return nil, err
	}
	return base.Join(filepath.FromSlash(key))
}

func (fsb *FilesystemBackend) prefixToPath(prefix string) (*security.SecurePath, error) {
	return fsb.keyToPath(strings.TrimSuffix(prefix, "/"))
}

func (fsb *FilesystemBackend) pathToKey(path string) string {
	relPath, err := filepath.Rel(fsb.basePath, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(relPath)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
