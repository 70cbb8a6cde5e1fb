// Package registry tracks the documents a session owns: uploads awaiting a
// merge and merged outputs awaiting download. Metadata goes to a
// session.Store and bytes to a storage backend.
package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/blake2b"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
)

// Files is the per-session upload registry.
type Files struct {
	store session.Store
	blobs storage.StorageBackend
	clock clockwork.Clock
}

func NewFiles(store session.Store, blobs storage.StorageBackend, clock clockwork.Clock) *Files {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Files{store: store, blobs: blobs, clock: clock}
}

// maxDisplayName bounds the recorded original name, in bytes.
const maxDisplayName = 255

// displayName cuts name to maxDisplayName bytes without splitting a rune.
func displayName(name string) string {
	if len(name) <= maxDisplayName {
		return name
	}
	cut := maxDisplayName
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

type byteCounter int64

func (c *byteCounter) Write(p []byte) (int, error) {
	*c += byteCounter(len(p))
	return len(p), nil
}

// Put stores r under a fresh id and records it for sid. The stored name is
// the id followed by the sanitized original name.
func (f *Files) Put(ctx context.Context, sid, originalName string, r io.Reader) (*session.File, error) {
	originalName = displayName(originalName)
	ns, err := f.namespace(ctx, sid, "")
	if err != nil {
		return nil, err
	}
	id, err := session.NewToken(session.FileIDBytes)
	if err != nil {
		return nil, apperrors.Internal("failed to generate file id", err)
	}
	stored := id + "_" + security.SanitizeFilename(originalName, security.MaxFilenameLength)
	key := storage.UploadKey(ns, stored)

	h, _ := blake2b.New256(nil)
	var n byteCounter
	if err := f.blobs.Put(ctx, key, io.TeeReader(r, io.MultiWriter(h, &n))); err != nil {
		return nil, apperrors.IO("failed to store upload", err)
	}

	file := session.File{
		ID:           id,
		OriginalName: originalName,
		StoredName:   stored,
		Key:          key,
		Size:         int64(n),
		Checksum:     hex.EncodeToString(h.Sum(nil)),
		UploadedAt:   f.clock.Now().UTC(),
	}
	err = f.store.PutFile(ctx, sid, file)
	if errors.Is(err, session.ErrNotFound) {
		// The session row was pruned between minting and recording.
		if _, err = f.namespace(ctx, sid, ns); err == nil {
			err = f.store.PutFile(ctx, sid, file)
		}
	}
	if err != nil {
		f.deleteBlob(ctx, key)
		return nil, apperrors.Internal("failed to record upload", err)
	}

	logging.Logf("[UPLOAD] stored %s (%d bytes) as %s", originalName, file.Size, key)
	return &file, nil
}

// Get returns the file only if sid owns it and its blob still exists. A row
// whose blob is gone is dropped.
func (f *Files) Get(ctx context.Context, sid, id string) (*session.File, error) {
	file, err := f.store.GetFile(ctx, sid, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fileNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up file", err)
	}

	ok, err := f.blobs.Exists(ctx, file.Key)
	if err != nil {
		return nil, apperrors.IO("failed to check file", err)
	}
	if !ok {
		logging.Warnf("[UPLOAD] blob for %s vanished, dropping record", id)
		if _, _, err := f.store.TakeFile(ctx, sid, id); err != nil {
			logging.Warnf("[UPLOAD] failed to drop record %s: %v", id, err)
		}
		return nil, fileNotFound(id)
	}
	return &file, nil
}

// List returns the session's files in upload order.
func (f *Files) List(ctx context.Context, sid string) ([]session.File, error) {
	files, err := f.store.ListFiles(ctx, sid)
	if err != nil {
		return nil, apperrors.Internal("failed to list files", err)
	}
	return files, nil
}

func (f *Files) Count(ctx context.Context, sid string) (int, error) {
	files, err := f.List(ctx, sid)
	return len(files), err
}

// Remove deletes the file and its record. Removing an unknown id is not an
// error.
func (f *Files) Remove(ctx context.Context, sid, id string) error {
	_, err := f.Take(ctx, sid, id)
	return err
}

// Take removes the file and reports whether this call was the one that
// removed it.
func (f *Files) Take(ctx context.Context, sid, id string) (bool, error) {
	file, ok, err := f.store.TakeFile(ctx, sid, id)
	if err != nil {
		return false, apperrors.Internal("failed to remove file record", err)
	}
	if !ok {
		return false, nil
	}
	f.deleteBlob(ctx, file.Key)
	return true, nil
}

// namespace returns the session's namespace, minting one (or reusing
// candidate) when the session has none.
func (f *Files) namespace(ctx context.Context, sid, candidate string) (string, error) {
	if candidate == "" {
		var err error
		if candidate, err = session.NewToken(session.NamespaceBytes); err != nil {
			return "", apperrors.Internal("failed to generate namespace", err)
		}
	}
	ns, err := f.store.EnsureNamespace(ctx, sid, candidate, f.clock.Now().UTC())
	if err != nil {
		return "", apperrors.Internal("failed to create session namespace", err)
	}
	return ns, nil
}

func (f *Files) deleteBlob(ctx context.Context, key string) {
	if err := f.blobs.Delete(ctx, key); err != nil {
		logging.Warnf("[UPLOAD] failed to delete %s: %v", key, err)
	}
}

func fileNotFound(id string) *apperrors.Error {
	return apperrors.NotFound("file_not_found", fmt.Sprintf("File %s not found", id)).With("id", id)
}
