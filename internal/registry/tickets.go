package registry

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
)

// Tickets maps download ids to merged artifacts for a bounded window.
// A ticket may be fetched any number of times until it expires.
type Tickets struct {
	store session.Store
	blobs storage.StorageBackend
	clock clockwork.Clock
	ttl   time.Duration
}

func NewTickets(store session.Store, blobs storage.StorageBackend, clock clockwork.Clock, ttl time.Duration) *Tickets {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tickets{store: store, blobs: blobs, clock: clock, ttl: ttl}
}

// NewDownloadID returns a fresh 32-character ticket id.
func NewDownloadID() (string, error) {
	return session.NewToken(session.DownloadIDBytes)
}

// Issue records a for sid and returns its download id. A zero CreatedAt is
// stamped with the current time.
func (t *Tickets) Issue(ctx context.Context, sid string, a session.Artifact) (string, error) {
	if a.DownloadID == "" {
		id, err := NewDownloadID()
		if err != nil {
			return "", apperrors.Internal("failed to generate download id", err)
		}
		a.DownloadID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.clock.Now().UTC()
	}

	err := t.store.PutTicket(ctx, sid, a)
	if errors.Is(err, session.ErrNotFound) {
		if ns, ok := storage.NamespaceFromKey(a.Key); ok {
			if _, err = t.store.EnsureNamespace(ctx, sid, ns, t.clock.Now().UTC()); err == nil {
				err = t.store.PutTicket(ctx, sid, a)
			}
		}
	}
	if err != nil {
		return "", apperrors.Internal("failed to record download", err)
	}
	return a.DownloadID, nil
}

// Resolve returns the artifact behind id. Unknown, foreign and orphaned
// tickets are not found; tickets older than the window are expired and
// reclaimed. An age exactly equal to the window is still valid.
func (t *Tickets) Resolve(ctx context.Context, sid, id string) (*session.Artifact, error) {
	a, err := t.store.GetTicket(ctx, sid, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, downloadNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up download", err)
	}

	ok, err := t.blobs.Exists(ctx, a.Key)
	if err != nil {
		return nil, apperrors.IO("failed to check download", err)
	}
	if !ok {
		t.drop(ctx, sid, a)
		return nil, downloadNotFound()
	}

	if t.clock.Since(a.CreatedAt) > t.ttl {
		logging.Logf("[DOWNLOAD] ticket %s expired, reclaiming %s", id, a.Key)
		t.drop(ctx, sid, a)
		return nil, apperrors.Expired("download_expired", "Download has expired")
	}
	return &a, nil
}

// Open streams the artifact's bytes.
func (t *Tickets) Open(ctx context.Context, a *session.Artifact) (io.ReadCloser, error) {
	rc, err := t.blobs.Get(ctx, a.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, downloadNotFound()
	}
	if err != nil {
		return nil, apperrors.IO("failed to open download", err)
	}
	return rc, nil
}

func (t *Tickets) drop(ctx context.Context, sid string, a session.Artifact) {
	if err := t.blobs.Delete(ctx, a.Key); err != nil {
		logging.Warnf("[DOWNLOAD] failed to delete %s: %v", a.Key, err)
	}
	if err := t.store.DeleteTicket(ctx, sid, a.DownloadID); err != nil && !errors.Is(err, session.ErrNotFound) {
		logging.Warnf("[DOWNLOAD] failed to drop ticket %s: %v", a.DownloadID, err)
	}
}

func downloadNotFound() *apperrors.Error {
	return apperrors.NotFound("download_not_found", "Download not found or expired")
}
