// Package session holds the per-session bookkeeping: which uploads and
// merged artifacts belong to which browser session. Blobs live in storage;
// only metadata lives here.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist for the given session.
var ErrNotFound = errors.New("session: not found")

// Token sizes in bytes. Hex encoding doubles them.
const (
	FileIDBytes     = 8
	DownloadIDBytes = 16
	NamespaceBytes  = 16
	SessionIDBytes  = 16
)

// File is an uploaded PDF awaiting merge.
type File struct {
	ID           string
	OriginalName string
	StoredName   string
	Key          string
	Size         int64
	Checksum     string
	UploadedAt   time.Time
}

// Artifact is a merged output reachable through a download ticket.
type Artifact struct {
	DownloadID      string
	Filename        string
	Key             string
	Size            int64
	PageCount       int
	SourceFileCount int
	CreatedAt       time.Time
}

// Store is the session state capability handed to the registries. All
// lookups are scoped by session id; a row owned by another session is
// reported as ErrNotFound.
type Store interface {
	// EnsureNamespace returns the session's storage namespace, creating it
	// with the supplied candidate on first use.
	EnsureNamespace(ctx context.Context, sid, candidate string, now time.Time) (string, error)
	// Namespace returns ErrNotFound if the session has never uploaded.
	Namespace(ctx context.Context, sid string) (string, error)

	PutFile(ctx context.Context, sid string, f File) error
	GetFile(ctx context.Context, sid, id string) (File, error)
	ListFiles(ctx context.Context, sid string) ([]File, error)
	// TakeFile deletes the row and reports whether it existed. Exactly one
	// concurrent caller observes true.
	TakeFile(ctx context.Context, sid, id string) (File, bool, error)

	PutTicket(ctx context.Context, sid string, a Artifact) error
	GetTicket(ctx context.Context, sid, id string) (Artifact, error)
	DeleteTicket(ctx context.Context, sid, id string) error

	// Prune drops files and tickets created before cutoff, then sessions
	// created before cutoff that own nothing.
	Prune(ctx context.Context, cutoff time.Time) (PruneStats, error)
}

type PruneStats struct {
	Files    int
	Tickets  int
	Sessions int
}

// NewToken returns n crypto-random bytes as lowercase hex.
func NewToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
