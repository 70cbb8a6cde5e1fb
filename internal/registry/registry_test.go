package registry

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *session.MemoryStore
	blobs   *storage.FilesystemBackend
	clock   *clockwork.FakeClock
	files   *Files
	tickets *Tickets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: session.NewMemoryStore(),
		blobs: storage.NewFilesystemBackend(t.TempDir()),
		clock: clockwork.NewFakeClockAt(epoch),
	}
	f.files = NewFiles(f.store, f.blobs, f.clock)
	f.tickets = NewTickets(f.store, f.blobs, f.clock, time.Hour)
	return f
}

func TestFilesPut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file, err := f.files.Put(ctx, "sid", "../Quarterly report (final).pdf", strings.NewReader("%PDF-1.4 data"))
	require.NoError(t, err)

	assert.Len(t, file.ID, 16)
	assert.Equal(t, file.ID+"_Quarterly_report__final_.pdf", file.StoredName)
	assert.Equal(t, "../Quarterly report (final).pdf", file.OriginalName)
	assert.EqualValues(t, 13, file.Size)
	assert.Len(t, file.Checksum, 64)
	assert.Equal(t, epoch, file.UploadedAt)

	ns, err := f.store.Namespace(ctx, "sid")
	require.NoError(t, err)
	assert.Len(t, ns, 32)
	assert.Equal(t, storage.UploadKey(ns, file.StoredName), file.Key)

	ok, err := f.blobs.Exists(ctx, file.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := f.files.Put(ctx, "sid", "b.pdf", strings.NewReader("%PDF-1.4 other"))
	require.NoError(t, err)
	assert.NotEqual(t, file.ID, second.ID)
	assert.True(t, strings.HasPrefix(second.Key, storage.NamespacePrefix(storage.UploadsRoot, ns)))
}

func TestFilesPutBoundsOriginalName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	long := strings.Repeat("é", 200) + ".pdf"
	file, err := f.files.Put(ctx, "sid", long, strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(file.OriginalName), maxDisplayName)
	assert.True(t, utf8.ValidString(file.OriginalName), "cut on a rune boundary")
	assert.True(t, strings.HasPrefix(long, file.OriginalName))

	got, err := f.files.Get(ctx, "sid", file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.OriginalName, got.OriginalName)
}

func TestFilesGetIsSessionScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file, err := f.files.Put(ctx, "alice", "a.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	got, err := f.files.Get(ctx, "alice", file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.Key, got.Key)

	_, err = f.files.Get(ctx, "mallory", file.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.files.Get(ctx, "alice", "0000000000000000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFilesGetDropsOrphanedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file, err := f.files.Put(ctx, "sid", "a.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, file.Key))

	_, err = f.files.Get(ctx, "sid", file.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.store.GetFile(ctx, "sid", file.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestFilesRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file, err := f.files.Put(ctx, "sid", "a.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	require.NoError(t, f.files.Remove(ctx, "sid", file.ID))
	require.NoError(t, f.files.Remove(ctx, "sid", file.ID))

	ok, err := f.blobs.Exists(ctx, file.Key)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.files.Count(ctx, "sid")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFilesTakeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file, err := f.files.Put(ctx, "sid", "a.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.files.Take(ctx, "sid", file.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestFilesListOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []string
	for _, name := range []string{"one.pdf", "two.pdf", "three.pdf"} {
		file, err := f.files.Put(ctx, "sid", name, strings.NewReader("%PDF-1.4"))
		require.NoError(t, err)
		ids = append(ids, file.ID)
		f.clock.Advance(time.Second)
	}

	files, err := f.files.List(ctx, "sid")
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, file := range files {
		assert.Equal(t, ids[i], file.ID)
	}
}

func putArtifact(t *testing.T, f *fixture, sid string) session.Artifact {
	t.Helper()
	ctx := context.Background()
	ns, err := f.store.EnsureNamespace(ctx, sid, "ns-"+sid, f.clock.Now())
	require.NoError(t, err)
	id, err := NewDownloadID()
	require.NoError(t, err)

	a := session.Artifact{
		DownloadID:      id,
		Filename:        "merged_20240501_120000.pdf",
		Key:             storage.MergedKey(ns, id, "merged_20240501_120000.pdf"),
		Size:            8,
		PageCount:       3,
		SourceFileCount: 2,
	}
	require.NoError(t, f.blobs.Put(ctx, a.Key, strings.NewReader("%PDF-1.4")))
	return a
}

func TestTicketsExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantErr error
	}{
		{"fresh", 0, nil},
		{"just before", time.Hour - time.Millisecond, nil},
		{"exactly at window", time.Hour, nil},
		{"just after", time.Hour + time.Millisecond, apperrors.ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			a := putArtifact(t, f, "sid")

			id, err := f.tickets.Issue(ctx, "sid", a)
			require.NoError(t, err)
			assert.Equal(t, a.DownloadID, id)

			f.clock.Advance(tt.age)
			got, err := f.tickets.Resolve(ctx, "sid", id)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, a.Key, got.Key)
				assert.Equal(t, 3, got.PageCount)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			ok, _ := f.blobs.Exists(ctx, a.Key)
			assert.False(t, ok, "expired artifact is reclaimed")
			_, err = f.tickets.Resolve(ctx, "sid", id)
			assert.ErrorIs(t, err, apperrors.ErrNotFound, "expired ticket is gone")
		})
	}
}

func TestTicketsResolveNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := putArtifact(t, f, "alice")
	id, err := f.tickets.Issue(ctx, "alice", a)
	require.NoError(t, err)

	_, err = f.tickets.Resolve(ctx, "mallory", id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.tickets.Resolve(ctx, "alice", strings.Repeat("0", 32))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.blobs.Delete(ctx, a.Key))
	_, err = f.tickets.Resolve(ctx, "alice", id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.store.GetTicket(ctx, "alice", id)
	assert.ErrorIs(t, err, session.ErrNotFound, "orphaned ticket is dropped")
}

func TestTicketsAllowRepeatFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := putArtifact(t, f, "sid")
	id, err := f.tickets.Issue(ctx, "sid", a)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := f.tickets.Resolve(ctx, "sid", id)
		require.NoError(t, err)
		rc, err := f.tickets.Open(ctx, got)
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "%PDF-1.4", string(data))
		f.clock.Advance(10 * time.Minute)
	}
}

func TestTicketsIssueMintsID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := putArtifact(t, f, "sid")
	a.DownloadID = ""

	id, err := f.tickets.Issue(ctx, "sid", a)
	require.NoError(t, err)
	assert.Len(t, id, 32)

	got, err := f.store.GetTicket(ctx, "sid", id)
	require.NoError(t, err)
	assert.Equal(t, epoch, got.CreatedAt)
}
