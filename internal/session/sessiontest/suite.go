// Package sessiontest checks that a session.Store behaves the way the
// registries rely on. Every Store implementation runs it.
package sessiontest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukezje16/pdfmerger/internal/session"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func file(id string, at time.Time) session.File {
	return session.File{
		ID:           id,
		OriginalName: id + ".pdf",
		StoredName:   id + "_" + id + ".pdf",
		Key:          "uploads/ns/" + id + "_" + id + ".pdf",
		Size:         42,
		Checksum:     "c0ffee",
		UploadedAt:   at,
	}
}

// Run exercises newStore with the behaviours the registries depend on.
func Run(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Run("namespace is minted once", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.Namespace(ctx, "sid")
		assert.ErrorIs(t, err, session.ErrNotFound)

		ns, err := s.EnsureNamespace(ctx, "sid", "ns-one", epoch)
		require.NoError(t, err)
		assert.Equal(t, "ns-one", ns)

		ns, err = s.EnsureNamespace(ctx, "sid", "ns-two", epoch)
		require.NoError(t, err)
		assert.Equal(t, "ns-one", ns)

		got, err := s.Namespace(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, "ns-one", got)
	})

	t.Run("files are scoped to their session", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.EnsureNamespace(ctx, "a", "ns-a", epoch)
		require.NoError(t, err)
		_, err = s.EnsureNamespace(ctx, "b", "ns-b", epoch)
		require.NoError(t, err)

		require.NoError(t, s.PutFile(ctx, "a", file("f2", epoch.Add(time.Second))))
		require.NoError(t, s.PutFile(ctx, "a", file("f1", epoch)))

		got, err := s.GetFile(ctx, "a", "f1")
		require.NoError(t, err)
		assert.Equal(t, "f1.pdf", got.OriginalName)
		assert.True(t, got.UploadedAt.Equal(epoch))

		_, err = s.GetFile(ctx, "b", "f1")
		assert.ErrorIs(t, err, session.ErrNotFound)

		list, err := s.ListFiles(ctx, "a")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "f1", list[0].ID)
		assert.Equal(t, "f2", list[1].ID)

		empty, err := s.ListFiles(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("take is exactly once", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.EnsureNamespace(ctx, "a", "ns-a", epoch)
		require.NoError(t, err)
		require.NoError(t, s.PutFile(ctx, "a", file("f1", epoch)))

		_, ok, err := s.TakeFile(ctx, "b", "f1")
		require.NoError(t, err)
		assert.False(t, ok, "foreign session cannot take")

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := s.TakeFile(ctx, "a", "f1"); err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())

		_, err = s.GetFile(ctx, "a", "f1")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("tickets", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.EnsureNamespace(ctx, "a", "ns-a", epoch)
		require.NoError(t, err)

		art := session.Artifact{
			DownloadID:      "0123456789abcdef0123456789abcdef",
			Filename:        "merged_20240501_120000.pdf",
			Key:             "merged/ns-a/0123456789abcdef0123456789abcdef_merged_20240501_120000.pdf",
			Size:            1000,
			PageCount:       3,
			SourceFileCount: 2,
			CreatedAt:       epoch,
		}
		require.NoError(t, s.PutTicket(ctx, "a", art))

		got, err := s.GetTicket(ctx, "a", art.DownloadID)
		require.NoError(t, err)
		assert.Equal(t, art.Key, got.Key)
		assert.Equal(t, 3, got.PageCount)

		_, err = s.GetTicket(ctx, "b", art.DownloadID)
		assert.ErrorIs(t, err, session.ErrNotFound)

		require.NoError(t, s.DeleteTicket(ctx, "a", art.DownloadID))
		require.NoError(t, s.DeleteTicket(ctx, "a", art.DownloadID))
		_, err = s.GetTicket(ctx, "a", art.DownloadID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("prune drops stale rows", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.EnsureNamespace(ctx, "old", "ns-old", epoch)
		require.NoError(t, err)
		_, err = s.EnsureNamespace(ctx, "busy", "ns-busy", epoch)
		require.NoError(t, err)

		require.NoError(t, s.PutFile(ctx, "old", file("stale", epoch)))
		require.NoError(t, s.PutFile(ctx, "busy", file("fresh", epoch.Add(2*time.Hour))))
		require.NoError(t, s.PutTicket(ctx, "busy", session.Artifact{
			DownloadID: "ffffffffffffffffffffffffffffffff",
			Key:        "merged/ns-busy/x.pdf",
			CreatedAt:  epoch,
		}))

		stats, err := s.Prune(ctx, epoch.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, session.PruneStats{Files: 1, Tickets: 1, Sessions: 1}, stats)

		_, err = s.Namespace(ctx, "old")
		assert.ErrorIs(t, err, session.ErrNotFound)
		_, err = s.GetFile(ctx, "busy", "fresh")
		assert.NoError(t, err)
	})
}
