package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/session/sessiontest"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(&DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}

func TestGormStore(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) session.Store {
		return NewStore(openTestDB(t))
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, RunMigrations(db, "TEST"))

	for _, model := range GetAllModels() {
		require.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	require.True(t, db.Migrator().HasColumn(&DownloadTicket{}, "PageCount"))
}

func TestStoreKeepsLongOriginalName(t *testing.T) {
	ctx := context.Background()
	store := NewStore(openTestDB(t))
	now := time.Now().UTC()

	_, err := store.EnsureNamespace(ctx, "sid", "ns", now)
	require.NoError(t, err)

	name := strings.Repeat("n", 1000) + ".pdf"
	require.NoError(t, store.PutFile(ctx, "sid", session.File{
		ID:           "0123456789abcdef",
		OriginalName: name,
		StoredName:   "0123456789abcdef_n.pdf",
		Key:          "uploads/ns/0123456789abcdef_n.pdf",
		Size:         8,
		UploadedAt:   now,
	}))

	got, err := store.GetFile(ctx, "sid", "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, name, got.OriginalName)
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(&DatabaseConfig{Type: "oracle"})
	require.Error(t, err)
}
