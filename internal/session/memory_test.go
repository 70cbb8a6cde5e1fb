package session_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/session/sessiontest"
)

func TestMemoryStore(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) session.Store {
		return session.NewMemoryStore()
	})
}

func TestNewToken(t *testing.T) {
	hex32 := regexp.MustCompile(`^[a-f0-9]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := session.NewToken(session.DownloadIDBytes)
		require.NoError(t, err)
		assert.Regexp(t, hex32, tok)
		assert.False(t, seen[tok])
		seen[tok] = true
	}

	id, err := session.NewToken(session.FileIDBytes)
	require.NoError(t, err)
	assert.Len(t, id, 16)
}
