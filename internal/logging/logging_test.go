package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONForNonTerminal(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { current.Store(prev); slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init("info", "", &buf)
	Logf("[MERGE] merged %d files", 3)
	Debugf("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "[MERGE] merged 3 files", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestInitTextFormat(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { current.Store(prev); slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init("debug", "text", &buf)
	Warnf("[SWEEP] removed %s", "a.pdf")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="[SWEEP] removed a.pdf"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
