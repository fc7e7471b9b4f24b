package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "microdb.log")
	l, err := New(Config{Level: "warn", Format: "json", OutputFile: path})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("page load failed")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "page load failed", entry["msg"])
	assert.Equal(t, "microdb", entry["service"])
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "microdb.log")
	l, err := New(Config{Level: "verbose", OutputFile: path})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("shown")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, string(raw), "shown")
}

func TestNewBadOutput(t *testing.T) {
	_, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
