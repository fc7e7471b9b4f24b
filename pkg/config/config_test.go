package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "microdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 4, cfg.BufferPages)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
}

func TestLoadOverridesFields(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/microdb
buffer_pages: 16
metrics_addr: ":9102"
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/microdb", cfg.DataDir)
	assert.Equal(t, 16, cfg.BufferPages)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// 未出现的字段保持默认值
	assert.Equal(t, "stderr", cfg.Log.OutputFile)
	assert.Empty(t, cfg.ListenAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "buffer_pages: 0\n"))
	assert.ErrorContains(t, err, "buffer_pages")

	_, err = Load(writeConfig(t, "data_dir: \"\"\n"))
	assert.ErrorContains(t, err, "data_dir")

	_, err = Load(writeConfig(t, "buffer_pages: [1, 2\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
