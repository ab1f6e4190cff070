package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "http://127.0.0.1:9222", cfg.DevTools.URL)
	assert.Equal(t, 10000, cfg.OpenKey.TimeoutMS)
	assert.Equal(t, 3, cfg.OpenKey.MaxRetries)
	assert.Equal(t, 1000, cfg.OpenKey.BackoffMS)
	assert.Equal(t, "openkey_", cfg.Sqlite.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Capture.Pattern, cfg.Capture.Pattern)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openkeytool.yaml")
	content := `
devtools:
  url: http://127.0.0.1:9333
openKey:
  maxRetries: 5
capture:
  homeLabel: Home
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("OPENKEY_OPENKEY_TIMEOUT_MS", "2500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9333", cfg.DevTools.URL)
	assert.Equal(t, 5, cfg.OpenKey.MaxRetries)
	assert.Equal(t, 2500, cfg.OpenKey.TimeoutMS)
	assert.Equal(t, "Home", cfg.Capture.HomeLabel)
	// 未覆盖的字段保持默认
	assert.Equal(t, 1000, cfg.OpenKey.BackoffMS)
}

func TestLoadCaptureMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openkeytool.yaml")
	content := `
capture:
  match:
    allOf:
      - type: method
        values: [GET]
    noneOf:
      - type: header
        key: X-Preview
        op: equals
        value: "1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Capture.Match.AllOf, 1)
	assert.Equal(t, []string{"GET"}, cfg.Capture.Match.AllOf[0].Values)
	require.Len(t, cfg.Capture.Match.NoneOf, 1)
	assert.Equal(t, "X-Preview", cfg.Capture.Match.NoneOf[0].Key)
	assert.Equal(t, NewConfig().Capture.Pattern, cfg.Capture.Pattern)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openKey:\n  maxRetries: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "maxRetries")
}
