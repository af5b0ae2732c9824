package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_PLACES_API_KEY", "PLACES_BASE_URL", "PLACES_LEGACY", "GEMINI_API_KEY", "GEMINI_MODEL",
		"GEMINI_BASE_URL", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR", "ENRICH_SCHEMA", "ENRICH_DELAY",
		"ENRICH_THREADS", "ENRICH_CHECKPOINT", "RATE_LIMIT_RPS", "SCRAPE_DELAY", "SCRAPE_WAIT", "MAX_RETRIES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0.1, cfg.Enrich.DelaySeconds)
	assert.Equal(t, 1, cfg.Enrich.Threads)
	assert.Equal(t, 5.0, cfg.Scrape.DelaySeconds)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
places:
  legacy: true
enrich:
  threads: 8
  checkpoint_every: 500
  delay_seconds: 0.25
gemini:
  model: gemini-from-file
log:
  level: debug
`), 0o644))

	t.Setenv("ENRICH_THREADS", "4")
	t.Setenv("GOOGLE_PLACES_API_KEY", "places-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Places.Legacy)
	assert.Equal(t, 4, cfg.Enrich.Threads, "env overrides file")
	assert.Equal(t, 500, cfg.Enrich.CheckpointEvery)
	assert.Equal(t, 0.25, cfg.Enrich.DelaySeconds)
	assert.Equal(t, "gemini-from-file", cfg.Gemini.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "places-key", cfg.Places.APIKey)
	assert.Equal(t, 3.0, cfg.Scrape.WaitSeconds, "unset keys keep defaults")
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enrich:\n  thread: 2\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err, "unknown keys are rejected")

	t.Setenv("ENRICH_THREADS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, `invalid ENRICH_THREADS="many"`)

	t.Setenv("ENRICH_THREADS", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "threads must be >= 1")
}
