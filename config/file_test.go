package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
workers:
  auto_scale: true
  min: 2
  max: 8
queue:
  capacity_total: 500
  split: [0.4, 0.3, 0.2, 0.1]
retention:
  terminal_max: 1000
retry:
  base_backoff: 50ms
  max_backoff: 5s
  on_timeout: true
scheduler:
  tick_max: 200ms
default_timeout: 10s
start_immediately: true
`

func TestLoadParsesYAMLIntoOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, opts)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/engine.yaml")
	require.Error(t, err)
}

func TestLoadReturnsErrorForInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadReturnsErrorForInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad_duration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_timeout: not-a-duration\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
