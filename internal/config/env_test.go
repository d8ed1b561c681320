package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLOverlay_MissingFileIsNotAnError(t *testing.T) {
	err := LoadYAMLOverlay(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestLoadYAMLOverlay_DoesNotOverrideExistingEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hatchling.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nworkspace_dir: /from/yaml\n"), 0o644))

	t.Setenv("LOG_LEVEL", "warn")
	os.Unsetenv("WORKSPACE_DIR")

	require.NoError(t, LoadYAMLOverlay(path))
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"), "real env var must win over the file")
	assert.Equal(t, "/from/yaml", os.Getenv("WORKSPACE_DIR"))
}
