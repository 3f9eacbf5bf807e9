package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 4096, cfg.Server.Port)
}

func TestLoadJSONCWithComments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "opencode.jsonc"), []byte(`{
		// the default model
		"model": "anthropic/claude-sonnet-4-20250514",
		"server": {"port": 9000},
		"permissions": [
			{"pattern": "bash:git *", "action": "allow"},
		],
	}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 9000, cfg.Server.Port)
	require.Len(t, cfg.Permissions, 1)
	assert.Equal(t, "bash:git *", cfg.Permissions[0].Pattern)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENCODE_MODEL", "openai/gpt-4o")
	t.Setenv("OPENCODE_DATA_DIR", "/tmp/oc-test")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
	assert.Equal(t, "/tmp/oc-test", cfg.DataDir)
}

func TestDotenvLoaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENCODE_TEST_MARKER=set\n"), 0o644))

	_, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "set", os.Getenv("OPENCODE_TEST_MARKER"))
	os.Unsetenv("OPENCODE_TEST_MARKER")
}
