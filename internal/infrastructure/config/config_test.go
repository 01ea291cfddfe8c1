package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Terminal.CommandTimeout)
	assert.Equal(t, "$#", cfg.Terminal.PromptTerminators)
	assert.False(t, cfg.Registration.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgeterm.toml")
	content := `
[server]
port = "9090"

[terminal]
command_timeout = "10s"
prompt_terminators = ">$#"

[registration]
enabled = true
api_url = "https://backend.example.com"
device_id = "dev_test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Terminal.CommandTimeout)
	assert.Equal(t, ">$#", cfg.Terminal.PromptTerminators)
	assert.True(t, cfg.Registration.Enabled)
	assert.Equal(t, "https://backend.example.com", cfg.Registration.APIURL)
	assert.Equal(t, "dev_test", cfg.Registration.DeviceID)

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 100*time.Millisecond, cfg.Terminal.PollInterval)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/edgeterm.toml")
	require.Error(t, err)
}

func TestLoadFileInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgeterm.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = \"9090\"\n"), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()
	require.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.Server.Port)
}
