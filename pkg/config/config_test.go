package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRunPolicy, EnvRunBackoff, EnvDebug, EnvDebugDomains, EnvDebugLogDir, EnvDebugToFile, EnvConfigFile} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestDefault_MatchesBuiltInKnobs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, PolicyLogAndStopModule, cfg.RunPolicy)
	assert.Equal(t, 10*time.Millisecond, cfg.RunBackoff)
	assert.Equal(t, "debug-logs", cfg.DebugLogDir)
	assert.False(t, cfg.Debug)
}

func TestLoad_NoOverridesReturnsDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverridesWinOverDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRunPolicy, string(PolicyRethrowAndStopAll))
	t.Setenv(EnvRunBackoff, "25ms")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvDebugDomains, "signal,supervisor")
	t.Setenv(EnvDebugLogDir, "/tmp/agentrt-logs")
	t.Setenv(EnvDebugToFile, "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, PolicyRethrowAndStopAll, cfg.RunPolicy)
	assert.Equal(t, 25*time.Millisecond, cfg.RunBackoff)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"signal", "supervisor"}, cfg.DebugDomains)
	assert.Equal(t, "/tmp/agentrt-logs", cfg.DebugLogDir)
	assert.True(t, cfg.DebugToFile)
}

func TestLoad_FileIsOverriddenByEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run_policy: LogAndRerunModule\nrun_backoff: 50ms\ndebug: true\n"), 0o644))

	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvRunPolicy, string(PolicyLogAndStopAll))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, PolicyLogAndStopAll, cfg.RunPolicy, "env must win over the file")
	assert.Equal(t, 50*time.Millisecond, cfg.RunBackoff, "the file value stands when env doesn't override it")
	assert.True(t, cfg.Debug)
}

func TestLoad_MissingConfigFileReturnsError(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestApply_PushesDebugSettingsToLogx(t *testing.T) {
	cfg := Config{Debug: true, DebugToFile: false, DebugLogDir: "logs", DebugDomains: []string{"signal"}}
	assert.NotPanics(t, func() { cfg.Apply() })
}
