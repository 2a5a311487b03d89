package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseLog_NotInitialized(t *testing.T) {
	logCloser = nil
	require.NoError(t, closeLog())
	require.NoError(t, closeLog())
}

func TestInitModerator(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		_ = closeLog()
	})

	dir := t.TempDir()
	logPath := filepath.Join(dir, "moderator.log")
	configFile := filepath.Join(dir, "moderator.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
version: 0
analyzer:
    executable: /bin/true
service:
    mode: "manual"
    log: `+logPath+`
`), 0o644))
	t.Setenv("MODERATORCONFIG", configFile)

	require.NoError(t, initModerator(rootCmd, nil))
	require.Equal(t, configFile, configPath)
	require.Equal(t, "/bin/true", config.Analyzer.Executable)
	require.NotNil(t, logCloser)

	slog.Info("hello")
	require.NoError(t, closeLog())
	require.Nil(t, logCloser)

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)
}

func TestInitModerator_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "moderator.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("version: 0\nanalyzer:\n    retries: 3\n"), 0o644))
	t.Setenv("MODERATORCONFIG", configFile)

	require.Error(t, initModerator(rootCmd, nil))
}

func TestExists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "moderator.yaml")
	require.False(t, exists(path))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.True(t, exists(path))
	require.False(t, exists(dir))
}
