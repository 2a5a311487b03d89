package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vidshare/moderator/internal/log"
)

func TestContextHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil))).
		With("component", "test")

	ctx := log.ContextAttrs(t.Context(), slog.String("request", "v1"))
	child := log.ContextAttrs(ctx, slog.String("pid", "42"))
	sibling := log.ContextAttrs(ctx, slog.String("pid", "43"))

	logger.InfoContext(child, "child")
	logger.InfoContext(sibling, "sibling")

	dec := json.NewDecoder(&buf)
	var rec map[string]any
	require.NoError(t, dec.Decode(&rec))
	require.Equal(t, "child", rec["msg"])
	require.Equal(t, "test", rec["component"])
	require.Equal(t, "v1", rec["request"])
	require.Equal(t, "42", rec["pid"])

	rec = nil
	require.NoError(t, dec.Decode(&rec))
	require.Equal(t, "sibling", rec["msg"])
	require.Equal(t, "43", rec["pid"])
}

func TestNew_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "moderator.log")
	logger, closer, err := log.New(true, path)
	require.NoError(t, err)
	logger.Debug("hello")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)
}
