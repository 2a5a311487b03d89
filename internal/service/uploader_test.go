package service_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/service"
)

func TestWriteUploader(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	u := service.NewWriteUploader(&buf)
	for _, id := range []string{"a", "b"} {
		v := model.NewVerdict(model.ModerationRequest{ID: id, SourcePath: id + ".mp4"}, time.Now(), model.ModerationResult{}, nil)
		require.NoError(t, u.Upload(t.Context(), v))
	}

	scanner := bufio.NewScanner(&buf)
	var ids []string
	for scanner.Scan() {
		var v model.Verdict
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		ids = append(ids, v.ID)
	}
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestDirUploader(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	u, err := service.NewDirUploader(dir)
	require.NoError(t, err)

	v := model.NewVerdict(
		model.ModerationRequest{ID: "v7", SourcePath: "/uploads/v7.mp4"},
		time.Now(),
		model.ModerationResult{},
		&model.ModerationError{Kind: model.KindTimeout},
	)
	require.NoError(t, u.Upload(t.Context(), v))

	b, err := os.ReadFile(filepath.Join(dir, "verdict-v7.json"))
	require.NoError(t, err)
	var got model.Verdict
	require.NoError(t, json.Unmarshal(b, &got))
	require.True(t, got.Failed())
	require.Equal(t, model.KindTimeout, got.Error.Kind)

	// ids are never used as paths
	v.ID = "../escape"
	require.NoError(t, u.Upload(t.Context(), v))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = service.NewDirUploader(filepath.Join(dir, "verdict-v7.json"))
	require.Error(t, err)
}
