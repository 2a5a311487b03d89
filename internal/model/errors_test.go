package model_test

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/vidshare/moderator/internal/model"
)

func TestModerationError_Is(t *testing.T) {
	t.Parallel()
	err := &model.ModerationError{
		Kind:    model.KindLaunch,
		Message: "starting /bin/missing",
		Err:     os.ErrNotExist,
	}
	wrapped := fmt.Errorf("detect: %w", err)

	require.ErrorIs(t, wrapped, model.ErrLaunch)
	require.ErrorIs(t, wrapped, os.ErrNotExist)
	require.NotErrorIs(t, wrapped, model.ErrTimeout)

	var merr *model.ModerationError
	require.ErrorAs(t, wrapped, &merr)
	require.Equal(t, model.KindLaunch, merr.Kind)
}

func TestModerationError_Error(t *testing.T) {
	t.Parallel()
	err := &model.ModerationError{
		Kind:     model.KindProcess,
		ExitCode: 2,
		Stderr:   strings.Repeat("x", 1000) + "model not found\n",
	}
	msg := err.Error()
	require.True(t, strings.HasPrefix(msg, "ProcessFailure"))
	require.Contains(t, msg, "exit code 2")
	require.Contains(t, msg, "model not found")
	require.Less(t, len(msg), 600)

	timeout := &model.ModerationError{Kind: model.KindTimeout, Message: "after 1s"}
	require.Equal(t, "TimeoutFailure: after 1s", timeout.Error())
}

func TestModerationError_ErrorUTF8(t *testing.T) {
	t.Parallel()
	// 3 byte runes, the cut at 512 bytes from the end falls inside one
	err := &model.ModerationError{
		Kind:     model.KindProcess,
		ExitCode: 1,
		Stderr:   "x" + strings.Repeat("€", 400),
	}
	msg := err.Error()
	require.True(t, utf8.ValidString(msg), msg)
	_, stderr, ok := strings.Cut(msg, "stderr: ...")
	require.True(t, ok)
	require.LessOrEqual(t, len(stderr), 512)
	require.Equal(t, strings.Repeat("€", 170), stderr)
}

func TestKind_Text(t *testing.T) {
	t.Parallel()
	for k := model.KindUnknown; k <= model.KindArtifactInvalidShape; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var got model.Kind
		require.NoError(t, got.UnmarshalText(b))
		require.Equal(t, k, got)
	}
	var k model.Kind
	require.Error(t, k.UnmarshalText([]byte("Boom")))
	require.Nil(t, model.KindUnknown.Sentinel())
}

func TestNewErrorInfo(t *testing.T) {
	t.Parallel()
	require.Nil(t, model.NewErrorInfo(nil))

	info := model.NewErrorInfo(errors.New("boom"))
	require.Equal(t, model.KindUnknown, info.Kind)
	require.Nil(t, info.ExitCode)

	info = model.NewErrorInfo(&model.ModerationError{Kind: model.KindProcess, ExitCode: -1, Stderr: "killed"})
	require.Equal(t, model.KindProcess, info.Kind)
	require.NotNil(t, info.ExitCode)
	require.Equal(t, -1, *info.ExitCode)
	require.Equal(t, "killed", info.Stderr)
}
