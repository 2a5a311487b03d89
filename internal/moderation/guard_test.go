package moderation

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vidshare/moderator/internal/model"
)

func launch(t *testing.T, script string) *Task {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	l := Launcher{
		executable: sh,
		args:       []string{"-c", script, "analyzer", model.PlaceholderSource, model.PlaceholderOutput},
		outputDir:  t.TempDir(),
	}
	task, err := l.Launch(t.Context(), model.ModerationRequest{SourcePath: "video.mp4"})
	require.NoError(t, err)
	require.NotZero(t, task.Pid())
	return task
}

func TestGuard_Exit(t *testing.T) {
	t.Parallel()
	task := launch(t, `echo "$1"`)

	out := Guard{timeout: 10 * time.Second}.Wait(t.Context(), task)
	require.Equal(t, OutcomeExited, out.Kind)
	require.NoError(t, out.Err)
	require.True(t, out.State.Success())
	require.Equal(t, task.Started.Add(10*time.Second), task.Deadline)
	require.Equal(t, "video.mp4\n", task.Stdout())

	// killing an exited task is a no-op
	require.NoError(t, task.Kill())
	require.NoError(t, task.Kill())
}

func TestGuard_Timeout(t *testing.T) {
	t.Parallel()
	task := launch(t, `echo started >&2; sleep 30`)

	start := time.Now()
	out := Guard{timeout: 200 * time.Millisecond}.Wait(t.Context(), task)
	require.Equal(t, OutcomeTimeout, out.Kind)
	require.Error(t, out.Err)
	require.NotNil(t, out.State)
	require.False(t, out.State.Success())
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, "started\n", task.Stderr())
	require.NoError(t, task.Kill())
}

func TestReconcile_LaunchError(t *testing.T) {
	t.Parallel()
	l := Launcher{executable: "/does/not/exist", outputDir: t.TempDir()}
	task, err := l.Launch(t.Context(), model.ModerationRequest{SourcePath: "video.mp4"})
	require.Error(t, err)
	require.NotNil(t, task)
	require.NotEmpty(t, task.OutputPath)
	require.NoError(t, task.Kill())

	r := Reconciler{now: time.Now}
	_, err = r.Reconcile(t.Context(), task, Outcome{Kind: OutcomeLaunchError, Err: err})
	require.ErrorIs(t, err, model.ErrLaunch)
}
