package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/procgroup"
)

// waitDelay bounds the wait for output pipes held open by leaked
// grandchildren after the analyzer itself exited
const waitDelay = 5 * time.Second

// Launcher starts the analyzer for a single request.
type Launcher struct {
	executable string
	args       []string
	env        []string // nil inherits the environment
	outputDir  string
}

// Launch starts the analyzer. The returned Task is never nil, on error it
// still carries the OutputPath so the Reconciler can clean it up.
func (l Launcher) Launch(ctx context.Context, req model.ModerationRequest) (*Task, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return &Task{Request: req}, &model.ModerationError{
			Kind:    model.KindLaunch,
			Message: "generating output name",
			Err:     err,
		}
	}

	task := &Task{
		Request:    req,
		OutputPath: filepath.Join(l.outputDir, "moderation-"+token.String()+".json"),
	}

	id := req.ID
	if id == "" {
		id = token.String()
	}
	expand := strings.NewReplacer(
		model.PlaceholderSource, req.SourcePath,
		model.PlaceholderOutput, task.OutputPath,
		model.PlaceholderID, id,
	)
	args := make([]string, len(l.args))
	for i, a := range l.args {
		args[i] = expand.Replace(a)
	}

	task.stdout = newCapture(ctx, "stdout", maxCapture)
	task.stderr = newCapture(ctx, "stderr", maxCapture)

	cmd := exec.Command(l.executable, args...)
	cmd.Env = l.env
	cmd.Stdin = nil
	cmd.Stdout = task.stdout
	cmd.Stderr = task.stderr
	cmd.WaitDelay = waitDelay
	procgroup.Set(cmd)
	task.cmd = cmd

	task.Started = time.Now()
	if err := cmd.Start(); err != nil {
		return task, &model.ModerationError{
			Kind:    model.KindLaunch,
			Message: fmt.Sprintf("starting %s", l.executable),
			Err:     err,
		}
	}
	task.done = make(chan error, 1)
	go task.wait()

	slog.DebugContext(ctx, "analyzer started",
		"pid", cmd.Process.Pid,
		"path", cmd.Path,
		"args", args,
		"output", task.OutputPath,
	)
	return task, nil
}
