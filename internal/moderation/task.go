package moderation

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/procgroup"
)

// Task is a single execution of the analyzer. It is created by
// Launcher.Launch and must be passed to Reconciler.Reconcile exactly once.
type Task struct {
	Request    model.ModerationRequest
	OutputPath string
	Started    time.Time
	Deadline   time.Time

	cmd    *exec.Cmd
	stdout *capture
	stderr *capture
	done   chan error // receives the result of cmd.Wait exactly once

	mx     sync.Mutex
	exited bool
}

// Pid returns the process id of the analyzer or 0 if it was not started.
func (t *Task) Pid() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

func (t *Task) Stdout() string {
	if t.stdout == nil {
		return ""
	}
	return t.stdout.String()
}

func (t *Task) Stderr() string {
	if t.stderr == nil {
		return ""
	}
	return t.stderr.String()
}

// Kill forcibly terminates the analyzer and all of its children. Killing
// an exited or never started task is a no-op.
func (t *Task) Kill() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.exited || t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	if err := procgroup.Kill(t.cmd); err != nil {
		// at least the direct child
		if kerr := t.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return errors.Join(err, kerr)
		}
	}
	return nil
}

func (t *Task) wait() {
	err := t.cmd.Wait()
	t.mx.Lock()
	t.exited = true
	t.mx.Unlock()
	t.stdout.flush()
	t.stderr.flush()
	t.done <- err
}
