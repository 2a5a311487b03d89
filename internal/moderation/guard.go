package moderation

import (
	"context"
	"log/slog"
	"os"
	"time"
)

type OutcomeKind int

const (
	OutcomeExited OutcomeKind = iota
	OutcomeTimeout
	OutcomeLaunchError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExited:
		return "exited"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeLaunchError:
		return "launch_error"
	default:
		return "unknown"
	}
}

// Outcome is how a Task ended.
type Outcome struct {
	Kind  OutcomeKind
	State *os.ProcessState // nil for OutcomeLaunchError
	Err   error            // error of cmd.Wait or of the launch
}

// Guard enforces a hard deadline on a running Task.
type Guard struct {
	timeout time.Duration
}

// Wait blocks until the task exits or its deadline elapses. On timeout the
// process group is killed and Wait returns only after the exit was observed.
func (g Guard) Wait(ctx context.Context, task *Task) Outcome {
	task.Deadline = task.Started.Add(g.timeout)
	timer := time.NewTimer(time.Until(task.Deadline))

	select {
	case err := <-task.done:
		timer.Stop()
		return Outcome{Kind: OutcomeExited, State: task.cmd.ProcessState, Err: err}
	case <-timer.C:
	}

	// exited in the same instant the timer fired
	select {
	case err := <-task.done:
		return Outcome{Kind: OutcomeExited, State: task.cmd.ProcessState, Err: err}
	default:
	}

	slog.WarnContext(ctx, "analyzer deadline exceeded, killing process group",
		"pid", task.Pid(),
		"timeout", g.timeout.String(),
	)
	if err := task.Kill(); err != nil {
		slog.ErrorContext(ctx, "killing analyzer", "pid", task.Pid(), "error", err)
	}
	err := <-task.done
	return Outcome{Kind: OutcomeTimeout, State: task.cmd.ProcessState, Err: err}
}
