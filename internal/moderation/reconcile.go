package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/vidshare/moderator/internal/model"
)

// Reconciler converts the Outcome of a Task into a result and owns
// the removal of the result artifact.
type Reconciler struct {
	strict bool
	now    func() time.Time
}

// Reconcile must be called exactly once per Task and only after its
// exit was observed. The artifact is removed on every path.
func (r Reconciler) Reconcile(ctx context.Context, task *Task, out Outcome) (model.ModerationResult, error) {
	defer func() {
		_ = RemoveArtifact(ctx, task.OutputPath)
	}()

	switch out.Kind {
	case OutcomeLaunchError:
		var merr *model.ModerationError
		if errors.As(out.Err, &merr) {
			return model.ModerationResult{}, out.Err
		}
		return model.ModerationResult{}, &model.ModerationError{
			Kind:    model.KindLaunch,
			Message: "starting analyzer",
			Err:     out.Err,
		}
	case OutcomeTimeout:
		return model.ModerationResult{}, &model.ModerationError{
			Kind:    model.KindTimeout,
			Message: fmt.Sprintf("analyzer killed after %s", task.Deadline.Sub(task.Started)),
			Stderr:  task.Stderr(),
		}
	}

	if err := processError(ctx, task, out); err != nil {
		return model.ModerationResult{}, err
	}

	b, err := os.ReadFile(task.OutputPath)
	if err != nil {
		return model.ModerationResult{}, &model.ModerationError{
			Kind:    model.KindArtifactUnreadable,
			Message: "reading " + task.OutputPath,
			Err:     err,
		}
	}

	res, err := decodeArtifact(ctx, b, r.strict)
	if err != nil {
		return model.ModerationResult{}, err
	}
	res.ObservedAt = r.now().UTC()
	return res, nil
}

// processError returns a ProcessFailure for anything but a clean exit
func processError(ctx context.Context, task *Task, out Outcome) error {
	if out.Err == nil {
		return nil
	}
	if errors.Is(out.Err, exec.ErrWaitDelay) && out.State != nil && out.State.Success() {
		slog.WarnContext(ctx, "analyzer left output open after exit", "pid", task.Pid())
		return nil
	}

	code := -1
	if out.State != nil {
		// -1 when terminated by a signal
		code = out.State.ExitCode()
	}
	return &model.ModerationError{
		Kind:     model.KindProcess,
		Message:  "analyzer failed",
		ExitCode: code,
		Stderr:   task.Stderr(),
		Err:      out.Err,
	}
}
