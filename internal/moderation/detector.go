package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidshare/moderator/internal/log"
	"github.com/vidshare/moderator/internal/metrics"
	"github.com/vidshare/moderator/internal/model"
)

var tracer = otel.Tracer("github.com/vidshare/moderator/internal/moderation")

// Detector runs the analyzer. It holds no mutable state and is safe
// for concurrent use.
type Detector struct {
	launcher   Launcher
	guard      Guard
	reconciler Reconciler
}

// New validates cfg and prepares the output directory.
func New(cfg model.Analyzer) (Detector, error) {
	if cfg.Executable == "" {
		return Detector{}, errors.New("analyzer executable is empty")
	}

	args := cfg.Args
	if len(args) == 0 {
		args = []string{model.PlaceholderSource, model.PlaceholderOutput}
	}
	for _, p := range []string{model.PlaceholderSource, model.PlaceholderOutput} {
		if !slices.ContainsFunc(args, func(a string) bool { return strings.Contains(a, p) }) {
			return Detector{}, fmt.Errorf("analyzer args %q: placeholder %s is missing", args, p)
		}
	}

	timeout := cfg.Timeout.Std()
	switch {
	case timeout == 0:
		timeout = model.DefaultTimeout.Std()
	case timeout < 0:
		return Detector{}, fmt.Errorf("analyzer timeout must be positive, got %s", timeout)
	}

	dir := cfg.OutputDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "moderator")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return Detector{}, fmt.Errorf("output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Detector{}, fmt.Errorf("creating output dir: %w", err)
	}

	return Detector{
		launcher: Launcher{
			executable: cfg.Executable,
			args:       slices.Clone(args),
			env:        environ(cfg.Env),
			outputDir:  dir,
		},
		guard: Guard{timeout: timeout},
		reconciler: Reconciler{
			strict: cfg.StrictShape,
			now:    time.Now,
		},
	}, nil
}

// environ returns the analyzer environment, nil inherits the current one
func environ(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, k+"="+os.ExpandEnv(extra[k]))
	}
	return env
}

// Detect moderates a single video.
func (d Detector) Detect(ctx context.Context, sourcePath string) (model.ModerationResult, error) {
	return d.DetectRequest(ctx, model.ModerationRequest{SourcePath: sourcePath})
}

// DetectRequest moderates a single video. Any returned error is
// a *model.ModerationError.
func (d Detector) DetectRequest(ctx context.Context, req model.ModerationRequest) (model.ModerationResult, error) {
	ctx, span := tracer.Start(ctx, "moderation.detect",
		trace.WithAttributes(
			attribute.String("moderation.source", req.SourcePath),
			attribute.String("moderation.request_id", req.ID),
		),
	)
	defer span.End()

	metrics.DetectInFlight.Inc()
	defer metrics.DetectInFlight.Dec()
	start := time.Now()

	attrs := []slog.Attr{slog.String("source", req.SourcePath)}
	if req.ID != "" {
		attrs = append(attrs, slog.String("request_id", req.ID))
	}
	ctx = log.ContextAttrs(ctx, attrs...)

	task, err := d.launcher.Launch(ctx, req)
	ctx = log.ContextAttrs(ctx, slog.String("output", task.OutputPath))

	var out Outcome
	if err != nil {
		out = Outcome{Kind: OutcomeLaunchError, Err: err}
	} else {
		out = d.guard.Wait(ctx, task)
	}
	span.AddEvent("analyzer done", trace.WithAttributes(
		attribute.String("moderation.outcome", out.Kind.String()),
		attribute.Int("moderation.pid", task.Pid()),
	))

	res, err := d.reconciler.Reconcile(ctx, task, out)
	elapsed := time.Since(start)

	outcome := outcomeLabel(res, err)
	metrics.RecordDetect(outcome, elapsed)
	span.SetAttributes(attribute.String("moderation.result", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		slog.DebugContext(ctx, "moderation failed", "elapsed", elapsed.String(), "error", err)
		return model.ModerationResult{}, err
	}

	span.SetAttributes(attribute.Float64("moderation.confidence", res.Confidence))
	slog.DebugContext(ctx, "moderation done",
		"elapsed", elapsed.String(),
		"is_nsfw", res.IsNSFW,
		"confidence", res.Confidence,
	)
	return res, nil
}

func outcomeLabel(res model.ModerationResult, err error) string {
	if err != nil {
		var merr *model.ModerationError
		if errors.As(err, &merr) {
			return merr.Kind.String()
		}
		return model.KindUnknown.String()
	}
	if res.IsNSFW {
		return metrics.OutcomeNSFW
	}
	return metrics.OutcomeSafe
}
