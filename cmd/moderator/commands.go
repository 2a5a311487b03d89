package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vidshare/moderator/internal/log"
	"github.com/vidshare/moderator/internal/metrics"
	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/moderation"
	"github.com/vidshare/moderator/internal/service"
	"github.com/vidshare/moderator/internal/tracing"
)

var errFailedVerdicts = errors.New("some videos could not be moderated")

var detectCmd = &cobra.Command{
	Use:   "detect <video>...",
	Short: "detect moderates given videos and prints a verdict per line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doDetect,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the configuration and moderates the inbox or amqp requests",
	RunE:  doRun,
}

func doDetect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("moderator",
		slog.String("cmd", "detect"),
		slog.Int("pid", os.Getpid()),
	))

	detector, err := moderation.New(config.Analyzer)
	if err != nil {
		return err
	}

	out := service.NewWriteUploader(cmd.OutOrStdout())
	var failed int
	for v, err := range service.Moderate(ctx, detector, config.Service.Parallelism, requests(args)) {
		if err != nil {
			return err
		}
		if v.Failed() {
			failed++
		}
		if err := out.Upload(ctx, v); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailedVerdicts, failed, len(args))
	}
	return nil
}

func requests(paths []string) iter.Seq2[model.ModerationRequest, error] {
	return func(yield func(model.ModerationRequest, error) bool) {
		for _, p := range paths {
			if !yield(model.ModerationRequest{ID: p, SourcePath: p}, nil) {
				return
			}
		}
	}
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("moderator",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	))

	var endpoint string
	if config.Service.Tracing != nil {
		endpoint = config.Service.Tracing.Endpoint
	}
	shutdown, err := tracing.Init(ctx, endpoint, "moderator", version())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "shutting down tracing", "error", err)
		}
	}()

	detector, err := moderation.New(config.Analyzer)
	if err != nil {
		return err
	}
	supervisor, err := service.NewSupervisor(ctx, config.Service, detector)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	if config.Service.Metrics != nil {
		srv := metrics.NewServer(config.Service.Metrics.Listen)
		g.Go(func() error {
			return metrics.Serve(runCtx, srv)
		})
	}
	g.Go(func() error {
		// the supervisor ends the metrics server in manual mode
		defer cancel()
		return supervisor.Do(runCtx)
	})
	return g.Wait()
}
