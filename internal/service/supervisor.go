package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/vidshare/moderator/internal/metrics"
	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/parallel"
	"github.com/vidshare/moderator/internal/queue"
)

var ErrScanInProgress = errors.New("scan in progress")

// Moderator is implemented by moderation.Detector
type Moderator interface {
	DetectRequest(ctx context.Context, req model.ModerationRequest) (model.ModerationResult, error)
}

type Supervisor struct {
	moderator   Moderator
	uploaders   []model.Uploader
	oneshot     bool
	parallelism int
	scheduler   gocron.Scheduler
	inbox       *Inbox
	broker      *queue.Broker

	start    chan struct{}
	results  chan error
	scanning bool
	wg       sync.WaitGroup
}

func NewSupervisor(ctx context.Context, cfg model.Service, moderator Moderator) (*Supervisor, error) {
	var supervisor = &Supervisor{
		moderator:   moderator,
		oneshot:     cfg.Mode != model.ServiceModeTimer,
		parallelism: max(cfg.Parallelism, 1),
		start:       make(chan struct{}, 1),
		results:     make(chan error, 1),
	}

	if cfg.Inbox != nil && len(cfg.Inbox.Paths) > 0 {
		inbox, err := NewInbox(*cfg.Inbox)
		if err != nil {
			return nil, fmt.Errorf("initializing inbox: %w", err)
		}
		supervisor.inbox = inbox
	}

	if cfg.AMQP != nil && cfg.AMQP.Enabled {
		broker, err := queue.Dial(ctx, queue.NewConfig(*cfg.AMQP))
		if err != nil {
			return nil, fmt.Errorf("initializing amqp: %w", err)
		}
		supervisor.broker = broker
	}

	uploaders, err := uploaders(ctx, cfg, supervisor.broker)
	if err != nil {
		supervisor.closeBroker(ctx)
		return nil, fmt.Errorf("initializing uploaders: %w", err)
	}
	supervisor.uploaders = uploaders

	switch {
	case supervisor.oneshot && supervisor.inbox == nil:
		supervisor.close(ctx)
		return nil, errors.New("manual mode needs service.inbox")
	case !supervisor.oneshot && supervisor.inbox != nil:
		scheduler, err := newScheduler(ctx, cfg.Schedule, supervisor.Start)
		if err != nil {
			supervisor.close(ctx)
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		supervisor.scheduler = scheduler
	case !supervisor.oneshot && supervisor.broker == nil:
		supervisor.close(ctx)
		return nil, errors.New("timer mode needs service.inbox or service.amqp")
	}

	return supervisor, nil
}

// WithUploaders replaces uploaders of an initialized Supervisor.
// This method exists for a unit testing only.
func (s *Supervisor) WithUploaders(ctx context.Context, uploaders ...model.Uploader) *Supervisor {
	s.closeUploaders(ctx)
	s.uploaders = uploaders
	return s
}

// Start asks for an inbox scan. It never blocks, a pending request
// is not duplicated.
func (s *Supervisor) Start() {
	select {
	case s.start <- struct{}{}:
	default:
	}
}

// Do runs the supervisor event loop.
// It multiplexes
//  1. Start triggers (from s.start or the scheduler) which start an inbox scan.
//  2. Scan results (from s.results) carrying upload errors.
//  3. AMQP consumer failure.
//  4. Context cancellation, which terminates the loop.
//
// Modes:
//   - Oneshot (manual): a single scan is triggered on entry; its error is returned.
//   - Timer: errors are only logged; the loop runs until ctx is cancelled.
//
// Shutdown (deferred order): cancel -> wait on s.wg -> close uploaders.
func (s *Supervisor) Do(parentCtx context.Context) error {
	slog.DebugContext(parentCtx, "starting a supervisor")
	ctx, cancel := context.WithCancel(parentCtx)

	defer func() {
		s.closeUploaders(ctx)
	}()
	defer func() {
		s.wg.Wait()
	}()
	defer cancel()

	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			err := s.scheduler.Shutdown()
			if err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	consumeErr := make(chan error, 1)
	if s.broker != nil && !s.oneshot {
		s.wg.Go(func() {
			consumeErr <- s.broker.Consume(ctx, s.parallelism, s.handleRequest)
		})
	}

	if s.oneshot {
		s.Start()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-consumeErr:
			if err != nil {
				return fmt.Errorf("amqp consumer: %w", err)
			}
		case <-s.start:
			if err := s.callStart(ctx); err != nil {
				slog.WarnContext(ctx, "start ignored", "error", err)
			}
		case err := <-s.results:
			s.scanning = false
			if s.oneshot {
				return err
			}
			if err != nil {
				slog.ErrorContext(ctx, "upload failed", "error", err)
			}
		}
	}
}

func (s *Supervisor) callStart(ctx context.Context) error {
	if s.inbox == nil {
		return errors.New("no inbox configured")
	}
	if s.scanning {
		return ErrScanInProgress
	}
	s.scanning = true
	s.wg.Go(func() {
		s.results <- s.scan(ctx)
	})
	return nil
}

// scan moderates new videos of the inbox and uploads their verdicts
func (s *Supervisor) scan(ctx context.Context) error {
	slog.DebugContext(ctx, "scanning inbox")
	var errs []error
	var count, failed int
	for v, err := range Moderate(ctx, s.moderator, s.parallelism, s.inbox.Pending(ctx)) {
		if err != nil {
			slog.WarnContext(ctx, "walking inbox", "error", err)
			continue
		}
		count++
		if v.Failed() {
			failed++
		}
		if err := s.upload(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	slog.InfoContext(ctx, "inbox scanned", "videos", count, "failed", failed)
	return errors.Join(errs...)
}

// handleRequest moderates a request received from the broker. Every
// verdict, including failed moderation, acks the message. A request
// interrupted by shutdown is requeued.
func (s *Supervisor) handleRequest(ctx context.Context, req model.ModerationRequest) error {
	v := moderate(ctx, s.moderator, req)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.upload(ctx, v); err != nil {
		slog.ErrorContext(ctx, "upload failed", "request_id", req.ID, "error", err)
	}
	return nil
}

// Moderate runs m on every request with at most limit requests in parallel.
// Errors of reqs are passed through, everything else is a Verdict.
func Moderate(ctx context.Context, m Moderator, limit int, reqs iter.Seq2[model.ModerationRequest, error]) iter.Seq2[model.Verdict, error] {
	return parallel.NewMap(ctx, limit, func(ctx context.Context, req model.ModerationRequest) (model.Verdict, error) {
		return moderate(ctx, m, req), nil
	}).Iter(reqs)
}

func moderate(ctx context.Context, m Moderator, req model.ModerationRequest) model.Verdict {
	started := time.Now()
	res, err := m.DetectRequest(ctx, req)
	v := model.NewVerdict(req, started, res, err)
	if v.Failed() {
		slog.ErrorContext(ctx, "moderation could not be completed",
			"request_id", req.ID,
			"source", req.SourcePath,
			"kind", v.Error.Kind.String(),
			"error", err,
		)
	}
	return v
}

func (s *Supervisor) upload(ctx context.Context, v model.Verdict) error {
	var errs []error
	for _, u := range s.uploaders {
		err := u.Upload(ctx, v)
		if err != nil {
			metrics.RecordUploadFailure(uploaderName(u))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) closeUploaders(ctx context.Context) {
	for _, uploader := range s.uploaders {
		if closer, ok := uploader.(model.UploadCloser); ok {
			err := closer.Close()
			if err != nil {
				slog.ErrorContext(ctx, "closing uploader have failed", "error", err)
			}
		}
	}
	s.uploaders = nil
}

// closeBroker closes a broker which is not yet registered as an uploader
func (s *Supervisor) closeBroker(ctx context.Context) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Close(); err != nil {
		slog.ErrorContext(ctx, "closing amqp broker", "error", err)
	}
}

func (s *Supervisor) close(ctx context.Context) {
	s.closeUploaders(ctx)
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
	}
}

func newScheduler(ctx context.Context, cfgp *model.Schedule, startFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, fmt.Errorf("service.schedule is nil")
	}
	cfg := *cfgp
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if _, err := model.ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("service.schedule.duration must be positive: %s", cfg.Duration)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(startFunc),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}

func uploaders(_ context.Context, cfg model.Service, broker *queue.Broker) ([]model.Uploader, error) {
	var uploaders []model.Uploader
	if cfg.Dir != "" {
		u, err := NewDirUploader(cfg.Dir)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, u)
	}

	if cfg.Repository != nil && cfg.Repository.Enabled {
		u, err := NewVerdictRepoUploader(cfg.Repository.URL)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, u)
	}

	if broker != nil {
		uploaders = append(uploaders, broker)
	}

	if len(uploaders) == 0 {
		uploaders = append(uploaders, NewWriteUploader(os.Stdout))
	}
	return uploaders, nil
}

func uploaderName(u model.Uploader) string {
	switch u.(type) {
	case *WriteUploader:
		return "write"
	case *DirUploader:
		return "dir"
	case *VerdictRepoUploader:
		return "repository"
	case *queue.Broker:
		return "amqp"
	default:
		return fmt.Sprintf("%T", u)
	}
}
