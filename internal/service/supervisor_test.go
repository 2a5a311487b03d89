package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/service"
)

// fakeModerator flags videos by their names
type fakeModerator struct{}

func (fakeModerator) DetectRequest(_ context.Context, req model.ModerationRequest) (model.ModerationResult, error) {
	name := filepath.Base(req.SourcePath)
	switch {
	case strings.Contains(name, "broken"):
		return model.ModerationResult{}, &model.ModerationError{Kind: model.KindProcess, ExitCode: 1}
	case strings.Contains(name, "nsfw"):
		return model.ModerationResult{IsNSFW: true, Confidence: 0.9, Details: []model.Finding{model.Label("nudity")}}, nil
	default:
		return model.ModerationResult{Confidence: 0.1, Details: []model.Finding{}}, nil
	}
}

type collector struct {
	mx       sync.Mutex
	verdicts []model.Verdict
	err      error
}

func (c *collector) Upload(_ context.Context, v model.Verdict) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.verdicts = append(c.verdicts, v)
	return c.err
}

func (c *collector) sources() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	var ret []string
	for _, v := range c.verdicts {
		ret = append(ret, filepath.Base(v.Source))
	}
	slices.Sort(ret)
	return ret
}

func inbox(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		touch(t, filepath.Join(dir, name))
	}
	return dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
}

func TestSupervisor_Oneshot(t *testing.T) {
	t.Parallel()
	dir := inbox(t, "cat.mp4", "nsfw.webm", "broken.mkv", "notes.txt", "nested/dog.MOV")
	cfg := model.Service{
		Mode:        model.ServiceModeManual,
		Parallelism: 2,
		Inbox: &model.Inbox{
			Paths:      []string{dir},
			Extensions: []string{".mp4", ".webm", ".mkv", ".mov"},
		},
	}

	supervisor, err := service.NewSupervisor(t.Context(), cfg, fakeModerator{})
	require.NoError(t, err)
	c := &collector{}
	supervisor.WithUploaders(t.Context(), c)

	require.NoError(t, supervisor.Do(t.Context()))
	require.Equal(t, []string{"broken.mkv", "cat.mp4", "dog.MOV", "nsfw.webm"}, c.sources())

	for _, v := range c.verdicts {
		require.NotEmpty(t, v.ID)
		switch filepath.Base(v.Source) {
		case "broken.mkv":
			require.True(t, v.Failed())
			require.Equal(t, model.KindProcess, v.Error.Kind)
		case "nsfw.webm":
			require.True(t, v.Result.IsNSFW)
		default:
			require.False(t, v.Result.IsNSFW)
		}
	}
}

func TestSupervisor_OneshotUploadError(t *testing.T) {
	t.Parallel()
	cfg := model.Service{
		Mode:  model.ServiceModeManual,
		Inbox: &model.Inbox{Paths: []string{inbox(t, "a.mp4")}},
	}
	supervisor, err := service.NewSupervisor(t.Context(), cfg, fakeModerator{})
	require.NoError(t, err)
	boom := errors.New("repository unavailable")
	supervisor.WithUploaders(t.Context(), &collector{err: boom})

	err = supervisor.Do(t.Context())
	require.ErrorIs(t, err, boom)
}

func TestSupervisor_Timer(t *testing.T) {
	t.Parallel()
	dir := inbox(t, "first.mp4")
	cfg := model.Service{
		Mode:     model.ServiceModeTimer,
		Schedule: &model.Schedule{Duration: "PT1S"},
		Inbox:    &model.Inbox{Paths: []string{dir}, Extensions: []string{".mp4"}},
	}
	supervisor, err := service.NewSupervisor(t.Context(), cfg, fakeModerator{})
	require.NoError(t, err)
	c := &collector{}
	supervisor.WithUploaders(t.Context(), c)

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Do(ctx)
	}()

	// explicit start does not wait for the scheduler
	supervisor.Start()
	require.Eventually(t, func() bool {
		return slices.Equal([]string{"first.mp4"}, c.sources())
	}, 5*time.Second, 20*time.Millisecond)

	touch(t, filepath.Join(dir, "second.mp4"))
	require.Eventually(t, func() bool {
		return slices.Equal([]string{"first.mp4", "second.mp4"}, c.sources())
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	// seen videos are not moderated twice
	require.Equal(t, []string{"first.mp4", "second.mp4"}, c.sources())
}

func TestNewSupervisor_Fail(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    model.Service
	}{
		{"manual without inbox", model.Service{Mode: model.ServiceModeManual}},
		{"timer without sources", model.Service{Mode: model.ServiceModeTimer}},
		{"timer without schedule", model.Service{
			Mode:  model.ServiceModeTimer,
			Inbox: &model.Inbox{Paths: []string{"/srv/uploads"}},
		}},
		{"bad cron", model.Service{
			Mode:     model.ServiceModeTimer,
			Schedule: &model.Schedule{Cron: "* * *"},
			Inbox:    &model.Inbox{Paths: []string{"/srv/uploads"}},
		}},
		{"bad repository url", model.Service{
			Mode:       model.ServiceModeManual,
			Inbox:      &model.Inbox{Paths: []string{"/srv/uploads"}},
			Repository: &model.Repository{Enabled: true, URL: "http://repo/with/path"},
		}},
		{"dir does not exist", model.Service{
			Mode:  model.ServiceModeManual,
			Inbox: &model.Inbox{Paths: []string{"/srv/uploads"}},
			Dir:   "/does/not/exist",
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := service.NewSupervisor(t.Context(), tc.given, fakeModerator{})
			require.Error(t, err)
		})
	}
}
