package service

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidshare/moderator/internal/model"
	"github.com/vidshare/moderator/internal/walk"
)

// Inbox is a set of directories with uploaded videos. Each video is
// returned by Pending once, unless its modification time changes.
type Inbox struct {
	paths  []string
	filter walk.Filter

	mx   sync.Mutex
	seen map[string]time.Time
}

func NewInbox(cfg model.Inbox) (*Inbox, error) {
	paths := make([]string, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("inbox path %s: %w", p, err)
		}
		paths = append(paths, abs)
	}
	return &Inbox{
		paths:  paths,
		filter: walk.Filter{Extensions: cfg.Extensions},
		seen:   make(map[string]time.Time),
	}, nil
}

// Pending returns requests for videos not seen by a previous call.
func (i *Inbox) Pending(ctx context.Context) iter.Seq2[model.ModerationRequest, error] {
	return func(yield func(model.ModerationRequest, error) bool) {
		for _, path := range i.paths {
			if !i.pending(ctx, path, yield) {
				return
			}
		}
	}
}

func (i *Inbox) pending(ctx context.Context, path string, yield func(model.ModerationRequest, error) bool) bool {
	root, err := os.OpenRoot(path)
	if err != nil {
		return yield(model.ModerationRequest{}, fmt.Errorf("opening inbox: %w", err))
	}
	defer func() {
		_ = root.Close()
	}()

	for video, err := range walk.Roots(ctx, i.filter, root) {
		if err != nil {
			if !yield(model.ModerationRequest{}, err) {
				return false
			}
			continue
		}
		if !i.mark(video.Path, video.ModTime) {
			continue
		}
		req := model.ModerationRequest{
			ID:         uuid.NewString(),
			SourcePath: video.Path,
		}
		if !yield(req, nil) {
			return false
		}
	}
	return true
}

// mark records path as seen, returns false if it was already seen
// with the same modification time
func (i *Inbox) mark(path string, modTime time.Time) bool {
	i.mx.Lock()
	defer i.mx.Unlock()
	if prev, ok := i.seen[path]; ok && prev.Equal(modTime) {
		return false
	}
	i.seen[path] = modTime
	return true
}
