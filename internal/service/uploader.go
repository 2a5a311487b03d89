package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/vidshare/moderator/internal/model"
)

// WriteUploader writes verdicts as JSON lines.
type WriteUploader struct {
	mx sync.Mutex
	w  io.Writer
}

func NewWriteUploader(w io.Writer) *WriteUploader {
	return &WriteUploader{w: w}
}

func (u *WriteUploader) Upload(_ context.Context, v model.Verdict) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	b = append(b, '\n')

	u.mx.Lock()
	defer u.mx.Unlock()
	if u.w == nil {
		u.w = os.Stdout
	}
	_, err = u.w.Write(b)
	return err
}

// DirUploader stores every verdict as a file in a directory. Files are
// written atomically, so readers never see partial verdicts.
type DirUploader struct {
	dir string
}

func NewDirUploader(dir string) (*DirUploader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirUploader{dir: dir}, nil
}

func (u *DirUploader) Upload(ctx context.Context, v model.Verdict) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	id := v.ID
	if id == "" || filepath.Base(id) != id {
		id = uuid.NewString()
	}
	path := filepath.Join(u.dir, "verdict-"+id+".json")

	if err := renameio.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("saving verdict: %w", err)
	}
	slog.InfoContext(ctx, "verdict saved", "path", path)
	return nil
}
