package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// partial suffixes are used by upload tools while a file is being written
var partial = []string{".part", ".partial", ".tmp", ".crdownload", ".upload"}

// Video is a candidate upload found in an inbox.
type Video struct {
	Path    string // name of the walked root joined with the relative path
	Size    int64
	ModTime time.Time
}

// Filter decides which regular files are reported as videos.
// Zero value accepts every non empty, non hidden file.
type Filter struct {
	Extensions []string // compared case insensitively, empty means any
}

func (f Filter) accept(name string, info fs.FileInfo) bool {
	if info.Size() == 0 || hidden(name) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if slices.Contains(partial, ext) {
		return false
	}
	if len(f.Extensions) == 0 {
		return true
	}
	return slices.ContainsFunc(f.Extensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

func hidden(name string) bool {
	return name != "." && strings.HasPrefix(name, ".")
}

// Roots walks all roots in order. See Videos for details.
func Roots(ctx context.Context, filter Filter, roots ...*os.Root) iter.Seq2[Video, error] {
	return func(yield func(Video, error) bool) {
		for _, root := range roots {
			for v, err := range Videos(ctx, root.FS(), root.Name(), filter) {
				if !yield(v, err) {
					return
				}
			}
		}
	}
}

// Videos recursively walks root and yields every regular file accepted by
// filter. Hidden directories are not entered and symlinks are not followed.
// Errors of unreadable directories and entries are yielded and the walk
// goes on. Cancelled ctx stops the walk.
func Videos(ctx context.Context, root fs.FS, name string, filter Filter) iter.Seq2[Video, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Video, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			abspath := filepath.Join(name, path)
			if err != nil {
				if !yield(Video{Path: abspath}, err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if hidden(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if !yield(Video{Path: abspath}, err) {
					return fs.SkipAll
				}
				return nil
			}
			if !info.Mode().IsRegular() || !filter.accept(d.Name(), info) {
				return nil
			}
			v := Video{Path: abspath, Size: info.Size(), ModTime: info.ModTime()}
			if !yield(v, nil) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}
