// Package localdir treats a local directory as the remote store of a
// fetchpool.Manager. It is handy for development and tests, and for setups
// where objects are synced to disk before being processed.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/damnever/fetchpool"
)

// Enqueuer accepts discovered files, *fetchpool.Manager implements it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, file fetchpool.RemoteFile) error
}

// List walks dir and returns every regular file as a RemoteFile in lexical
// order. The key is the slash separated path relative to dir.
func List(ctx context.Context, dir, bucket string) ([]fetchpool.RemoteFile, error) {
	var files []fetchpool.RemoteFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		file, err := remoteFile(dir, bucket, path, d)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) { // Removed while walking.
				return nil
			}
			return err
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localdir: list %s: %w", dir, err)
	}
	return files, nil
}

func remoteFile(dir, bucket, path string, d fs.DirEntry) (fetchpool.RemoteFile, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return fetchpool.RemoteFile{}, err
	}
	info, err := d.Info()
	if err != nil {
		return fetchpool.RemoteFile{}, err
	}
	return fetchpool.RemoteFile{
		Bucket:       bucket,
		Key:          filepath.ToSlash(rel),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// Feed enqueues files one by one and returns how many were handed over.
// It stops at the first error, which is fetchpool.ErrStopped if the pool is
// shutting down or the ctx error.
func Feed(ctx context.Context, queue Enqueuer, files []fetchpool.RemoteFile) (int, error) {
	for i, file := range files {
		if err := queue.EnqueueContext(ctx, file); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// HandleFunc processes the content of a single file.
type HandleFunc func(ctx context.Context, file fetchpool.RemoteFile, r io.Reader) error

// Reader is a fetchpool.Processor that opens files below a directory.
// It is safe for concurrent use as long as the HandleFunc is.
type Reader struct {
	dir string
	fn  HandleFunc
}

// NewReader creates a Reader serving keys relative to dir.
func NewReader(dir string, fn HandleFunc) *Reader {
	return &Reader{dir: dir, fn: fn}
}

// Handle opens the file and passes it to the HandleFunc. A file that no
// longer exists is reported as fetchpool.ErrNotFound.
func (r *Reader) Handle(ctx context.Context, file fetchpool.RemoteFile) error {
	name := filepath.FromSlash(file.Key)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("localdir: invalid key %q", file.Key)
	}

	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("localdir: open %s: %w", file, fetchpool.ErrNotFound)
		}
		return fmt.Errorf("localdir: open %s: %w", file, err)
	}
	defer f.Close()

	return r.fn(ctx, file, f)
}
