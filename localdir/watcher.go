package localdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/damnever/fetchpool"
)

// Watcher enqueues files as they show up in a directory.
//
// Only create events are considered, so writers should move finished files
// into the directory instead of writing them in place. Subdirectories are not
// watched.
type Watcher struct {
	dir     string
	bucket  string
	queue   Enqueuer
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching dir, files are enqueued once Run is called.
func NewWatcher(dir, bucket string, queue Enqueuer, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("localdir: failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("localdir: failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		bucket:  bucket,
		queue:   queue,
		logger:  logger.With(slog.String("dir", dir)),
		watcher: watcher,
	}, nil
}

// Run blocks until ctx is done, the pool stops accepting files or the
// watcher is closed. Enqueueing blocks the event loop, the pool throttles
// the watcher the same way it throttles any other producer.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.enqueue(ctx, event.Name); err != nil {
				if errors.Is(err, fetchpool.ErrStopped) {
					return nil
				}
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		// Gone already, nothing to do.
		w.logger.Debug("skipping vanished file", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return err
	}

	return w.queue.EnqueueContext(ctx, fetchpool.RemoteFile{
		Bucket:       w.bucket,
		Key:          filepath.ToSlash(rel),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	})
}

// Close stops watching the directory.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
