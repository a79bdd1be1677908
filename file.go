package fetchpool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"
)

var (
	// ErrNotFound reports that a file vanished from the store between being
	// listed and being fetched. Workers skip such files silently.
	ErrNotFound = fmt.Errorf("fetchpool: remote file not found")
	// ErrProcessorPanic wraps a panic recovered from Processor.Handle.
	ErrProcessorPanic = fmt.Errorf("fetchpool: processor panicked")
)

// RemoteFile references an object in a remote store.
type RemoteFile struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

func (f RemoteFile) String() string {
	if f.Bucket == "" {
		return f.Key
	}
	return f.Bucket + "/" + f.Key
}

// Processor handles a single remote file.
//
// One Processor is shared by every worker of a Manager, so Handle is called
// concurrently and must be safe for that. Returning an error for which
// IsNotFound is true marks the file as gone; other errors are logged and
// reported through Options.OnError.
type Processor interface {
	Handle(ctx context.Context, file RemoteFile) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, file RemoteFile) error

// Handle calls f(ctx, file).
func (f ProcessorFunc) Handle(ctx context.Context, file RemoteFile) error {
	return f(ctx, file)
}

// IsNotFound reports whether err means the remote file no longer exists.
// Besides ErrNotFound and fs.ErrNotExist it recognizes any error in the chain
// with a `NotFound() bool` method returning true.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}

type contextKeyWorkerID struct{}

func injectWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, contextKeyWorkerID{}, id)
}

// WorkerID returns the ordinal index (starting with 0) of the worker that is
// handling the file. It is only available inside Processor.Handle.
func WorkerID(ctx context.Context) (int, bool) {
	if value := ctx.Value(contextKeyWorkerID{}); value != nil {
		return value.(int), true
	}
	return 0, false
}
