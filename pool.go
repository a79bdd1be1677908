package fetchpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/pprof"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultProcessorsCount is the number of workers used if Options.ProcessorsCount is zero.
	DefaultProcessorsCount = 5
	// DefaultPollTimeout bounds every single offer/poll round.
	DefaultPollTimeout = 150 * time.Millisecond
)

var (
	// ErrNoProcessor is returned by New if Options.Processor is nil.
	ErrNoProcessor = fmt.Errorf("fetchpool: processor is required")
	// ErrInvalidProcessorsCount is returned by New for a negative Options.ProcessorsCount.
	ErrInvalidProcessorsCount = fmt.Errorf("fetchpool: processors count must be positive")
	// ErrAlreadyStarted is returned if Start is called more than once.
	ErrAlreadyStarted = fmt.Errorf("fetchpool: manager already started")
	// ErrStopped indicates Stop has been called, no more files are accepted.
	ErrStopped = fmt.Errorf("fetchpool: manager stopped")
)

// Labels attached to the worker goroutines, visible in goroutine profiles.
const (
	LabelWorker = "fetchpool_worker"
	LabelState  = "fetchpool_state"
)

// Options configurates the Manager.
type Options struct {
	// ProcessorsCount is the number of workers, 0 means DefaultProcessorsCount.
	ProcessorsCount int
	// Processor handles every file, it is shared by all workers and must be
	// safe for concurrent use. Required.
	Processor Processor
	// PollTimeout bounds how long Enqueue and the workers block before
	// re-checking the shutdown flag, 0 means DefaultPollTimeout.
	PollTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics is optional, the caller registers it.
	Metrics *Metrics
	// OnError is called from the worker goroutine for every processor error
	// other than a not-found one, including recovered panics.
	// The worker keeps polling afterwards. It must not panic.
	OnError func(workerID int, file RemoteFile, err error)
}

// Manager owns a fixed set of workers that pull remote files from a
// Handoff and pass them to a shared Processor.
//
// Errors returned by the Processor never stop a worker: not-found errors are
// skipped, everything else is logged and reported through Options.OnError.
// A Manager can not be restarted once stopped.
type Manager struct {
	id              string
	processorsCount int
	pollTimeout     time.Duration
	processor       Processor
	logger          *slog.Logger
	metrics         *Metrics
	onError         func(int, RemoteFile, error)

	handoff *Handoff[RemoteFile]

	lock    sync.Mutex
	started bool
	stopped atomic.Bool
	wg      sync.WaitGroup

	nlive      atomic.Int32
	nbusy      atomic.Int32
	nenqueued  atomic.Uint64
	ndropped   atomic.Uint64
	nprocessed atomic.Uint64
	nnotfound  atomic.Uint64
	nfailed    atomic.Uint64
}

// New creates a new Manager, the workers are not running until Start.
func New(opts Options) (*Manager, error) {
	if opts.Processor == nil {
		return nil, ErrNoProcessor
	}
	if opts.ProcessorsCount < 0 {
		return nil, ErrInvalidProcessorsCount
	}
	if opts.ProcessorsCount == 0 {
		opts.ProcessorsCount = DefaultProcessorsCount
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Manager{
		id:              id,
		processorsCount: opts.ProcessorsCount,
		pollTimeout:     opts.PollTimeout,
		processor:       opts.Processor,
		logger:          opts.Logger.With(slog.String("pool_id", id)),
		metrics:         opts.Metrics,
		onError:         opts.OnError,
		handoff:         NewHandoff[RemoteFile](),
	}, nil
}

// ID identifies the Manager in logs.
func (m *Manager) ID() string {
	return m.id
}

// ProcessorsCount returns the configured number of workers.
func (m *Manager) ProcessorsCount() int {
	return m.processorsCount
}

// Stopped reports whether Stop has been called.
func (m *Manager) Stopped() bool {
	return m.stopped.Load()
}

// Stats contains a list of counters.
type Stats struct {
	LiveWorkers    int
	BusyWorkers    int
	FilesEnqueued  uint64
	FilesDropped   uint64
	FilesProcessed uint64
	FilesNotFound  uint64
	FilesFailed    uint64
}

// Stats returns the current stats.
func (m *Manager) Stats() Stats {
	return Stats{
		LiveWorkers:    int(m.nlive.Load()),
		BusyWorkers:    int(m.nbusy.Load()),
		FilesEnqueued:  m.nenqueued.Load(),
		FilesDropped:   m.ndropped.Load(),
		FilesProcessed: m.nprocessed.Load(),
		FilesNotFound:  m.nnotfound.Load(),
		FilesFailed:    m.nfailed.Load(),
	}
}

// Enqueue blocks until a worker takes the file or the Manager is stopped.
// It returns false if the file was dropped because of the shutdown.
func (m *Manager) Enqueue(file RemoteFile) bool {
	return m.EnqueueContext(context.Background(), file) == nil
}

// EnqueueContext is like Enqueue but also gives up once ctx is done.
// The ctx is checked between two offer rounds, so it may take up to one
// poll timeout to notice. ErrStopped is returned if the file was dropped
// because of the shutdown.
func (m *Manager) EnqueueContext(ctx context.Context, file RemoteFile) error {
	for !m.stopped.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.handoff.Offer(file, m.pollTimeout) {
			m.nenqueued.Add(1)
			if m.metrics != nil {
				m.metrics.FilesEnqueued.Inc()
			}
			return nil
		}
	}

	m.ndropped.Add(1)
	if m.metrics != nil {
		m.metrics.FilesDropped.Inc()
	}
	m.logger.Debug("dropping file, manager is stopping", slog.String("file", file.String()))
	return ErrStopped
}

// Start spawns the workers and returns without waiting for them.
func (m *Manager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.stopped.Load() {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.wg.Add(m.processorsCount)
	for i := 0; i < m.processorsCount; i++ {
		go m.work(i)
	}
	m.logger.Info("workers started", slog.Int("processors_count", m.processorsCount))
	return nil
}

// Stop sets the shutdown flag and waits until every worker has returned.
// A file that is being handled is not interrupted. Calling Stop more than
// once, even concurrently, is safe.
func (m *Manager) Stop() {
	m.lock.Lock()
	first := m.stopped.CompareAndSwap(false, true)
	m.lock.Unlock()

	if first {
		m.logger.Info("stopping workers")
	}
	m.wg.Wait()
	if first {
		m.logger.Info("workers stopped")
	}
}

func (m *Manager) work(id int) {
	defer m.wg.Done()

	base := injectWorkerID(context.Background(), id)
	idle := pprof.WithLabels(base, pprof.Labels(LabelWorker, strconv.Itoa(id), LabelState, "idle"))
	busy := pprof.WithLabels(base, pprof.Labels(LabelWorker, strconv.Itoa(id), LabelState, "busy"))
	pprof.SetGoroutineLabels(idle)
	logger := m.logger.With(slog.Int("worker", id))

	m.nlive.Add(1)
	if m.metrics != nil {
		m.metrics.LiveWorkers.Inc()
	}
	defer func() {
		m.nlive.Add(-1)
		if m.metrics != nil {
			m.metrics.LiveWorkers.Dec()
		}
		logger.Debug("worker exited")
	}()

	for !m.stopped.Load() {
		file, ok := m.handoff.Poll(m.pollTimeout)
		if !ok {
			continue
		}

		pprof.SetGoroutineLabels(busy)
		m.handle(busy, logger, id, file)
		pprof.SetGoroutineLabels(idle)
	}
}

func (m *Manager) handle(ctx context.Context, logger *slog.Logger, id int, file RemoteFile) {
	m.nbusy.Add(1)
	if m.metrics != nil {
		m.metrics.BusyWorkers.Inc()
	}
	start := time.Now()

	err := m.safeHandle(ctx, file)

	elapsed := time.Since(start)
	m.nbusy.Add(-1)
	if m.metrics != nil {
		m.metrics.BusyWorkers.Dec()
		m.metrics.HandleDuration.Observe(elapsed.Seconds())
	}

	switch {
	case err == nil:
		m.nprocessed.Add(1)
		if m.metrics != nil {
			m.metrics.FilesProcessed.Inc()
		}
	case IsNotFound(err):
		// The file was removed while we were working on it, it will not
		// show up in the next listing either.
		m.nnotfound.Add(1)
		if m.metrics != nil {
			m.metrics.FilesNotFound.Inc()
		}
		logger.Debug("file vanished before it could be fetched", slog.String("file", file.String()))
	default:
		m.nfailed.Add(1)
		if m.metrics != nil {
			m.metrics.FilesFailed.Inc()
		}
		logger.Error("failed to handle file",
			slog.String("file", file.String()),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		if m.onError != nil {
			m.onError(id, file, err)
		}
	}
}

func (m *Manager) safeHandle(ctx context.Context, file RemoteFile) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return m.processor.Handle(ctx, file)
}
