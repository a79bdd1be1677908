package fetchpool

import (
	"sync"
	"time"
)

var timerPool = sync.Pool{}

func acquireTimer(d time.Duration) *time.Timer {
	if t, ok := timerPool.Get().(*time.Timer); ok {
		t.Reset(d)
		return t
	}
	return time.NewTimer(d)
}

func releaseTimer(t *time.Timer) {
	// Try our best to make sure the timer is stopped and clean..
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Handoff is a zero-capacity exchange point between producers and consumers.
// An Offer completes only when a Poll is ready to take the item, so the
// producer can never run ahead of the consumers.
type Handoff[T any] struct {
	c chan T
}

// NewHandoff creates a new Handoff.
func NewHandoff[T any]() *Handoff[T] {
	return &Handoff[T]{c: make(chan T)}
}

// Offer hands the item to a waiting receiver, waiting at most timeout for one
// to show up. It returns false if nobody took the item, in which case the
// caller still owns it. A non-positive timeout only succeeds if a receiver is
// already waiting.
func (h *Handoff[T]) Offer(item T, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case h.c <- item:
			return true
		default:
			return false
		}
	}

	timer := acquireTimer(timeout)
	defer releaseTimer(timer)
	select {
	case h.c <- item:
		return true
	case <-timer.C:
		return false
	}
}

// Poll waits at most timeout for an offered item.
func (h *Handoff[T]) Poll(timeout time.Duration) (T, bool) {
	var zero T
	if timeout <= 0 {
		select {
		case item := <-h.c:
			return item, true
		default:
			return zero, false
		}
	}

	timer := acquireTimer(timeout)
	defer releaseTimer(timer)
	select {
	case item := <-h.c:
		return item, true
	case <-timer.C:
		return zero, false
	}
}
