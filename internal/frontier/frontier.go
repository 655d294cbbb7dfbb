// Package frontier provides the pending-URL queue and the visited set used by
// the crawl orchestrator.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrIdle is returned by Pop when nothing arrived within the idle timeout.
	ErrIdle = errors.New("frontier idle")
	// ErrClosed is returned by Pop once the frontier has been closed and drained.
	ErrClosed = errors.New("frontier closed")
)

// Frontier is an unbounded FIFO of URLs awaiting dispatch. It may hold the
// same URL more than once; deduplication is the caller's job.
type Frontier struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
	closed bool
}

// New constructs an empty Frontier.
func New() *Frontier {
	return &Frontier{
		notify: make(chan struct{}, 1),
	}
}

// Push appends a URL. Pushing to a closed frontier is a no-op.
func (f *Frontier) Push(url string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.items = append(f.items, url)
	f.mu.Unlock()
	f.signal()
}

// Pop removes the oldest URL, blocking until one is available, the idle
// timeout elapses (ErrIdle) or the context ends.
func (f *Frontier) Pop(ctx context.Context, idle time.Duration) (string, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		if url, ok, closed := f.tryPop(); ok {
			return url, nil
		} else if closed {
			return "", ErrClosed
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("pop canceled: %w", ctx.Err())
		case <-timer.C:
			if url, ok, _ := f.tryPop(); ok {
				return url, nil
			}
			return "", ErrIdle
		case <-f.notify:
		}
	}
}

// Len returns the number of pending URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Close wakes any blocked Pop. Items still queued can be popped.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
}

func (f *Frontier) tryPop() (string, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return "", false, f.closed
	}
	url := f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]
	if len(f.items) > 0 {
		// keep the next waiter awake
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	return url, true, f.closed
}

func (f *Frontier) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}
