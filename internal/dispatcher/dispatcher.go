// Package dispatcher manages worker fan-out for dispatched URLs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/worker"
)

// ErrStopped is returned by Submit after Close.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher fans out URLs to a fixed pool of workers and collects their
// results on a single channel.
type Dispatcher struct {
	workers []*worker.Worker
	tasks   chan string
	results chan crawler.TaskResult

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Dispatcher. The tasks channel is unbuffered so at most
// len(workers) URLs are being processed at any time.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		workers: workers,
		tasks:   make(chan string),
		results: make(chan crawler.TaskResult, len(workers)),
	}
}

// Start launches every worker.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, w := range d.workers {
		d.wg.Add(1)
		go func(wk *worker.Worker) {
			defer d.wg.Done()
			wk.Run(ctx, d.tasks, d.results)
		}(w)
	}
}

// Submit hands url to the next free worker, blocking while all are busy.
func (d *Dispatcher) Submit(ctx context.Context, url string) error {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	select {
	case d.tasks <- url:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", url, ctx.Err())
	}
}

// Results returns the channel completions are delivered on. It is closed
// once Close has waited for every worker.
func (d *Dispatcher) Results() <-chan crawler.TaskResult {
	return d.results
}

// Close stops accepting work, waits for workers to finish the URLs they
// hold and closes the results channel. Submit must not run concurrently
// with Close.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.tasks)
	d.wg.Wait()
	close(d.results)
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
