// Package orchestrator drives a crawl run: it pops URLs from the frontier,
// dispatches them to the worker pool and handles completions until the
// frontier stays idle with nothing in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/dispatcher"
	"github.com/gorbunovakris4/hse-crawler/internal/frontier"
	"github.com/gorbunovakris4/hse-crawler/internal/metrics"
)

// State is the lifecycle phase of a crawl run.
type State int32

// Crawl run states.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotStarted is returned by Run before Start has seeded the frontier.
var ErrNotStarted = errors.New("orchestrator not started")

// Config controls a crawl run.
type Config struct {
	RunID       string
	IdleTimeout time.Duration
	// Topic receives a notification per persisted record. Empty disables publishing.
	Topic string
}

// Summary describes a finished crawl run.
type Summary struct {
	RunID     string
	Visited   int
	Persisted int
	Failed    int
	Duration  time.Duration
	State     State
}

// Orchestrator owns the frontier, the visited set and the worker pool.
type Orchestrator struct {
	frontier   *frontier.Frontier
	visited    *frontier.VisitedSet
	claimed    *frontier.VisitedSet
	dispatcher *dispatcher.Dispatcher
	sink       crawler.RecordSink
	publisher  crawler.Publisher
	cfg        Config
	logger     *zap.Logger

	state     atomic.Int32
	inFlight  atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
}

// New wires an Orchestrator. publisher may be nil.
func New(
	queue *frontier.Frontier,
	visited *frontier.VisitedSet,
	pool *dispatcher.Dispatcher,
	sink crawler.RecordSink,
	publisher crawler.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		frontier:   queue,
		visited:    visited,
		claimed:    frontier.NewVisitedSet(),
		dispatcher: pool,
		sink:       sink,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.With(zap.String("run_id", cfg.RunID)),
	}
}

// State reports the current lifecycle phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Visited returns the URLs dispatched so far, sorted.
func (o *Orchestrator) Visited() []string {
	return o.visited.Snapshot()
}

// Start seeds the frontier and moves the run to Running.
func (o *Orchestrator) Start(seed string) error {
	if seed == "" {
		return fmt.Errorf("seed url is required")
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("start: orchestrator is %s", o.State())
	}
	o.enqueue(seed)
	o.logger.Info("crawl started", zap.String("seed", seed))
	return nil
}

// Run blocks until the crawl terminates. Termination happens once a pop
// times out while the frontier is empty and no dispatched URL is still
// awaiting completion. Cancelling ctx stops dispatching; completions that
// were already produced are still handled.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	if o.State() != StateRunning {
		return Summary{}, ErrNotStarted
	}
	start := time.Now()

	o.dispatcher.Start(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for result := range o.dispatcher.Results() {
			o.complete(ctx, result)
		}
	}()

	runErr := o.loop(ctx)

	o.state.Store(int32(StateDraining))
	o.dispatcher.Close()
	<-consumerDone
	o.frontier.Close()
	o.state.Store(int32(StateTerminated))

	summary := Summary{
		RunID:     o.cfg.RunID,
		Visited:   o.visited.Len(),
		Persisted: int(o.persisted.Load()),
		Failed:    int(o.failed.Load()),
		Duration:  time.Since(start),
		State:     StateTerminated,
	}
	o.logger.Info("crawl finished",
		zap.Int("visited", summary.Visited),
		zap.Int("persisted", summary.Persisted),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, runErr
}

func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		url, err := o.frontier.Pop(ctx, o.cfg.IdleTimeout)
		switch {
		case errors.Is(err, frontier.ErrIdle):
			// in-flight is read before the frontier length: completions push
			// their links before they decrement the counter.
			if o.inFlight.Load() == 0 && o.frontier.Len() == 0 {
				o.logger.Debug("frontier idle with nothing in flight")
				return nil
			}
			continue
		case errors.Is(err, frontier.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("crawl interrupted: %w", err)
		}
		metrics.SetFrontierDepth(o.frontier.Len())

		if !o.visited.TryMark(url) {
			continue
		}
		metrics.SetVisited(o.visited.Len())

		o.inFlight.Add(1)
		metrics.IncInFlight()
		if err := o.dispatcher.Submit(ctx, url); err != nil {
			o.inFlight.Add(-1)
			metrics.DecInFlight()
			return fmt.Errorf("crawl interrupted: %w", err)
		}
	}
}

// complete handles one task result. It is only ever called from the single
// consumer goroutine.
func (o *Orchestrator) complete(ctx context.Context, result crawler.TaskResult) {
	defer func() {
		o.inFlight.Add(-1)
		metrics.DecInFlight()
	}()

	if result.Err != nil {
		o.failed.Add(1)
		metrics.ObserveCrawl(result.URL, crawler.Outcome(result.Err), 0)
		o.logger.Warn("page dropped",
			zap.String("url", result.URL),
			zap.String("outcome", crawler.Outcome(result.Err)),
			zap.Error(result.Err),
		)
		return
	}

	record := result.Record
	added := 0
	for _, link := range record.Links {
		if o.enqueue(link) {
			added++
		}
	}
	metrics.SetFrontierDepth(o.frontier.Len())

	persistCtx := context.WithoutCancel(ctx)
	key, err := o.sink.Save(persistCtx, *record)
	if err != nil {
		perr := &crawler.PersistError{URL: result.URL, Err: err}
		o.failed.Add(1)
		metrics.ObserveCrawl(result.URL, crawler.Outcome(perr), 0)
		o.logger.Error("record not persisted", zap.String("url", result.URL), zap.Error(perr))
		return
	}
	o.persisted.Add(1)
	metrics.ObserveCrawl(result.URL, crawler.Outcome(nil), 0)
	o.logger.Debug("record persisted",
		zap.String("url", result.URL),
		zap.String("key", key),
		zap.Int("links", len(record.Links)),
		zap.Int("new_links", added),
		zap.Duration("duration", result.Duration),
	)
	o.notify(persistCtx, result.URL, key)
}

// enqueue claims url and pushes it once per run.
func (o *Orchestrator) enqueue(url string) bool {
	if !o.claimed.TryMark(url) {
		return false
	}
	o.frontier.Push(url)
	return true
}

func (o *Orchestrator) notify(ctx context.Context, url, key string) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	_, err := o.publisher.Publish(ctx, o.cfg.Topic, crawler.Notification{
		RunID: o.cfg.RunID,
		URL:   url,
		Key:   key,
	})
	if err != nil {
		metrics.ObservePublishFailure()
		o.logger.Warn("notification not published", zap.String("url", url), zap.Error(err))
	}
}
