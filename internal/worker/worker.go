// Package worker implements the fetch and extract step for a single dispatched URL.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	RunID string
}

// Worker fetches a URL, checks the status and extracts a crawl record.
// It never retries.
type Worker struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		fetcher:   fetcher,
		extractor: extractor,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes URLs from tasks until the channel is closed. Every URL
// received produces exactly one result.
func (w *Worker) Run(ctx context.Context, tasks <-chan string, results chan<- crawler.TaskResult) {
	for url := range tasks {
		results <- w.Process(ctx, url)
	}
}

// Process handles one URL and reports the outcome.
func (w *Worker) Process(ctx context.Context, url string) crawler.TaskResult {
	start := time.Now()
	result := crawler.TaskResult{URL: url}

	resp, err := w.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	metrics.ObserveFetchDuration(url, time.Since(start))
	if err != nil {
		result.Err = asFetchError(url, err)
		result.Duration = time.Since(start)
		return result
	}
	if !resp.OK() {
		result.Err = crawler.NewStatusError(url, resp.StatusCode)
		result.Duration = time.Since(start)
		return result
	}
	w.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
	)

	extraction, err := w.extractor.Extract(url, resp.Body)
	if err != nil {
		result.Err = &crawler.ExtractError{URL: url, Err: err}
		result.Duration = time.Since(start)
		return result
	}

	record := crawler.CrawlRecord{
		URL:         url,
		Title:       extraction.Title,
		Description: extraction.Description,
		Sections:    extraction.Sections,
		Links:       extraction.Links,
		Content:     extraction.Content,
		RunID:       w.cfg.RunID,
		FetchedAt:   w.now(),
	}
	if record.Sections == nil {
		record.Sections = []crawler.HeaderSection{}
	}
	if record.Links == nil {
		record.Links = []string{}
	}
	metrics.ObserveCrawl(url, "fetched", len(resp.Body))
	result.Record = &record
	result.Duration = time.Since(start)
	return result
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}

func asFetchError(url string, err error) error {
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return crawler.NewFetchError(url, fmt.Errorf("fetch: %w", err))
}
