// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// HeaderSection is one header of a page together with the text blocks that follow it.
type HeaderSection struct {
	Level     string   `json:"level"`
	Content   string   `json:"content"`
	Responses []string `json:"responses"`
}

// CrawlRecord is persisted once per successfully fetched and extracted URL.
// Records are immutable after they are written.
type CrawlRecord struct {
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Sections    []HeaderSection `json:"data"`
	Links       []string        `json:"links"`
	Content     string          `json:"content"`
	RunID       string          `json:"run_id,omitempty"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// HasLinks reports whether the record carries at least one outbound link.
func (r CrawlRecord) HasLinks() bool {
	return len(r.Links) > 0
}

// Extraction is what a page extractor pulls out of fetched content.
type Extraction struct {
	Title       string
	Description string
	Content     string
	Sections    []HeaderSection
	Links       []string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL       string
	UserAgent string
	Headers   http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// TaskResult is sent by a worker once a dispatched URL has been processed.
// Exactly one of Record and Err is set.
type TaskResult struct {
	URL      string
	Record   *CrawlRecord
	Err      error
	Duration time.Duration
}

// Notification is published after a record has been persisted.
type Notification struct {
	RunID string `json:"run_id"`
	URL   string `json:"url"`
	Key   string `json:"key"`
}
