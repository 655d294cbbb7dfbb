package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns fetched content into outbound links and page metadata.
type Extractor interface {
	Extract(pageURL string, body []byte) (Extraction, error)
}

// RecordSink persists crawl records and returns the key they were stored under.
type RecordSink interface {
	Save(ctx context.Context, record CrawlRecord) (string, error)
}

// RecordSource enumerates and loads persisted crawl records.
type RecordSource interface {
	Keys(ctx context.Context) ([]string, error)
	Load(ctx context.Context, key string) (CrawlRecord, error)
}

// BlobStore reads and writes raw artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used to derive storage keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
