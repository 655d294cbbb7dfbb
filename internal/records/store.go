// Package records persists crawl records as one JSON object per URL.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
)

// DefaultPrefix is the blob prefix records are written under.
const DefaultPrefix = "pages"

const contentType = "application/json; charset=utf-8"

// Store implements crawler.RecordSink and crawler.RecordSource on a BlobStore.
type Store struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
}

var (
	_ crawler.RecordSink   = (*Store)(nil)
	_ crawler.RecordSource = (*Store)(nil)
)

// New creates a Store. An empty prefix falls back to DefaultPrefix.
func New(blobs crawler.BlobStore, hasher crawler.Hasher, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{blobs: blobs, hasher: hasher, prefix: prefix}
}

// Key returns the storage key for url: <prefix>/<hash(url)>.json.
func (s *Store) Key(url string) (string, error) {
	digest, err := s.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return path.Join(s.prefix, digest+".json"), nil
}

// Save writes record in a single object write. Either the full record is
// stored or nothing is.
func (s *Store) Save(ctx context.Context, record crawler.CrawlRecord) (string, error) {
	if record.URL == "" {
		return "", fmt.Errorf("record url is required")
	}
	key, err := s.Key(record.URL)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Keys lists every record key in lexicographic order. An error means the
// record source as a whole could not be read.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	paths, err := s.blobs.ListObjects(ctx, s.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, ".json") {
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Load reads and decodes the record stored at key.
func (s *Store) Load(ctx context.Context, key string) (crawler.CrawlRecord, error) {
	data, err := s.blobs.GetObject(ctx, key)
	if err != nil {
		return crawler.CrawlRecord{}, fmt.Errorf("get %s: %w", key, err)
	}
	var record crawler.CrawlRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return crawler.CrawlRecord{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if record.URL == "" {
		return crawler.CrawlRecord{}, fmt.Errorf("decode %s: missing url", key)
	}
	return record, nil
}
