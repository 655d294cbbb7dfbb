package frontier

import (
	"sort"
	"sync"
)

// VisitedSet is a monotonically growing, concurrency-safe set of URLs.
type VisitedSet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

// NewVisitedSet constructs an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// TryMark inserts url and reports whether it was absent. The check and the
// insert happen under one lock, so exactly one caller wins per URL.
func (s *VisitedSet) TryMark(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Contains reports membership.
func (s *VisitedSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok
}

// Len returns the number of members.
func (s *VisitedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

// Snapshot returns the members sorted.
func (s *VisitedSet) Snapshot() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.urls))
	for url := range s.urls {
		out = append(out, url)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
