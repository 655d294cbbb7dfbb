package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrObjectNotFound is returned by blob stores for a path that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// FetchErrorKind classifies why a fetch did not produce usable content.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchNetwork FetchErrorKind = "network"
	FetchTimeout FetchErrorKind = "timeout"
	FetchStatus  FetchErrorKind = "status"
)

// FetchError reports a failed retrieval. The URL is never retried.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError classifies err as a timeout or a network failure.
func NewFetchError(url string, err error) *FetchError {
	kind := FetchNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FetchTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}

// NewStatusError reports a response outside the 2xx range.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{URL: url, Kind: FetchStatus, StatusCode: status}
}

// ExtractError reports content that could not be turned into a record.
// No record is persisted and no links are attributed to the page.
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// PersistError reports a record that could not be written.
type PersistError struct {
	URL string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.URL, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Outcome names the branch of the error table a task result falls into.
func Outcome(err error) string {
	var (
		fetchErr   *FetchError
		extractErr *ExtractError
		persistErr *PersistError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &fetchErr):
		return "fetch_" + string(fetchErr.Kind)
	case errors.As(err, &extractErr):
		return "extract_error"
	case errors.As(err, &persistErr):
		return "persist_error"
	default:
		return "error"
	}
}
