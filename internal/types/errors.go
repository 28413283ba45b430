package types

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors for common failure modes.
var (
	ErrNoArticle      = errors.New("block has no article element")
	ErrUnexpectedType = errors.New("unexpected content type")
	ErrTooLarge       = errors.New("body exceeds size limit")
	ErrNoQueries      = errors.New("no queries to harvest")
	ErrSourceClosed   = errors.New("render source is closed")
)

// TransportError wraps failures of a single media download.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExtractionIssue reports a post block that could not be parsed into a record.
type ExtractionIssue struct {
	Index int
	Err   error
}

func (e *ExtractionIssue) Error() string {
	return fmt.Sprintf("extraction issue for block %d: %v", e.Index, e.Err)
}

func (e *ExtractionIssue) Unwrap() error { return e.Err }

// SourceUnavailableError is returned when the render source cannot load a query page.
type SourceUnavailableError struct {
	Query string
	URL   string
	Err   error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for query %q (%s): %v", e.Query, e.URL, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsResourceExhausted reports whether err means the local disk cannot take more data.
func IsResourceExhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
