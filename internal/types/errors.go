package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrBlocked           = errors.New("blocked by anti-bot protection")
	ErrLocationNotSet    = errors.New("location could not be set")
	ErrLaunchFailed      = errors.New("browser launch failed")
	ErrTaskSource        = errors.New("task source unreadable")
	ErrIllegalTransition = errors.New("illegal session transition")
	ErrNoCandidates      = errors.New("no extraction candidates")
)

// FetchError wraps errors that occur while loading a page or probing a URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// BlockedError signals that the site refused the session. It is fatal for
// the session that observed it.
type BlockedError struct {
	URL    string
	Status int
	Marker string
}

func (e *BlockedError) Error() string {
	switch {
	case e.Marker != "":
		return fmt.Sprintf("blocked at %s: page contains %q", e.URL, e.Marker)
	case e.Status > 0:
		return fmt.Sprintf("blocked at %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("blocked at %s", e.URL)
	}
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// IsBlocked reports whether err carries a block signal anywhere in its chain.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// LocationError is a per-location failure. The location is abandoned.
type LocationError struct {
	Location Location
	Step     string
	Err      error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s failed at %s: %v", e.Location, e.Step, e.Err)
}

func (e *LocationError) Unwrap() error { return e.Err }

// ExtractError wraps a failure inside one extraction strategy.
type ExtractError struct {
	Strategy string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error (%s): %v", e.Strategy, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage  string
	Record *ProductRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
