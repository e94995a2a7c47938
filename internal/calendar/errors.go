package calendar

import (
	"errors"
	"fmt"
)

// Sentinel errors of the sync engine. Callers match them with errors.Is.
var (
	ErrFeedUnavailable  = errors.New("feed unavailable")
	ErrParseFailed      = errors.New("feed could not be parsed")
	ErrPersistence      = errors.New("persistence failure")
	ErrPropertyNotFound = errors.New("property not found")
	ErrInvalidProperty  = errors.New("invalid property id")
	ErrManualOrigin     = errors.New("manual events are not reconciled")
	ErrOverlap          = errors.New("date range overlaps an existing event")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrEventNotFound    = errors.New("event not found")
	ErrNotManualEvent   = errors.New("event is owned by a feed")
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// FeedUnavailableError is returned when a feed could not be downloaded,
// after retries for transient failures. URL is already redacted.
type FeedUnavailableError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FeedUnavailableError) Error() string {
	return fmt.Sprintf("feed %s unavailable after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FeedUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFeedUnavailable) hold.
func (e *FeedUnavailableError) Is(target error) bool { return target == ErrFeedUnavailable }

// ParseError is returned when a feed document is malformed as a whole.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParseFailed) hold.
func (e *ParseError) Is(target error) bool { return target == ErrParseFailed }

// SkipError explains why a single feed entry was not turned into an event.
// It is never fatal.
type SkipError struct {
	UID    string
	Reason string
}

func (e *SkipError) Error() string {
	if e.UID == "" {
		return "skipped entry: " + e.Reason
	}
	return fmt.Sprintf("skipped entry %s: %s", e.UID, e.Reason)
}

// persistenceError wraps a store failure so it matches ErrPersistence
// while keeping the underlying cause.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
