package models

import (
	"time"
)

// SyncRun holds the counts of one (property, origin) reconciliation pass.
// It is never persisted; only the property's last-synced timestamp is.
type SyncRun struct {
	PropertyID string   `json:"property_id"`
	Origin     Origin   `json:"origin"`
	Processed  int      `json:"processed"`
	Inserted   int      `json:"inserted"`
	Updated    int      `json:"updated"`
	Deleted    int      `json:"deleted"`
	Skipped    int      `json:"skipped"`
	Conflicts  []string `json:"conflicts,omitempty"`
	Errors     []string `json:"errors,omitempty"`

	// StoreFailed is set when an event read or write still failed after
	// its retries. It fails the whole property sync.
	StoreFailed bool `json:"store_failed,omitempty"`

	// Err is set when the origin could not be reconciled at all
	// (fetch, parse or snapshot failure).
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Fail marks the origin as not reconciled.
func (r *SyncRun) Fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Failed reports whether the origin aborted before reconciliation.
func (r *SyncRun) Failed() bool {
	return r.Err != nil
}

// HasErrors reports whether anything in the pass needs operator attention.
func (r *SyncRun) HasErrors() bool {
	return r.Err != nil || len(r.Errors) > 0
}

// Writes returns the number of event writes made by the pass.
func (r *SyncRun) Writes() int {
	return r.Inserted + r.Updated + r.Deleted
}

// AddError records a recoverable per-event failure.
func (r *SyncRun) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddStoreError records an event persistence failure that outlived its
// retries.
func (r *SyncRun) AddStoreError(msg string) {
	r.StoreFailed = true
	r.Errors = append(r.Errors, msg)
}

// AddConflict records an overlap conflict.
func (r *SyncRun) AddConflict(msg string) {
	r.Conflicts = append(r.Conflicts, msg)
}

// Property sync outcome constants
const (
	PropertySynced  = "synced"
	PropertyPartial = "partial"
	PropertyFailed  = "failed"
)

// RepairResult counts the work-item corrections made after reconciliation.
type RepairResult struct {
	OrphansDeleted int `json:"orphans_deleted"`
	Created        int `json:"created"`
	Cancelled      int `json:"cancelled"`
}

// PropertySummary aggregates the origin passes of one property sync.
type PropertySummary struct {
	PropertyID   string       `json:"property_id"`
	Status       string       `json:"status"`
	Origins      []*SyncRun   `json:"origins"`
	OriginErrors int          `json:"origin_errors"`
	Repair       RepairResult `json:"repair"`
	Errors       []string     `json:"errors,omitempty"`
	StoreFailed  bool         `json:"store_failed,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	LastSyncedAt *time.Time   `json:"last_synced_at,omitempty"`
}

// AddStoreError records a property-level persistence failure that
// outlived its retries.
func (s *PropertySummary) AddStoreError(msg string) {
	s.StoreFailed = true
	s.Errors = append(s.Errors, msg)
}

// Finalize derives Status and OriginErrors from the origin runs. Any
// persistence failure left after retries fails the property.
func (s *PropertySummary) Finalize() {
	failed, withErrors := 0, 0
	storeFailed := s.StoreFailed
	for _, run := range s.Origins {
		if run.Failed() {
			failed++
		}
		if run.StoreFailed {
			storeFailed = true
		}
		if run.HasErrors() {
			withErrors++
		}
	}
	s.OriginErrors = withErrors

	switch {
	case storeFailed, len(s.Origins) > 0 && failed == len(s.Origins):
		s.Status = PropertyFailed
	case withErrors > 0 || len(s.Errors) > 0:
		s.Status = PropertyPartial
	default:
		s.Status = PropertySynced
	}
}

// Totals sums the counts of every origin run.
func (s *PropertySummary) Totals() (inserted, updated, deleted int) {
	for _, run := range s.Origins {
		inserted += run.Inserted
		updated += run.Updated
		deleted += run.Deleted
	}
	return inserted, updated, deleted
}

// RunSummary aggregates a global sync over all properties.
type RunSummary struct {
	Total           int                `json:"total"`
	Succeeded       int                `json:"succeeded"`
	PartiallyFailed int                `json:"partially_failed"`
	Failed          int                `json:"failed"`
	NotStarted      int                `json:"not_started"`
	Properties      []*PropertySummary `json:"properties"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
}

// Add counts a finished property sync.
func (s *RunSummary) Add(p *PropertySummary) {
	s.Properties = append(s.Properties, p)
	switch p.Status {
	case PropertySynced:
		s.Succeeded++
	case PropertyPartial:
		s.PartiallyFailed++
	default:
		s.Failed++
	}
}
