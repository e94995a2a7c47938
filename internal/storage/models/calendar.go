// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Origin identifies the channel a calendar event came from.
type Origin string

// Origin constants. Manual events are owned locally and never reconciled.
const (
	OriginAirbnb  Origin = "airbnb"
	OriginVrbo    Origin = "vrbo"
	OriginBooking Origin = "booking"
	OriginManual  Origin = "manual"
)

// FeedOrigins lists the origins backed by an external feed, in sync order.
var FeedOrigins = []Origin{OriginAirbnb, OriginVrbo, OriginBooking}

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginAirbnb, OriginVrbo, OriginBooking, OriginManual:
		return true
	}
	return false
}

// EventStatus classifies a calendar event.
type EventStatus string

// Event status constants. Blocked intervals take part in overlap checks
// but never produce work items.
const (
	EventStatusReserved EventStatus = "reserved"
	EventStatusBlocked  EventStatus = "blocked"
)

// DateLayout is the storage and wire layout for calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day, as expressed in t's own location,
// and returns it as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateRange is a half-open [Start, End) range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range from two instants truncated to calendar days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Valid reports whether the range is non-empty.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.Before(r.End)
}

// Overlaps reports whether two ranges share at least one day.
// Adjacent ranges (one ends the day the other starts) do not overlap.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.Before(o.End) && r.End.After(o.Start)
}

// Equal reports whether both boundaries match.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// String formats the range as "start→end".
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + "→" + r.End.Format(DateLayout)
}

// CalendarEvent is the canonical record of a booking or block on a property.
type CalendarEvent struct {
	ID            string      `json:"id"`
	PropertyID    string      `json:"property_id"`
	Origin        Origin      `json:"origin"`
	ReservationID string      `json:"reservation_id"`
	Range         DateRange   `json:"date_range"`
	Status        EventStatus `json:"status"`
	Title         string      `json:"title"`
	Notes         string      `json:"notes"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// SameContent reports whether the reconcilable fields of two events match.
func (e CalendarEvent) SameContent(o CalendarEvent) bool {
	return e.Range.Equal(o.Range) &&
		e.Title == o.Title &&
		e.Notes == o.Notes &&
		e.Status == o.Status
}

// IsReserved reports whether the event is a reservation.
func (e CalendarEvent) IsReserved() bool {
	return e.Status == EventStatusReserved
}

// FeedSubscription is the feed configuration of one origin on one property.
type FeedSubscription struct {
	PropertyID string     `json:"property_id"`
	Origin     Origin     `json:"origin"`
	URL        string     `json:"url"`
	Enabled    bool       `json:"enabled"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus string     `json:"sync_status"`
	SyncError  *string    `json:"sync_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Active reports whether the feed should be pulled.
func (f FeedSubscription) Active() bool {
	return f.Enabled && f.URL != "" && f.Origin != OriginManual
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Property is the local record of an externally managed property.
type Property struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
