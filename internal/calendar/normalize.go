package calendar

import (
	"log"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

// Normalization defaults.
const (
	DefaultPastWindowDays   = 30
	DefaultFutureWindowDays = 365

	MaxTitleLength = 255
	MaxNotesLength = 2000
)

// Normalizer turns raw feed entries into canonical calendar events.
type Normalizer struct {
	Strategies       map[models.Origin]OriginStrategy
	PastWindowDays   int
	FutureWindowDays int
}

// NewNormalizer creates a normalizer with the registered origin strategies.
// Non-positive windows fall back to the defaults.
func NewNormalizer(pastDays, futureDays int) *Normalizer {
	if pastDays <= 0 {
		pastDays = DefaultPastWindowDays
	}
	if futureDays <= 0 {
		futureDays = DefaultFutureWindowDays
	}
	return &Normalizer{
		Strategies:       Strategies,
		PastWindowDays:   pastDays,
		FutureWindowDays: futureDays,
	}
}

// Window returns the bounds of the sliding date filter around ref.
// Entries ending before lower or starting after upper are skipped.
func (n *Normalizer) Window(ref time.Time) (lower, upper time.Time) {
	day := models.Day(ref.UTC())
	return day.AddDate(0, 0, -n.PastWindowDays), day.AddDate(0, 0, n.FutureWindowDays)
}

// Normalize converts one entry of an origin's feed. The returned event has
// no ID or property yet. A *SkipError means the entry should be dropped.
func (n *Normalizer) Normalize(origin models.Origin, entry RawEntry, ref time.Time) (models.CalendarEvent, error) {
	if entry.DateErr != nil {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: entry.DateErr.Error()}
	}
	if entry.Start.IsZero() || entry.End.IsZero() {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: "missing dates"}
	}
	if entry.Status == "CANCELLED" {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: "cancelled in feed"}
	}

	rng := models.NewDateRange(entry.Start, entry.End)
	if !rng.Valid() {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: "start is not before end: " + rng.String()}
	}

	lower, upper := n.Window(ref)
	if rng.End.Before(lower) {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: "ends before " + lower.Format(models.DateLayout)}
	}
	if rng.Start.After(upper) {
		return models.CalendarEvent{}, &SkipError{UID: entry.UID, Reason: "starts after " + upper.Format(models.DateLayout)}
	}

	strategy := StrategyFor(n.Strategies, origin)

	reservationID, ok := strategy.ReservationID(entry)
	if !ok {
		reservationID = entry.UID
	}
	if reservationID == "" {
		return models.CalendarEvent{}, &SkipError{Reason: "no reservation id or UID"}
	}

	return models.CalendarEvent{
		Origin:        origin,
		ReservationID: reservationID,
		Range:         rng,
		Status:        strategy.Status(entry),
		Title:         truncate(entry.Summary, MaxTitleLength),
		Notes:         truncate(entry.Description, MaxNotesLength),
	}, nil
}

// NormalizeAll normalizes a batch, logging and counting skipped entries.
func (n *Normalizer) NormalizeAll(origin models.Origin, entries []RawEntry, ref time.Time) ([]models.CalendarEvent, int) {
	events := make([]models.CalendarEvent, 0, len(entries))
	skipped := 0

	for _, entry := range entries {
		event, err := n.Normalize(origin, entry, ref)
		if err != nil {
			log.Printf("Skipping %s entry: %v", origin, err)
			skipped++
			continue
		}
		events = append(events, event)
	}

	return events, skipped
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
