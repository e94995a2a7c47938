package calendar

import (
	"context"
	"fmt"
	"log"

	"github.com/stayledger/backend/internal/storage/models"
)

// EventLister is the read side of the event store.
type EventLister interface {
	ListEvents(ctx context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error)
}

// Conflict describes a stored event that intersects a candidate range.
type Conflict struct {
	EventID       string           `json:"event_id"`
	Origin        models.Origin    `json:"origin"`
	ReservationID string           `json:"reservation_id"`
	Status        string           `json:"status"`
	Range         models.DateRange `json:"date_range"`
	Overlap       models.DateRange `json:"overlap"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s/%s %s (overlap %s)", c.Origin, c.ReservationID, c.Range, c.Overlap)
}

// OverlapGuard checks candidate ranges against every stored event of a
// property, whatever its origin or status.
type OverlapGuard struct {
	events EventLister
}

// NewOverlapGuard creates a new overlap guard.
func NewOverlapGuard(events EventLister) *OverlapGuard {
	return &OverlapGuard{events: events}
}

// Conflicts returns every stored event of the property intersecting rng,
// skipping the event with ID excludeEventID.
func (g *OverlapGuard) Conflicts(ctx context.Context, propertyID string, rng models.DateRange, excludeEventID string) ([]Conflict, error) {
	events, err := g.events.ListEvents(ctx, propertyID, "")
	if err != nil {
		return nil, persistenceError("listing events for overlap check", err)
	}

	conflicts := FindConflicts(events, rng, excludeEventID)
	for _, c := range conflicts {
		log.Printf("Overlap on property %s: %s intersects %s", propertyID, rng, c)
	}
	return conflicts, nil
}

// Overlaps reports whether rng intersects any stored event of the
// property other than excludeEventID. It stops at the first intersection.
func (g *OverlapGuard) Overlaps(ctx context.Context, propertyID string, rng models.DateRange, excludeEventID string) (bool, error) {
	events, err := g.events.ListEvents(ctx, propertyID, "")
	if err != nil {
		return false, persistenceError("listing events for overlap check", err)
	}

	for _, e := range events {
		if e.ID != excludeEventID && e.Range.Overlaps(rng) {
			return true, nil
		}
	}
	return false, nil
}

// FindConflicts is the in-memory form of OverlapGuard.Conflicts.
func FindConflicts(events []models.CalendarEvent, rng models.DateRange, excludeEventID string) []Conflict {
	var conflicts []Conflict
	for _, e := range events {
		if e.ID == excludeEventID || !e.Range.Overlaps(rng) {
			continue
		}

		overlap := rng
		if e.Range.Start.After(overlap.Start) {
			overlap.Start = e.Range.Start
		}
		if e.Range.End.Before(overlap.End) {
			overlap.End = e.Range.End
		}

		conflicts = append(conflicts, Conflict{
			EventID:       e.ID,
			Origin:        e.Origin,
			ReservationID: e.ReservationID,
			Status:        string(e.Status),
			Range:         e.Range,
			Overlap:       overlap,
		})
	}
	return conflicts
}
