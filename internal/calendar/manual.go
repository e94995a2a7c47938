package calendar

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/stayledger/backend/internal/storage/models"
)

// AddManualEvent stores a locally owned event on a property. The event is
// refused with ErrOverlap, plus the conflicting events, when its range
// intersects any stored event. It runs under the property lock so it
// cannot race a reconciliation pass.
func (s *SyncService) AddManualEvent(ctx context.Context, event *models.CalendarEvent) ([]Conflict, error) {
	property, err := s.store.GetProperty(ctx, event.PropertyID)
	if err != nil {
		return nil, persistenceError("getting property", err)
	}
	if property == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, event.PropertyID)
	}

	event.Range = models.NewDateRange(event.Range.Start, event.Range.End)
	if !event.Range.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRange, event.Range)
	}

	event.ID = ""
	event.Origin = models.OriginManual
	if event.Status == "" {
		event.Status = models.EventStatusReserved
	}
	if event.Status != models.EventStatusReserved && event.Status != models.EventStatusBlocked {
		return nil, fmt.Errorf("invalid status %q", event.Status)
	}
	if event.ReservationID == "" {
		event.ReservationID = "manual-" + uuid.NewString()
	}
	event.Title = truncate(event.Title, MaxTitleLength)
	event.Notes = truncate(event.Notes, MaxNotesLength)

	unlock, err := s.locker.Lock(ctx, event.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("waiting for property lock: %w", err)
	}
	defer unlock()

	conflicts, err := s.reconciler.guard.Conflicts(ctx, event.PropertyID, event.Range, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, ErrOverlap
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, persistenceError("inserting manual event", err)
	}

	if err := s.projector.OnEventInserted(ctx, *event); err != nil {
		log.Printf("Failed to project work items for manual event %s: %v", event.ID, err)
	}

	log.Printf("Added manual event %s on property %s: %s", event.ID, event.PropertyID, event.Range)
	return nil, nil
}

// RemoveManualEvent deletes a manual event and its work items. Feed-owned
// events are refused with ErrNotManualEvent.
func (s *SyncService) RemoveManualEvent(ctx context.Context, propertyID, eventID string) error {
	unlock, err := s.locker.Lock(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("waiting for property lock: %w", err)
	}
	defer unlock()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return persistenceError("getting event", err)
	}
	if event == nil || event.PropertyID != propertyID {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if event.Origin != models.OriginManual {
		return fmt.Errorf("%w: %s", ErrNotManualEvent, eventID)
	}

	if err := s.store.DeleteEvents(ctx, []string{event.ID}); err != nil {
		return persistenceError("deleting manual event", err)
	}

	if err := s.projector.OnEventDeleted(ctx, *event); err != nil {
		log.Printf("Failed to delete work items of manual event %s: %v", event.ID, err)
	}

	log.Printf("Removed manual event %s from property %s", event.ID, propertyID)
	return nil
}
