// Package workitem derives arrival and departure work items from reserved
// calendar events and keeps them in step with event changes.
package workitem

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/stayledger/backend/internal/storage/models"
)

// Store is the work-item half of the persistence port.
type Store interface {
	ListWorkItems(ctx context.Context, propertyID string) ([]models.WorkItem, error)
	ListWorkItemsForEvent(ctx context.Context, eventID string) ([]models.WorkItem, error)
	InsertWorkItem(ctx context.Context, item *models.WorkItem) error
	UpdateWorkItem(ctx context.Context, item *models.WorkItem) error
	DeleteWorkItems(ctx context.Context, ids []string) error
}

// Projector is the only writer of work items.
type Projector struct {
	store Store
}

// NewProjector creates a projector over the given store.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// OnEventInserted creates the arrival/departure pair of a reserved event.
// Blocked events get no work items.
func (p *Projector) OnEventInserted(ctx context.Context, event models.CalendarEvent) error {
	if !event.IsReserved() {
		return nil
	}
	_, err := p.ensurePending(ctx, event)
	return err
}

// OnEventUpdated follows an event change: dates shift with the range,
// reserved→blocked cancels the pair, blocked→reserved brings it back.
func (p *Projector) OnEventUpdated(ctx context.Context, prev, next models.CalendarEvent) error {
	if next.IsReserved() {
		_, err := p.ensurePending(ctx, next)
		return err
	}
	if prev.IsReserved() {
		_, err := p.cancel(ctx, next)
		return err
	}
	return nil
}

// OnEventDeleted hard-deletes the work items of a removed event.
func (p *Projector) OnEventDeleted(ctx context.Context, event models.CalendarEvent) error {
	items, err := p.store.ListWorkItemsForEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("listing work items of %s: %w", event.ReservationID, err)
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := p.store.DeleteWorkItems(ctx, ids); err != nil {
		return fmt.Errorf("deleting work items of %s: %w", event.ReservationID, err)
	}
	return nil
}

// Repair brings the stored work items of a property back in line with its
// events: orphans are deleted, missing or stale pairs of reserved events are
// rewritten, and pending items of blocked events are cancelled. It is the
// catch-up step for work-item writes that failed during reconciliation.
func (p *Projector) Repair(ctx context.Context, propertyID string, events []models.CalendarEvent) (models.RepairResult, error) {
	var result models.RepairResult

	items, err := p.store.ListWorkItems(ctx, propertyID)
	if err != nil {
		return result, fmt.Errorf("listing work items: %w", err)
	}

	byEvent := make(map[string][]models.WorkItem, len(events))
	for _, item := range items {
		byEvent[item.EventID] = append(byEvent[item.EventID], item)
	}

	var errs []error
	live := make(map[string]bool, len(events))
	for _, event := range events {
		live[event.ID] = true
		current := byEvent[event.ID]

		if event.IsReserved() {
			if inSync(event, current) {
				continue
			}
			created, err := p.ensurePending(ctx, event)
			result.Created += created
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if hasPending(current) {
			cancelled, err := p.cancel(ctx, event)
			result.Cancelled += cancelled
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	var orphans []string
	for _, item := range items {
		if !live[item.EventID] {
			orphans = append(orphans, item.ID)
		}
	}
	if len(orphans) > 0 {
		if err := p.store.DeleteWorkItems(ctx, orphans); err != nil {
			errs = append(errs, fmt.Errorf("deleting orphaned work items: %w", err))
		} else {
			result.OrphansDeleted = len(orphans)
			log.Printf("Deleted %d orphaned work items for property %s", len(orphans), propertyID)
		}
	}

	return result, errors.Join(errs...)
}

// ensurePending makes both work items of a reserved event exist, be pending
// and carry the event's current boundaries. It returns how many it created.
func (p *Projector) ensurePending(ctx context.Context, event models.CalendarEvent) (int, error) {
	items, err := p.store.ListWorkItemsForEvent(ctx, event.ID)
	if err != nil {
		return 0, fmt.Errorf("listing work items of %s: %w", event.ReservationID, err)
	}

	byRole := make(map[models.WorkItemRole]models.WorkItem, len(items))
	for _, item := range items {
		byRole[item.Role] = item
	}

	created := 0
	var errs []error
	for _, role := range models.WorkItemRoles {
		date := models.DateFor(role, event.Range)

		item, ok := byRole[role]
		if !ok {
			item = models.WorkItem{
				PropertyID:    event.PropertyID,
				EventID:       event.ID,
				Origin:        event.Origin,
				ReservationID: event.ReservationID,
				Role:          role,
				ScheduledDate: date,
				Status:        models.WorkItemPending,
			}
			if err := p.store.InsertWorkItem(ctx, &item); err != nil {
				errs = append(errs, fmt.Errorf("creating %s work item %s: %w", role, item.Key(), err))
				continue
			}
			created++
			continue
		}

		if item.ScheduledDate.Equal(date) && item.Status == models.WorkItemPending && item.ReservationID == event.ReservationID {
			continue
		}
		item.ScheduledDate = date
		item.Status = models.WorkItemPending
		item.ReservationID = event.ReservationID
		if err := p.store.UpdateWorkItem(ctx, &item); err != nil {
			errs = append(errs, fmt.Errorf("updating %s work item %s: %w", role, item.Key(), err))
		}
	}

	return created, errors.Join(errs...)
}

// cancel marks the pending work items of an event as cancelled. Items are
// kept rather than deleted because downstream tools may reference them.
func (p *Projector) cancel(ctx context.Context, event models.CalendarEvent) (int, error) {
	items, err := p.store.ListWorkItemsForEvent(ctx, event.ID)
	if err != nil {
		return 0, fmt.Errorf("listing work items of %s: %w", event.ReservationID, err)
	}

	cancelled := 0
	var errs []error
	for _, item := range items {
		if item.Status == models.WorkItemCancelled {
			continue
		}
		item.Status = models.WorkItemCancelled
		if err := p.store.UpdateWorkItem(ctx, &item); err != nil {
			errs = append(errs, fmt.Errorf("cancelling work item %s: %w", item.Key(), err))
			continue
		}
		cancelled++
	}

	return cancelled, errors.Join(errs...)
}

func inSync(event models.CalendarEvent, items []models.WorkItem) bool {
	if len(items) != len(models.WorkItemRoles) {
		return false
	}
	for _, item := range items {
		if item.Status != models.WorkItemPending || !item.ScheduledDate.Equal(models.DateFor(item.Role, event.Range)) {
			return false
		}
	}
	return true
}

func hasPending(items []models.WorkItem) bool {
	for _, item := range items {
		if item.Status == models.WorkItemPending {
			return true
		}
	}
	return false
}
