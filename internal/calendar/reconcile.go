package calendar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/stayledger/backend/internal/storage/models"
	"github.com/stayledger/backend/internal/workitem"
)

// Reconciler diffs the normalized feed of one (property, origin) pair
// against the stored events of that pair and applies the difference.
// Callers must hold the property lock for the duration of a pass.
type Reconciler struct {
	events    EventStore
	guard     *OverlapGuard
	projector *workitem.Projector
	retry     StoreRetry
}

// NewReconciler creates a reconciler. Store calls that fail are retried
// according to retry.
func NewReconciler(events EventStore, projector *workitem.Projector, retry StoreRetry) *Reconciler {
	return &Reconciler{
		events:    events,
		guard:     NewOverlapGuard(events),
		projector: projector,
		retry:     retry,
	}
}

// Reconcile applies the feed events of origin to the property.
//
// Stored events whose reservation ID is missing from the feed are deleted
// first, so a booking cancelled and rebooked on the same nights under a new
// ID does not conflict with itself. Feed events are then inserted or
// updated in order.
//
// Per-event failures (overlap conflicts, write errors, work-item errors)
// are recorded in the returned run. The error is non-nil only when the
// pass could not start: a manual origin or an unreadable snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, propertyID string, origin models.Origin, events []models.CalendarEvent) (*models.SyncRun, error) {
	run := &models.SyncRun{PropertyID: propertyID, Origin: origin}

	if origin == models.OriginManual {
		run.Fail(ErrManualOrigin)
		return run, ErrManualOrigin
	}

	var stored []models.CalendarEvent
	err := r.retry.Do(ctx, "snapshotting stored events", func() error {
		var err error
		stored, err = r.events.ListEvents(ctx, propertyID, origin)
		return err
	})
	if err != nil {
		run.Fail(err)
		run.StoreFailed = true
		return run, err
	}

	inFeed := make(map[string]bool, len(events))
	for _, e := range events {
		inFeed[e.ReservationID] = true
	}

	current := make(map[string]models.CalendarEvent, len(stored))
	var gone []models.CalendarEvent
	for _, e := range stored {
		if inFeed[e.ReservationID] {
			current[e.ReservationID] = e
			continue
		}
		gone = append(gone, e)
	}
	r.deleteUnseen(ctx, run, gone)

	seen := make(map[string]bool, len(events))
	for _, next := range events {
		run.Processed++
		next.PropertyID = propertyID
		next.Origin = origin

		key := next.ReservationID
		if seen[key] {
			run.AddConflict(fmt.Sprintf("%s/%s %s: duplicate reservation in feed, ignored", origin, key, next.Range))
			continue
		}
		seen[key] = true

		prev, exists := current[key]
		if !exists {
			r.insert(ctx, run, next)
			continue
		}
		if prev.SameContent(next) {
			continue
		}
		r.update(ctx, run, prev, next)
	}

	log.Printf("Reconciled %s/%s: %d processed, %d inserted, %d updated, %d deleted, %d conflicts, %d errors",
		propertyID, origin, run.Processed, run.Inserted, run.Updated, run.Deleted, len(run.Conflicts), len(run.Errors))

	return run, nil
}

func (r *Reconciler) conflicts(ctx context.Context, run *models.SyncRun, next models.CalendarEvent, excludeID string) ([]Conflict, bool) {
	var conflicts []Conflict
	err := r.retry.Do(ctx, "checking overlaps", func() error {
		var err error
		conflicts, err = r.guard.Conflicts(ctx, next.PropertyID, next.Range, excludeID)
		return err
	})
	if err != nil {
		run.AddStoreError(fmt.Sprintf("%s: %v", next.ReservationID, err))
		return nil, false
	}
	return conflicts, true
}

func (r *Reconciler) insert(ctx context.Context, run *models.SyncRun, next models.CalendarEvent) {
	conflicts, ok := r.conflicts(ctx, run, next, "")
	if !ok {
		return
	}
	if len(conflicts) > 0 {
		run.AddConflict(describeConflict(next, "insert skipped", conflicts))
		return
	}

	if err := r.retry.Do(ctx, "inserting event", func() error { return r.events.InsertEvent(ctx, &next) }); err != nil {
		run.AddStoreError(fmt.Sprintf("%s: %v", next.ReservationID, err))
		return
	}
	run.Inserted++

	if err := r.retry.Do(ctx, "projecting work items", func() error { return r.projector.OnEventInserted(ctx, next) }); err != nil {
		log.Printf("Failed to project work items for %s: %v", next.ReservationID, err)
		run.AddError(fmt.Sprintf("%s: work items: %v", next.ReservationID, err))
	}
}

func (r *Reconciler) update(ctx context.Context, run *models.SyncRun, prev, next models.CalendarEvent) {
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt

	if !prev.Range.Equal(next.Range) {
		conflicts, ok := r.conflicts(ctx, run, next, prev.ID)
		if !ok {
			return
		}
		if len(conflicts) > 0 {
			run.AddConflict(describeConflict(next, "update rejected, kept "+prev.Range.String(), conflicts))
			return
		}
	}

	if err := r.retry.Do(ctx, "updating event", func() error { return r.events.UpdateEvent(ctx, &next) }); err != nil {
		run.AddStoreError(fmt.Sprintf("%s: %v", next.ReservationID, err))
		return
	}
	run.Updated++

	if err := r.retry.Do(ctx, "updating work items", func() error { return r.projector.OnEventUpdated(ctx, prev, next) }); err != nil {
		log.Printf("Failed to update work items for %s: %v", next.ReservationID, err)
		run.AddError(fmt.Sprintf("%s: work items: %v", next.ReservationID, err))
	}
}

// deleteUnseen removes, in one call, the stored events the feed no longer
// lists, then their work items.
func (r *Reconciler) deleteUnseen(ctx context.Context, run *models.SyncRun, gone []models.CalendarEvent) {
	if len(gone) == 0 {
		return
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].Range.Start.Before(gone[j].Range.Start) })

	ids := make([]string, len(gone))
	for i, e := range gone {
		ids[i] = e.ID
	}
	if err := r.retry.Do(ctx, "deleting events", func() error { return r.events.DeleteEvents(ctx, ids) }); err != nil {
		run.AddStoreError(fmt.Sprintf("deleting %d events: %v", len(ids), err))
		return
	}
	run.Deleted += len(gone)

	for _, e := range gone {
		if err := r.retry.Do(ctx, "deleting work items", func() error { return r.projector.OnEventDeleted(ctx, e) }); err != nil {
			log.Printf("Failed to delete work items for %s: %v", e.ReservationID, err)
			run.AddError(fmt.Sprintf("%s: work items: %v", e.ReservationID, err))
		}
	}
}

func describeConflict(event models.CalendarEvent, outcome string, conflicts []Conflict) string {
	others := make([]string, len(conflicts))
	for i, c := range conflicts {
		others[i] = c.String()
	}
	return fmt.Sprintf("%s/%s %s: %s, overlaps %s",
		event.Origin, event.ReservationID, event.Range, outcome, strings.Join(others, "; "))
}
