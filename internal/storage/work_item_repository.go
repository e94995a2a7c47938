package storage

import (
	"context"
	"fmt"

	"github.com/stayledger/backend/internal/storage/models"
)

const workItemColumns = `id, property_id, event_id, origin, reservation_id, role,
	scheduled_date, status, created_at, updated_at`

// WorkItemRepository provides data access for arrival/departure work items.
type WorkItemRepository struct {
	BaseRepository
}

// NewWorkItemRepository creates a new work item repository.
func NewWorkItemRepository(db *DB) *WorkItemRepository {
	return &WorkItemRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// ListWorkItems returns every work item of a property by scheduled date.
func (r *WorkItemRepository) ListWorkItems(ctx context.Context, propertyID string) ([]models.WorkItem, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+workItemColumns+` FROM work_items
		WHERE property_id = ?
		ORDER BY scheduled_date, role
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	defer rows.Close()

	return scanWorkItems(rows)
}

// ListWorkItemsForEvent returns the work items linked to one event.
func (r *WorkItemRepository) ListWorkItemsForEvent(ctx context.Context, eventID string) ([]models.WorkItem, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+workItemColumns+` FROM work_items WHERE event_id = ?
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying work items for event: %w", err)
	}
	defer rows.Close()

	return scanWorkItems(rows)
}

// InsertWorkItem stores a new work item and assigns its ID and timestamps.
func (r *WorkItemRepository) InsertWorkItem(ctx context.Context, item *models.WorkItem) error {
	if item.ID == "" {
		item.ID = GenerateID()
	}
	item.CreatedAt = r.Now()
	item.UpdatedAt = item.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO work_items (`+workItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.PropertyID, item.EventID, item.Origin, item.ReservationID, item.Role,
		item.ScheduledDate.Format(models.DateLayout), item.Status, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting work item: %w", err)
	}

	return nil
}

// UpdateWorkItem rewrites the schedule and status of a work item.
func (r *WorkItemRepository) UpdateWorkItem(ctx context.Context, item *models.WorkItem) error {
	item.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE work_items SET scheduled_date = ?, status = ?, reservation_id = ?, updated_at = ?
		WHERE id = ?
	`, item.ScheduledDate.Format(models.DateLayout), item.Status, item.ReservationID, item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("updating work item: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("work item %s: %w", item.ID, ErrNotFound)
	}

	return nil
}

// DeleteWorkItems removes work items by ID.
func (r *WorkItemRepository) DeleteWorkItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	in, args := inClause(ids)
	if _, err := r.DB().ExecContext(ctx, "DELETE FROM work_items WHERE id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("deleting work items: %w", err)
	}

	return nil
}

func scanWorkItems(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]models.WorkItem, error) {
	var items []models.WorkItem
	for rows.Next() {
		var (
			item models.WorkItem
			date string
		)
		if err := rows.Scan(
			&item.ID, &item.PropertyID, &item.EventID, &item.Origin, &item.ReservationID, &item.Role,
			&date, &item.Status, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning work item: %w", err)
		}

		var err error
		if item.ScheduledDate, err = models.ParseDay(date); err != nil {
			return nil, fmt.Errorf("parsing scheduled date of work item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
