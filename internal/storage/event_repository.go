package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stayledger/backend/internal/storage/models"
)

const eventColumns = `id, property_id, origin, reservation_id, start_date, end_date,
	status, title, notes, created_at, updated_at`

// EventRepository provides data access for calendar events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new calendar event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// ListEvents returns the events of a property ordered by start date.
// An empty origin lists events of every origin.
func (r *EventRepository) ListEvents(ctx context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE property_id = ?`
	args := []any{propertyID}
	if origin != "" {
		query += " AND origin = ?"
		args = append(args, origin)
	}
	query += " ORDER BY start_date, id"

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calendar events: %w", err)
	}
	defer rows.Close()

	var events []models.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetEvent retrieves an event by ID, or nil if it does not exist.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// InsertEvent stores a new event and assigns its ID and timestamps.
func (r *EventRepository) InsertEvent(ctx context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = GenerateID()
	}
	event.CreatedAt = r.Now()
	event.UpdatedAt = event.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.PropertyID, event.Origin, event.ReservationID,
		event.Range.Start.Format(models.DateLayout), event.Range.End.Format(models.DateLayout),
		event.Status, event.Title, event.Notes, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar event: %w", err)
	}

	return nil
}

// UpdateEvent rewrites the mutable fields of an existing event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event *models.CalendarEvent) error {
	event.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_events SET
			start_date = ?, end_date = ?, status = ?, title = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`,
		event.Range.Start.Format(models.DateLayout), event.Range.End.Format(models.DateLayout),
		event.Status, event.Title, event.Notes, event.UpdatedAt, event.ID,
	)
	if err != nil {
		return fmt.Errorf("updating calendar event: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("calendar event %s: %w", event.ID, ErrNotFound)
	}

	return nil
}

// DeleteEvents removes events by ID in one statement.
func (r *EventRepository) DeleteEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	in, args := inClause(ids)
	if _, err := r.DB().ExecContext(ctx, "DELETE FROM calendar_events WHERE id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("deleting calendar events: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.CalendarEvent, error) {
	var (
		event      models.CalendarEvent
		start, end string
	)
	err := row.Scan(
		&event.ID, &event.PropertyID, &event.Origin, &event.ReservationID, &start, &end,
		&event.Status, &event.Title, &event.Notes, &event.CreatedAt, &event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return event, err
	}
	if err != nil {
		return event, fmt.Errorf("scanning calendar event: %w", err)
	}

	if event.Range.Start, err = models.ParseDay(start); err != nil {
		return event, fmt.Errorf("parsing start date of event %s: %w", event.ID, err)
	}
	if event.Range.End, err = models.ParseDay(end); err != nil {
		return event, fmt.Errorf("parsing end date of event %s: %w", event.ID, err)
	}

	return event, nil
}
