package calendar

import (
	"context"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
	"github.com/stayledger/backend/internal/workitem"
)

// EventStore is the calendar-event half of the persistence port.
type EventStore interface {
	// ListEvents returns the stored events of a property. An empty origin
	// lists every origin.
	ListEvents(ctx context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error)
	// GetEvent returns nil when the event does not exist.
	GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error)
	InsertEvent(ctx context.Context, event *models.CalendarEvent) error
	UpdateEvent(ctx context.Context, event *models.CalendarEvent) error
	DeleteEvents(ctx context.Context, ids []string) error
}

// PropertyStore gives the sync engine read access to properties and their
// feed configuration plus the few bookkeeping writes it makes.
type PropertyStore interface {
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	ListFeeds(ctx context.Context, propertyID string) ([]models.FeedSubscription, error)
	ListSyncableProperties(ctx context.Context) ([]string, error)
	UpdateFeedStatus(ctx context.Context, propertyID string, origin models.Origin, status string, syncError *string) error
	SetLastSyncedAt(ctx context.Context, propertyID string, at time.Time) error
}

// Store is the full persistence port consumed by the sync engine.
// storage.Store and storage.MemoryStore both satisfy it.
type Store interface {
	EventStore
	workitem.Store
	PropertyStore
}
