package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

// MemoryStore is an in-process implementation of the sync engine's
// persistence port. It backs tests and dry runs; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[string]*models.Property
	feeds      map[string]map[models.Origin]*models.FeedSubscription
	events     map[string]models.CalendarEvent
	workItems  map[string]models.WorkItem

	// FailWorkItemWrites makes every work item write fail, for tests of
	// the event/work-item consistency policy.
	FailWorkItemWrites bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties: make(map[string]*models.Property),
		feeds:      make(map[string]map[models.Origin]*models.FeedSubscription),
		events:     make(map[string]models.CalendarEvent),
		workItems:  make(map[string]models.WorkItem),
	}
}

// UpsertProperty creates or renames a property.
func (s *MemoryStore) UpsertProperty(_ context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.properties[p.ID]; ok {
		if p.Name != "" {
			existing.Name = p.Name
		}
		existing.UpdatedAt = now
		return nil
	}
	cp := *p
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.properties[p.ID] = &cp
	return nil
}

// GetProperty returns a copy of the property, or nil if it does not exist.
func (s *MemoryStore) GetProperty(_ context.Context, id string) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.properties[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// ListProperties returns every property ordered by ID.
func (s *MemoryStore) ListProperties(_ context.Context) ([]models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Property, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSyncableProperties returns properties with at least one active feed.
func (s *MemoryStore) ListSyncableProperties(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, feeds := range s.feeds {
		for _, f := range feeds {
			if f.Active() {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SetLastSyncedAt records the last sync time of a property.
func (s *MemoryStore) SetLastSyncedAt(_ context.Context, propertyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.properties[propertyID]
	if !ok {
		return fmt.Errorf("property %s: %w", propertyID, ErrNotFound)
	}
	at = at.UTC()
	p.LastSyncedAt = &at
	return nil
}

// ListFeeds returns the subscriptions of a property ordered by origin.
func (s *MemoryStore) ListFeeds(_ context.Context, propertyID string) ([]models.FeedSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FeedSubscription
	for _, f := range s.feeds[propertyID] {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out, nil
}

// UpsertFeed creates or replaces a subscription, creating the property if needed.
func (s *MemoryStore) UpsertFeed(_ context.Context, feed *models.FeedSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if _, ok := s.properties[feed.PropertyID]; !ok {
		s.properties[feed.PropertyID] = &models.Property{ID: feed.PropertyID, CreatedAt: now, UpdatedAt: now}
	}
	if s.feeds[feed.PropertyID] == nil {
		s.feeds[feed.PropertyID] = make(map[models.Origin]*models.FeedSubscription)
	}

	cp := *feed
	if existing, ok := s.feeds[feed.PropertyID][feed.Origin]; ok {
		cp.CreatedAt = existing.CreatedAt
		cp.LastSyncAt = existing.LastSyncAt
		cp.SyncStatus = existing.SyncStatus
		cp.SyncError = existing.SyncError
	} else {
		cp.CreatedAt = now
		cp.SyncStatus = models.SyncStatusPending
	}
	cp.UpdatedAt = now
	s.feeds[feed.PropertyID][feed.Origin] = &cp
	return nil
}

// DeleteFeed removes a subscription.
func (s *MemoryStore) DeleteFeed(_ context.Context, propertyID string, origin models.Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[propertyID][origin]; !ok {
		return fmt.Errorf("feed %s/%s: %w", propertyID, origin, ErrNotFound)
	}
	delete(s.feeds[propertyID], origin)
	return nil
}

// UpdateFeedStatus records the outcome of the last pull of a feed.
func (s *MemoryStore) UpdateFeedStatus(_ context.Context, propertyID string, origin models.Origin, status string, syncError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[propertyID][origin]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	f.SyncStatus = status
	f.SyncError = syncError
	f.UpdatedAt = now
	if status == models.SyncStatusSuccess {
		f.LastSyncAt = &now
	}
	return nil
}

// ListEvents returns the events of a property; an empty origin means all.
func (s *MemoryStore) ListEvents(_ context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CalendarEvent
	for _, e := range s.events {
		if e.PropertyID != propertyID || (origin != "" && e.Origin != origin) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Range.Start.Equal(out[j].Range.Start) {
			return out[i].Range.Start.Before(out[j].Range.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetEvent returns an event by ID, or nil if it does not exist.
func (s *MemoryStore) GetEvent(_ context.Context, id string) (*models.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// InsertEvent stores a new event, enforcing the (property, origin,
// reservation) uniqueness the SQL schema enforces.
func (s *MemoryStore) InsertEvent(_ context.Context, event *models.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.properties[event.PropertyID]; !ok {
		return fmt.Errorf("inserting calendar event: property %s: %w", event.PropertyID, ErrNotFound)
	}
	for _, e := range s.events {
		if e.PropertyID == event.PropertyID && e.Origin == event.Origin && e.ReservationID == event.ReservationID {
			return fmt.Errorf("inserting calendar event: duplicate reservation %s/%s", event.Origin, event.ReservationID)
		}
	}

	if event.ID == "" {
		event.ID = GenerateID()
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	s.events[event.ID] = *event
	return nil
}

// UpdateEvent rewrites an existing event.
func (s *MemoryStore) UpdateEvent(_ context.Context, event *models.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return fmt.Errorf("calendar event %s: %w", event.ID, ErrNotFound)
	}
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = time.Now().UTC()
	s.events[event.ID] = *event
	return nil
}

// DeleteEvents removes events by ID.
func (s *MemoryStore) DeleteEvents(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.events, id)
	}
	return nil
}

// ListWorkItems returns the work items of a property by scheduled date.
func (s *MemoryStore) ListWorkItems(_ context.Context, propertyID string) ([]models.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.WorkItem
	for _, w := range s.workItems {
		if w.PropertyID == propertyID {
			out = append(out, w)
		}
	}
	sortWorkItems(out)
	return out, nil
}

// ListWorkItemsForEvent returns the work items linked to one event.
func (s *MemoryStore) ListWorkItemsForEvent(_ context.Context, eventID string) ([]models.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.WorkItem
	for _, w := range s.workItems {
		if w.EventID == eventID {
			out = append(out, w)
		}
	}
	sortWorkItems(out)
	return out, nil
}

// InsertWorkItem stores a new work item.
func (s *MemoryStore) InsertWorkItem(_ context.Context, item *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWorkItemWrites {
		return fmt.Errorf("inserting work item: store unavailable")
	}
	for _, w := range s.workItems {
		if w.EventID == item.EventID && w.Role == item.Role {
			return fmt.Errorf("inserting work item: duplicate %s for event %s", item.Role, item.EventID)
		}
	}

	if item.ID == "" {
		item.ID = GenerateID()
	}
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	s.workItems[item.ID] = *item
	return nil
}

// UpdateWorkItem rewrites an existing work item.
func (s *MemoryStore) UpdateWorkItem(_ context.Context, item *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWorkItemWrites {
		return fmt.Errorf("updating work item: store unavailable")
	}
	existing, ok := s.workItems[item.ID]
	if !ok {
		return fmt.Errorf("work item %s: %w", item.ID, ErrNotFound)
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.workItems[item.ID] = *item
	return nil
}

// DeleteWorkItems removes work items by ID.
func (s *MemoryStore) DeleteWorkItems(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWorkItemWrites {
		return fmt.Errorf("deleting work items: store unavailable")
	}
	for _, id := range ids {
		delete(s.workItems, id)
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func sortWorkItems(items []models.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledDate.Equal(items[j].ScheduledDate) {
			return items[i].ScheduledDate.Before(items[j].ScheduledDate)
		}
		return items[i].Role < items[j].Role
	})
}
