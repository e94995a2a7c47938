package calendar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

var syncNow = time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)

func newTestSyncService(t *testing.T, fetcher Fetcher, opts Options) (*SyncService, *storage.MemoryStore) {
	t.Helper()
	store := newTestStore(t, "villa")
	if opts.PropertyTimeout == 0 {
		opts.PropertyTimeout = 5 * time.Second
	}
	svc := NewSyncService(store, fetcher, NewNormalizer(0, 0), opts)
	svc.now = func() time.Time { return syncNow }
	return svc, store
}

func addFeed(t *testing.T, store *storage.MemoryStore, propertyID string, origin models.Origin, url string) {
	t.Helper()
	require.NoError(t, store.UpsertFeed(context.Background(), &models.FeedSubscription{
		PropertyID: propertyID, Origin: origin, URL: url, Enabled: true,
	}))
}

func feedStatus(t *testing.T, store *storage.MemoryStore, propertyID string, origin models.Origin) models.FeedSubscription {
	t.Helper()
	feeds, err := store.ListFeeds(context.Background(), propertyID)
	require.NoError(t, err)
	for _, f := range feeds {
		if f.Origin == origin {
			return f
		}
	}
	t.Fatalf("no %s feed on %s", origin, propertyID)
	return models.FeedSubscription{}
}

const (
	airbnbURL  = "https://www.airbnb.test/calendar/ical/1.ics?s=token"
	vrboURL    = "https://www.vrbo.test/icalendar/2.ics"
	bookingURL = "https://admin.booking.test/hotel/ical/3.ics"
)

func TestSyncPropertyIsolatesOriginFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})
	ctx := context.Background()

	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "villa", models.OriginVrbo, vrboURL)
	addFeed(t, store, "villa", models.OriginBooking, bookingURL)

	// A vrbo stay from an earlier sync must survive the vrbo outage.
	earlier := models.CalendarEvent{
		PropertyID: "villa", Origin: models.OriginVrbo, ReservationID: "HA-OLD001",
		Range: dates(t, "2024-04-01", "2024-04-05"), Status: models.EventStatusReserved,
	}
	require.NoError(t, store.InsertEvent(ctx, &earlier))

	fetcher.set(airbnbURL, calendarDoc(vevent("a1@airbnb.com", "Reserved",
		"Reservation URL: https://www.airbnb.com/hosting/reservations/details/HMABCDE123", "20240301", "20240305")))
	fetcher.fail(vrboURL, &FeedUnavailableError{URL: "https://www.vrbo.test", StatusCode: 503, Attempts: 3, Err: errors.New("server returned status 503")})
	fetcher.set(bookingURL, []byte("<html>Maintenance</html>"))

	summary, err := svc.SyncProperty(ctx, "villa")
	require.NoError(t, err)

	assert.Equal(t, models.PropertyPartial, summary.Status)
	assert.Equal(t, 2, summary.OriginErrors)
	require.Len(t, summary.Origins, 3)

	byOrigin := map[models.Origin]*models.SyncRun{}
	for _, run := range summary.Origins {
		byOrigin[run.Origin] = run
	}
	assert.Equal(t, 1, byOrigin[models.OriginAirbnb].Inserted)
	assert.False(t, byOrigin[models.OriginAirbnb].Failed())
	assert.ErrorIs(t, byOrigin[models.OriginVrbo].Err, ErrFeedUnavailable)
	assert.ErrorIs(t, byOrigin[models.OriginBooking].Err, ErrParseFailed)

	vrbo := storedEvents(t, store, "villa", models.OriginVrbo)
	require.Len(t, vrbo, 1)
	assert.Equal(t, earlier.ID, vrbo[0].ID)

	airbnb := storedEvents(t, store, "villa", models.OriginAirbnb)
	require.Len(t, airbnb, 1)
	assert.Equal(t, "HMABCDE123", airbnb[0].ReservationID)

	assert.Equal(t, models.SyncStatusSuccess, feedStatus(t, store, "villa", models.OriginAirbnb).SyncStatus)
	failed := feedStatus(t, store, "villa", models.OriginVrbo)
	assert.Equal(t, models.SyncStatusError, failed.SyncStatus)
	require.NotNil(t, failed.SyncError)
	assert.Contains(t, *failed.SyncError, "503")

	require.NotNil(t, summary.LastSyncedAt)
	p, err := store.GetProperty(ctx, "villa")
	require.NoError(t, err)
	assert.NotNil(t, p.LastSyncedAt)

	// The repair pass gives the pre-existing vrbo stay its work items.
	assert.Equal(t, 2, summary.Repair.Created)
	assert.Len(t, pendingKeys(storedWorkItems(t, store, "villa")), 4)
}

func TestSyncPropertyAllOriginsFailed(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})

	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "villa", models.OriginVrbo, vrboURL)

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertyFailed, summary.Status)
	assert.Nil(t, summary.LastSyncedAt)

	p, err := store.GetProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Nil(t, p.LastSyncedAt, "a failed sync does not advance the last sync time")
}

func TestSyncPropertyIsIdempotent(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	fetcher.set(airbnbURL, calendarDoc(
		vevent("a1", "Reserved", "HMABCDE123", "20240301", "20240305"),
		vevent("a2", "Not available", "", "20240310", "20240315"),
	))

	first, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	inserted, _, _ := first.Totals()
	assert.Equal(t, 2, inserted)

	second, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertySynced, second.Status)
	assert.Zero(t, second.Origins[0].Writes())
	assert.Equal(t, models.RepairResult{}, second.Repair)
	assert.Len(t, storedWorkItems(t, store, "villa"), 2, "only the reserved stay has work items")
}

func TestSyncPropertyValidatesID(t *testing.T) {
	svc, _ := newTestSyncService(t, newFakeFetcher(), Options{})

	_, err := svc.SyncProperty(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, err = svc.SyncProperty(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestSyncPropertySkipsInactiveFeeds(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})
	require.NoError(t, store.UpsertFeed(context.Background(), &models.FeedSubscription{
		PropertyID: "villa", Origin: models.OriginAirbnb, URL: airbnbURL, Enabled: false,
	}))

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Empty(t, summary.Origins)
	assert.Equal(t, models.PropertySynced, summary.Status)
	assert.Zero(t, fetcher.callCount(airbnbURL))
}

func TestSyncPropertyTimeout(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = true
	svc, store := newTestSyncService(t, fetcher, Options{PropertyTimeout: 50 * time.Millisecond})
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertyFailed, summary.Status)
	assert.ErrorIs(t, summary.Origins[0].Err, context.DeadlineExceeded)
}

func TestSyncPropertyReportsCrossOriginConflicts(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "villa", models.OriginVrbo, vrboURL)
	fetcher.set(airbnbURL, calendarDoc(vevent("a1", "Reserved", "HMABCDE123", "20240301", "20240305")))
	fetcher.set(vrboURL, calendarDoc(vevent("v1", "Reserved - HA-9ZZ9ZZ", "", "20240303", "20240306")))

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertySynced, summary.Status, "conflicts alone do not degrade the sync")

	events := storedEvents(t, store, "villa", "")
	require.Len(t, events, 1)
	assert.Equal(t, models.OriginAirbnb, events[0].Origin)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.conflicts, 1)
	assert.Contains(t, notifier.conflicts[0], "HA-9ZZ9ZZ")
	assert.Len(t, notifier.properties, 1)
}

func TestSyncPropertyConcurrentCallsDoNotDuplicate(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 5 * time.Millisecond
	svc, store := newTestSyncService(t, fetcher, Options{})

	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "villa", models.OriginVrbo, vrboURL)
	fetcher.set(airbnbURL, calendarDoc(
		vevent("a1", "Reserved", "HMAAAAA111", "20240301", "20240305"),
		vevent("a2", "Reserved", "HMBBBBB222", "20240310", "20240314"),
	))
	fetcher.set(vrboURL, calendarDoc(
		vevent("v1", "HA-111111", "", "20240303", "20240306"),
		vevent("v2", "HA-222222", "", "20240320", "20240322"),
	))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SyncProperty(context.Background(), "villa")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events := storedEvents(t, store, "villa", "")
	require.Len(t, events, 3)
	for i, a := range events {
		for _, b := range events[i+1:] {
			assert.False(t, a.Range.Overlaps(b.Range))
		}
	}
	assert.Len(t, pendingKeys(storedWorkItems(t, store, "villa")), 6)
	assert.Zero(t, svc.locker.Held("villa"))
}

func TestSyncAll(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{PropertyWorkers: 2})
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	require.NoError(t, store.UpsertProperty(ctx, &models.Property{ID: "no-feeds"}))
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "cabin", models.OriginVrbo, vrboURL)
	fetcher.set(airbnbURL, calendarDoc(vevent("a1", "Reserved", "HMABCDE123", "20240301", "20240305")))

	run, err := svc.SyncAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Zero(t, run.NotStarted)
	require.Len(t, run.Properties, 2)
	assert.Equal(t, "cabin", run.Properties[0].PropertyID)
	assert.Equal(t, "villa", run.Properties[1].PropertyID)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Len(t, notifier.runs, 1)
	assert.Len(t, notifier.properties, 2)
}

func TestSyncAllCancelledBeforeStart(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, store := newTestSyncService(t, fetcher, Options{})
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "cabin", models.OriginAirbnb, airbnbURL+"&cabin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 2, run.NotStarted)
	assert.Empty(t, run.Properties)
	assert.Zero(t, fetcher.callCount(airbnbURL))
}

type failingOriginSnapshot struct {
	*storage.MemoryStore
	origin models.Origin
	calls  atomic.Int32
}

func (s *failingOriginSnapshot) ListEvents(ctx context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error) {
	if origin == s.origin {
		s.calls.Add(1)
		return nil, errors.New("disk I/O error")
	}
	return s.MemoryStore.ListEvents(ctx, propertyID, origin)
}

func TestSyncPropertyFailsWhenStoreRetriesAreExhausted(t *testing.T) {
	fetcher := newFakeFetcher()
	store := newTestStore(t, "villa")
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	addFeed(t, store, "villa", models.OriginVrbo, vrboURL)
	fetcher.set(airbnbURL, calendarDoc(vevent("a1", "Reserved", "HMABCDE123", "20240301", "20240305")))
	fetcher.set(vrboURL, calendarDoc(vevent("v1", "Reserved", "", "20240310", "20240314")))

	failing := &failingOriginSnapshot{MemoryStore: store, origin: models.OriginVrbo}
	svc := NewSyncService(failing, fetcher, NewNormalizer(0, 0), Options{
		PropertyTimeout: 5 * time.Second,
		StoreRetries:    2,
		StoreRetryBase:  time.Millisecond,
	})
	svc.now = func() time.Time { return syncNow }

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)

	assert.Equal(t, models.PropertyFailed, summary.Status)
	assert.Nil(t, summary.LastSyncedAt)
	assert.Equal(t, int32(3), failing.calls.Load())

	require.Len(t, summary.Origins, 2)
	assert.Equal(t, 1, summary.Origins[0].Inserted, "the healthy origin keeps its work")
	assert.True(t, summary.Origins[1].StoreFailed)
	assert.ErrorIs(t, summary.Origins[1].Err, ErrPersistence)

	property, err := store.GetProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Nil(t, property.LastSyncedAt)
}

type flakyFeedList struct {
	*storage.MemoryStore
	failures atomic.Int32
}

func (s *flakyFeedList) ListFeeds(ctx context.Context, propertyID string) ([]models.FeedSubscription, error) {
	if s.failures.Add(-1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return s.MemoryStore.ListFeeds(ctx, propertyID)
}

func TestSyncPropertyRetriesTransientStoreFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	store := newTestStore(t, "villa")
	addFeed(t, store, "villa", models.OriginAirbnb, airbnbURL)
	fetcher.set(airbnbURL, calendarDoc(vevent("a1", "Reserved", "HMABCDE123", "20240301", "20240305")))

	flaky := &flakyFeedList{MemoryStore: store}
	flaky.failures.Store(1)
	svc := NewSyncService(flaky, fetcher, NewNormalizer(0, 0), Options{
		PropertyTimeout: 5 * time.Second,
		StoreRetries:    2,
		StoreRetryBase:  time.Millisecond,
	})
	svc.now = func() time.Time { return syncNow }

	summary, err := svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertySynced, summary.Status)
	assert.Len(t, storedEvents(t, store, "villa", ""), 1)

	flaky.failures.Store(100)
	summary, err = svc.SyncProperty(context.Background(), "villa")
	require.NoError(t, err)
	assert.Equal(t, models.PropertyFailed, summary.Status)
	assert.True(t, summary.StoreFailed)
	assert.Empty(t, summary.Origins)
}
