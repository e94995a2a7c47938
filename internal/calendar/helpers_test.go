package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

var (
	_ Store   = (*storage.Store)(nil)
	_ Store   = (*storage.MemoryStore)(nil)
	_ Fetcher = (*FeedClient)(nil)
)

func day(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return d
}

func dates(t testing.TB, start, end string) models.DateRange {
	t.Helper()
	return models.DateRange{Start: day(t, start), End: day(t, end)}
}

// newTestStore returns a memory store holding the given properties.
func newTestStore(t testing.TB, propertyIDs ...string) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, id := range propertyIDs {
		require.NoError(t, store.UpsertProperty(context.Background(), &models.Property{ID: id, Name: id}))
	}
	return store
}

func reserved(t testing.TB, reservationID, start, end string) models.CalendarEvent {
	t.Helper()
	return models.CalendarEvent{
		ReservationID: reservationID,
		Range:         dates(t, start, end),
		Status:        models.EventStatusReserved,
		Title:         "Reserved",
	}
}

func storedEvents(t testing.TB, store EventStore, propertyID string, origin models.Origin) []models.CalendarEvent {
	t.Helper()
	events, err := store.ListEvents(context.Background(), propertyID, origin)
	require.NoError(t, err)
	return events
}

func storedWorkItems(t testing.TB, store *storage.MemoryStore, propertyID string) []models.WorkItem {
	t.Helper()
	items, err := store.ListWorkItems(context.Background(), propertyID)
	require.NoError(t, err)
	return items
}

func pendingKeys(items []models.WorkItem) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, item := range items {
		if item.Status == models.WorkItemPending {
			out[item.Key()] = item.ScheduledDate
		}
	}
	return out
}

// vevent renders an all-day VEVENT. Dates are YYYYMMDD.
func vevent(uid, summary, description, start, end string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VEVENT\r\n")
	b.WriteString("UID:" + uid + "\r\n")
	b.WriteString("DTSTAMP:20240101T000000Z\r\n")
	b.WriteString("DTSTART;VALUE=DATE:" + start + "\r\n")
	if end != "" {
		b.WriteString("DTEND;VALUE=DATE:" + end + "\r\n")
	}
	if summary != "" {
		b.WriteString("SUMMARY:" + summary + "\r\n")
	}
	if description != "" {
		b.WriteString("DESCRIPTION:" + description + "\r\n")
	}
	b.WriteString("END:VEVENT\r\n")
	return b.String()
}

func calendarDoc(events ...string) []byte {
	return []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//stayledger//test//EN\r\n" +
		strings.Join(events, "") +
		"END:VCALENDAR\r\n")
}

// fakeFetcher serves canned documents by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string][]byte
	errs  map[string]error
	calls map[string]int
	delay time.Duration
	block bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs:  make(map[string][]byte),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) set(url string, doc []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[url] = doc
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	doc, ok := f.docs[url]
	err := f.errs[url]
	delay, block := f.delay, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &FeedUnavailableError{URL: url, StatusCode: 404, Attempts: 1, Err: fmt.Errorf("feed returned status 404")}
	}
	return doc, nil
}

// recordingNotifier captures every notification.
type recordingNotifier struct {
	mu         sync.Mutex
	properties []*models.PropertySummary
	runs       []*models.RunSummary
	conflicts  []string
}

func (n *recordingNotifier) PropertySynced(summary *models.PropertySummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.properties = append(n.properties, summary)
}

func (n *recordingNotifier) RunCompleted(summary *models.RunSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, summary)
}

func (n *recordingNotifier) ConflictDetected(propertyID string, origin models.Origin, description string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conflicts = append(n.conflicts, fmt.Sprintf("%s/%s: %s", propertyID, origin, description))
}
