package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestDateRangeOverlaps(t *testing.T) {
	r := DateRange{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-05")}

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"identical", "2024-03-01", "2024-03-05", true},
		{"inside", "2024-03-02", "2024-03-03", true},
		{"covering", "2024-02-20", "2024-03-10", true},
		{"tail", "2024-03-04", "2024-03-08", true},
		{"head", "2024-02-25", "2024-03-02", true},
		{"adjacent after", "2024-03-05", "2024-03-07", false},
		{"adjacent before", "2024-02-27", "2024-03-01", false},
		{"disjoint", "2024-04-01", "2024-04-03", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DateRange{Start: mustDay(t, tt.start), End: mustDay(t, tt.end)}
			assert.Equal(t, tt.want, r.Overlaps(o))
			assert.Equal(t, tt.want, o.Overlaps(r), "overlap must be symmetric")
		})
	}
}

func TestDateRangeValid(t *testing.T) {
	assert.True(t, DateRange{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-02")}.Valid())
	assert.False(t, DateRange{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-01")}.Valid())
	assert.False(t, DateRange{Start: mustDay(t, "2024-03-02"), End: mustDay(t, "2024-03-01")}.Valid())
	assert.False(t, DateRange{}.Valid())
}

func TestDayKeepsTheDateOfItsZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	late := time.Date(2024, 3, 1, 23, 30, 0, 0, tokyo)

	assert.Equal(t, mustDay(t, "2024-03-01"), Day(late))
	assert.Equal(t, mustDay(t, "2024-02-29"), Day(late.UTC()))
}

func TestNewDateRangeTruncates(t *testing.T) {
	r := NewDateRange(
		time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, "2024-03-01→2024-03-04", r.String())
}

func TestSameContent(t *testing.T) {
	base := CalendarEvent{
		ReservationID: "R1",
		Range:         DateRange{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-05")},
		Status:        EventStatusReserved,
		Title:         "Reserved",
	}

	same := base
	same.ID = "other-id"
	assert.True(t, base.SameContent(same), "IDs are not content")

	moved := base
	moved.Range.End = mustDay(t, "2024-03-07")
	assert.False(t, base.SameContent(moved))

	blocked := base
	blocked.Status = EventStatusBlocked
	assert.False(t, base.SameContent(blocked))
}

func TestFeedSubscriptionActive(t *testing.T) {
	assert.True(t, FeedSubscription{Origin: OriginAirbnb, URL: "https://x", Enabled: true}.Active())
	assert.False(t, FeedSubscription{Origin: OriginAirbnb, URL: "", Enabled: true}.Active())
	assert.False(t, FeedSubscription{Origin: OriginAirbnb, URL: "https://x", Enabled: false}.Active())
	assert.False(t, FeedSubscription{Origin: OriginManual, URL: "https://x", Enabled: true}.Active())
}

func TestWorkItemKeyAndDates(t *testing.T) {
	r := DateRange{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-05")}

	assert.Equal(t, "R1_checkin", WorkItem{ReservationID: "R1", Role: RoleArrival}.Key())
	assert.Equal(t, "R1_checkout", WorkItem{ReservationID: "R1", Role: RoleDeparture}.Key())
	assert.Equal(t, r.Start, DateFor(RoleArrival, r))
	assert.Equal(t, r.End, DateFor(RoleDeparture, r))
}
