package models

import (
	"time"
)

// WorkItemRole says which end of a stay a work item is attached to.
type WorkItemRole string

// Work item roles.
const (
	RoleArrival   WorkItemRole = "arrival"
	RoleDeparture WorkItemRole = "departure"
)

// WorkItemRoles lists both roles in creation order.
var WorkItemRoles = []WorkItemRole{RoleArrival, RoleDeparture}

// Suffix returns the natural-key suffix of the role.
func (r WorkItemRole) Suffix() string {
	if r == RoleArrival {
		return "checkin"
	}
	return "checkout"
}

// Work item status constants
const (
	WorkItemPending   = "pending"   // Scheduled
	WorkItemCancelled = "cancelled" // Event reclassified to blocked
)

// WorkItem is an arrival or departure task derived from a reserved event.
type WorkItem struct {
	ID            string       `json:"id"`
	PropertyID    string       `json:"property_id"`
	EventID       string       `json:"event_id"`
	Origin        Origin       `json:"origin"`
	ReservationID string       `json:"reservation_id"`
	Role          WorkItemRole `json:"role"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Key returns the natural key, e.g. "HM123_checkin".
func (w WorkItem) Key() string {
	return w.ReservationID + "_" + w.Role.Suffix()
}

// DateFor returns the scheduled date a role takes from an event range.
func DateFor(role WorkItemRole, r DateRange) time.Time {
	if role == RoleArrival {
		return r.Start
	}
	return r.End
}
