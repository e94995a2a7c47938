package websocket

import (
	"log"

	"github.com/stayledger/backend/internal/storage/models"
)

// EventBroadcaster turns sync outcomes into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// PropertySynced sends sync.property_completed, or sync.property_failed
// when no origin could be reconciled.
func (b *EventBroadcaster) PropertySynced(summary *models.PropertySummary) {
	inserted, updated, deleted := summary.Totals()
	conflicts := 0
	for _, run := range summary.Origins {
		conflicts += len(run.Conflicts)
	}

	payload := PropertySyncPayload{
		PropertyID:   summary.PropertyID,
		Status:       summary.Status,
		Inserted:     inserted,
		Updated:      updated,
		Deleted:      deleted,
		Conflicts:    conflicts,
		OriginErrors: summary.OriginErrors,
		LastSyncedAt: summary.LastSyncedAt,
	}

	msgType := TypePropertySyncCompleted
	if summary.Status == models.PropertyFailed {
		msgType = TypePropertySyncFailed
		payload.Errors = summary.Errors
		for _, run := range summary.Origins {
			if run.Failed() {
				payload.Errors = append(payload.Errors, run.Error)
			}
		}
	}

	b.broadcast(NewMessage(msgType, payload))
}

// RunCompleted sends a sync.run_completed event.
func (b *EventBroadcaster) RunCompleted(summary *models.RunSummary) {
	b.broadcast(NewMessage(TypeSyncRunCompleted, SyncRunPayload{
		Total:           summary.Total,
		Succeeded:       summary.Succeeded,
		PartiallyFailed: summary.PartiallyFailed,
		Failed:          summary.Failed,
		NotStarted:      summary.NotStarted,
		StartedAt:       summary.StartedAt,
		FinishedAt:      summary.FinishedAt,
	}))
}

// ConflictDetected sends an event.conflict_detected event.
func (b *EventBroadcaster) ConflictDetected(propertyID string, origin models.Origin, description string) {
	b.broadcast(NewMessage(TypeConflictDetected, ConflictPayload{
		PropertyID:  propertyID,
		Origin:      string(origin),
		Description: description,
	}))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(data)
}
