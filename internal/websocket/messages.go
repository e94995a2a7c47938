package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypePropertySyncCompleted MessageType = "sync.property_completed"
	TypePropertySyncFailed    MessageType = "sync.property_failed"
	TypeSyncRunCompleted      MessageType = "sync.run_completed"
	TypeConflictDetected      MessageType = "event.conflict_detected"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// PropertySyncPayload is the payload for sync.property_* events.
type PropertySyncPayload struct {
	PropertyID   string     `json:"property_id"`
	Status       string     `json:"status"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Deleted      int        `json:"deleted"`
	Conflicts    int        `json:"conflicts"`
	OriginErrors int        `json:"origin_errors"`
	Errors       []string   `json:"errors,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// SyncRunPayload is the payload for sync.run_completed events.
type SyncRunPayload struct {
	Total           int       `json:"total"`
	Succeeded       int       `json:"succeeded"`
	PartiallyFailed int       `json:"partially_failed"`
	Failed          int       `json:"failed"`
	NotStarted      int       `json:"not_started"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// ConflictPayload is the payload for event.conflict_detected events.
type ConflictPayload struct {
	PropertyID  string `json:"property_id"`
	Origin      string `json:"origin"`
	Description string `json:"description"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
