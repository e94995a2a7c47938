package handlers

import (
	"net/http"
	"time"

	"github.com/stayledger/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string     `json:"status"`
	DBConnected bool       `json:"db_connected"`
	Clients     int        `json:"websocket_clients"`
	NextSyncAt  *time.Time `json:"next_sync_at,omitempty"`
}

// NextRunner reports when the next scheduled sync runs.
type NextRunner interface {
	NextRun() *time.Time
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(store Store, hub *websocket.Hub, scheduler NextRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := store.Ping(r.Context()) == nil

		response := HealthResponse{
			Status:      "healthy",
			DBConnected: dbConnected,
		}
		if hub != nil {
			response.Clients = hub.ClientCount()
		}
		if scheduler != nil {
			response.NextSyncAt = scheduler.NextRun()
		}

		status := http.StatusOK
		if !dbConnected {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}
