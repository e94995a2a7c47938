// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/handlers"
	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/websocket"
)

// NewRouter creates the HTTP router with all API routes. scheduler may be
// nil, in which case async sync requests run in the foreground.
func NewRouter(
	store handlers.Store,
	hub *websocket.Hub,
	syncService *calendar.SyncService,
	scheduler *calendar.Scheduler,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	var (
		trigger    handlers.Trigger
		nextRunner handlers.NextRunner
	)
	if scheduler != nil {
		trigger, nextRunner = scheduler, scheduler
	}

	// Health and WebSocket endpoints
	api.HandleFunc("/health", handlers.HealthCheck(store, hub, nextRunner)).Methods("GET")
	if hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")
	}

	// Sync triggers
	api.HandleFunc("/sync", handlers.SyncAll(syncService, trigger)).Methods("POST")
	api.HandleFunc("/properties/{id}/sync", handlers.SyncProperty(syncService, trigger)).Methods("POST")

	// Properties and feed configuration
	api.HandleFunc("/properties", handlers.ListProperties(store)).Methods("GET")
	api.HandleFunc("/properties/{id}/feeds", handlers.ListFeeds(store)).Methods("GET")
	api.HandleFunc("/properties/{id}/feeds/{origin}", handlers.PutFeed(store)).Methods("PUT")
	api.HandleFunc("/properties/{id}/feeds/{origin}", handlers.DeleteFeed(store)).Methods("DELETE")

	// Calendar events and work items
	api.HandleFunc("/properties/{id}/events", handlers.ListEvents(store)).Methods("GET")
	api.HandleFunc("/properties/{id}/events", handlers.CreateManualEvent(syncService)).Methods("POST")
	api.HandleFunc("/properties/{id}/events/{eventID}", handlers.DeleteManualEvent(syncService)).Methods("DELETE")
	api.HandleFunc("/properties/{id}/work-items", handlers.ListWorkItems(store)).Methods("GET")

	return r
}
