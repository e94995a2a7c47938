// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage/models"
)

// Store is the storage the read and configuration endpoints use.
type Store interface {
	Ping(ctx context.Context) error
	ListProperties(ctx context.Context) ([]models.Property, error)
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	ListFeeds(ctx context.Context, propertyID string) ([]models.FeedSubscription, error)
	UpsertFeed(ctx context.Context, feed *models.FeedSubscription) error
	DeleteFeed(ctx context.Context, propertyID string, origin models.Origin) error
	ListEvents(ctx context.Context, propertyID string, origin models.Origin) ([]models.CalendarEvent, error)
	ListWorkItems(ctx context.Context, propertyID string) ([]models.WorkItem, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// lookupProperty loads the property named in the route, writing a 404 or
// 500 response and returning nil when it cannot.
func lookupProperty(w http.ResponseWriter, r *http.Request, store Store) *models.Property {
	id := mux.Vars(r)["id"]

	property, err := store.GetProperty(r.Context(), id)
	if err != nil {
		log.Printf("Failed to get property %s: %v", id, err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to get property")
		return nil
	}
	if property == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		return nil
	}
	return property
}
