package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/storage/models"
)

// Syncer runs syncs in the foreground.
type Syncer interface {
	SyncProperty(ctx context.Context, propertyID string) (*models.PropertySummary, error)
	SyncAll(ctx context.Context) (*models.RunSummary, error)
}

// Trigger runs syncs in the background.
type Trigger interface {
	TriggerProperty(propertyID string) error
	TriggerAll() error
}

// SyncProperty syncs one property and returns its summary. With
// ?async=true the sync is queued and 202 is returned at once.
func SyncProperty(syncer Syncer, trigger Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		if r.URL.Query().Get("async") == "true" && trigger != nil {
			if err := trigger.TriggerProperty(propertyID); err != nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Sync scheduler is shutting down")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"property_id": propertyID, "status": "queued"})
			return
		}

		summary, err := syncer.SyncProperty(r.Context(), propertyID)
		switch {
		case errors.Is(err, calendar.ErrPropertyNotFound):
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		case errors.Is(err, calendar.ErrInvalidProperty):
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid property id")
		case errors.Is(err, calendar.ErrPersistence):
			log.Printf("Property sync failed for %s: %v", propertyID, err)
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Storage unavailable, try again later")
		case err != nil:
			log.Printf("Property sync failed for %s: %v", propertyID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sync property")
		default:
			writeJSON(w, http.StatusOK, summary)
		}
	}
}

// SyncAll syncs every property with an active feed and returns the run
// summary. With ?async=true the run is queued and 202 is returned at once.
func SyncAll(syncer Syncer, trigger Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("async") == "true" && trigger != nil {
			if err := trigger.TriggerAll(); err != nil {
				middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Sync scheduler is shutting down")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
			return
		}

		summary, err := syncer.SyncAll(r.Context())
		if err != nil {
			log.Printf("Sync run failed: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to run sync")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
