package handlers

import (
	"log"
	"net/http"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage/models"
)

// WorkItemResponse is the wire form of a work item.
type WorkItemResponse struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	EventID       string `json:"event_id"`
	Origin        string `json:"origin"`
	Role          string `json:"role"`
	ScheduledDate string `json:"scheduled_date"`
	Status        string `json:"status"`
}

// ListWorkItems returns the work items of a property by scheduled date.
// ?status=pending limits the list to one status.
func ListWorkItems(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		property := lookupProperty(w, r, store)
		if property == nil {
			return
		}

		items, err := store.ListWorkItems(r.Context(), property.ID)
		if err != nil {
			log.Printf("Failed to list work items of %s: %v", property.ID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query work items")
			return
		}

		status := r.URL.Query().Get("status")
		response := make([]WorkItemResponse, 0, len(items))
		for _, item := range items {
			if status != "" && item.Status != status {
				continue
			}
			response = append(response, WorkItemResponse{
				ID:            item.ID,
				Key:           item.Key(),
				EventID:       item.EventID,
				Origin:        string(item.Origin),
				Role:          string(item.Role),
				ScheduledDate: item.ScheduledDate.Format(models.DateLayout),
				Status:        item.Status,
			})
		}
		writeJSON(w, http.StatusOK, response)
	}
}
