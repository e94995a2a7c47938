package handlers

import (
	"log"
	"net/http"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage/models"
)

// ListProperties returns every known property.
func ListProperties(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		properties, err := store.ListProperties(r.Context())
		if err != nil {
			log.Printf("Failed to list properties: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query properties")
			return
		}
		if properties == nil {
			properties = []models.Property{}
		}
		writeJSON(w, http.StatusOK, properties)
	}
}
