package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

// PutFeedRequest configures the feed of one origin.
type PutFeedRequest struct {
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ListFeeds returns the feed subscriptions of a property.
func ListFeeds(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		property := lookupProperty(w, r, store)
		if property == nil {
			return
		}

		feeds, err := store.ListFeeds(r.Context(), property.ID)
		if err != nil {
			log.Printf("Failed to list feeds of %s: %v", property.ID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feeds")
			return
		}
		if feeds == nil {
			feeds = []models.FeedSubscription{}
		}
		writeJSON(w, http.StatusOK, feeds)
	}
}

// PutFeed creates or replaces the feed of one origin. The property record
// is created on first use.
func PutFeed(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		origin := models.Origin(vars["origin"])
		if !origin.Valid() || origin == models.OriginManual {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown feed origin")
			return
		}

		var req PutFeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		req.URL = strings.TrimSpace(req.URL)
		if req.URL != "" {
			u, err := url.Parse(req.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "URL must be an http(s) URL")
				return
			}
		}

		enabled := req.URL != ""
		if req.Enabled != nil {
			enabled = *req.Enabled && req.URL != ""
		}

		feed := &models.FeedSubscription{
			PropertyID: vars["id"],
			Origin:     origin,
			URL:        req.URL,
			Enabled:    enabled,
		}
		if err := store.UpsertFeed(r.Context(), feed); err != nil {
			log.Printf("Failed to save %s feed of %s: %v", origin, feed.PropertyID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save feed")
			return
		}

		writeJSON(w, http.StatusOK, feed)
	}
}

// DeleteFeed removes the feed of one origin. Events already imported from
// it stay until the origin is configured again and reconciled.
func DeleteFeed(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		err := store.DeleteFeed(r.Context(), vars["id"], models.Origin(vars["origin"]))
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}
		if err != nil {
			log.Printf("Failed to delete feed: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete feed")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
