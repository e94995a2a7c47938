package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/storage/models"
)

// EventResponse is the wire form of a calendar event.
type EventResponse struct {
	ID            string `json:"id"`
	Origin        string `json:"origin"`
	ReservationID string `json:"reservation_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
	Title         string `json:"title,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func eventResponse(e models.CalendarEvent) EventResponse {
	return EventResponse{
		ID:            e.ID,
		Origin:        string(e.Origin),
		ReservationID: e.ReservationID,
		Start:         e.Range.Start.Format(models.DateLayout),
		End:           e.Range.End.Format(models.DateLayout),
		Status:        string(e.Status),
		Title:         e.Title,
		Notes:         e.Notes,
	}
}

// CreateEventRequest describes a manual event. Dates are YYYY-MM-DD; end
// is exclusive.
type CreateEventRequest struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id"`
	Title         string `json:"title"`
	Notes         string `json:"notes"`
}

// ManualEventService creates and removes manual events.
type ManualEventService interface {
	AddManualEvent(ctx context.Context, event *models.CalendarEvent) ([]calendar.Conflict, error)
	RemoveManualEvent(ctx context.Context, propertyID, eventID string) error
}

// ListEvents returns the events of a property, optionally filtered by
// the origin query parameter.
func ListEvents(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		property := lookupProperty(w, r, store)
		if property == nil {
			return
		}

		origin := models.Origin(r.URL.Query().Get("origin"))
		if origin != "" && !origin.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown origin")
			return
		}

		events, err := store.ListEvents(r.Context(), property.ID, origin)
		if err != nil {
			log.Printf("Failed to list events of %s: %v", property.ID, err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query events")
			return
		}

		response := make([]EventResponse, 0, len(events))
		for _, e := range events {
			response = append(response, eventResponse(e))
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// CreateManualEvent adds a manual event. Overlapping any stored event is
// refused with 409 and the conflicting events as details.
func CreateManualEvent(svc ManualEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		start, err := models.ParseDay(req.Start)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "start must be YYYY-MM-DD")
			return
		}
		end, err := models.ParseDay(req.End)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end must be YYYY-MM-DD")
			return
		}

		event := &models.CalendarEvent{
			PropertyID:    mux.Vars(r)["id"],
			ReservationID: req.ReservationID,
			Range:         models.DateRange{Start: start, End: end},
			Status:        models.EventStatus(req.Status),
			Title:         req.Title,
			Notes:         req.Notes,
		}

		conflicts, err := svc.AddManualEvent(r.Context(), event)
		switch {
		case errors.Is(err, calendar.ErrOverlap):
			middleware.WriteErrorWithDetails(w, http.StatusConflict, middleware.ErrOverlap, "Date range overlaps existing events", conflicts)
		case errors.Is(err, calendar.ErrPropertyNotFound):
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		case errors.Is(err, calendar.ErrInvalidRange):
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "start must be before end")
		case err != nil && errors.Is(err, calendar.ErrPersistence):
			log.Printf("Failed to create manual event: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create event")
		case err != nil:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
		default:
			writeJSON(w, http.StatusCreated, eventResponse(*event))
		}
	}
}

// DeleteManualEvent removes a manual event and its work items.
func DeleteManualEvent(svc ManualEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		err := svc.RemoveManualEvent(r.Context(), vars["id"], vars["eventID"])
		switch {
		case errors.Is(err, calendar.ErrEventNotFound):
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
		case errors.Is(err, calendar.ErrNotManualEvent):
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Only manual events can be deleted")
		case err != nil:
			log.Printf("Failed to delete manual event: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete event")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
