package httpapi

import (
	"net/http"
	"strconv"

	"nightlife/internal/app/events"
	"nightlife/internal/logging"
	"nightlife/internal/models"
)

type eventsResponse struct {
	Events []*models.Event `json:"events"`
}

type ticketsRequest struct {
	Tickets []models.TicketTier `json:"tickets"`
}

type engagementRequest struct {
	Kind models.EngagementKind `json:"kind"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	opts := events.ListOptions{
		Filter: models.EventFilter{
			City:   query.Get("city"),
			Host:   query.Get("host"),
			Search: query.Get("search"),
		},
		Sort:  query.Get("sort"),
		Limit: limit,
	}
	if raw := query.Get("includePast"); raw != "" {
		includePast, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid includePast parameter"})
			return
		}
		opts.IncludePast = includePast
	}

	list, err := s.events.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Event{}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: list})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	host, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	var input events.CreateInput
	if !decodeJSON(w, r, &input) {
		return
	}

	created, err := s.events.Create(r.Context(), host, input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A failed view counter must not hide the event.
	if err := s.events.RecordEngagement(r.Context(), event.ID, models.EngagementView); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).
			Str("event_id", event.ID).
			Msg("record view failed")
	}

	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleUpdateTickets(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req ticketsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.events.UpdateTickets(r.Context(), principal, r.PathValue("id"), req.Tickets)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Kind.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "kind must be one of view, save, share"})
		return
	}

	if err := s.events.RecordEngagement(r.Context(), r.PathValue("id"), req.Kind); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	event, err := s.events.Manage(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := s.orders.SalesStats(r.Context(), event.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
