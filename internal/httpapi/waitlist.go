package httpapi

import (
	"net/http"

	"nightlife/internal/app/waitlist"
	"nightlife/internal/models"
)

type joinWaitlistRequest struct {
	TicketID string `json:"ticketId"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type joinWaitlistResponse struct {
	Entry   *models.WaitlistEntry `json:"entry"`
	Created bool                  `json:"created"`
}

type processWaitlistRequest struct {
	TicketID string `json:"ticketId"`
}

type accessResponse struct {
	HasAccess bool `json:"hasAccess"`
}

func (s *Server) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.optionalPrincipal(w, r)
	if !ok {
		return
	}

	var body joinWaitlistRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	event, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := waitlist.JoinRequest{
		EventID:  event.ID,
		TicketID: body.TicketID,
		Email:    body.Email,
		Phone:    body.Phone,
	}
	if caller != nil {
		userID := caller.UserID
		req.UserID = &userID
		if req.Email == "" {
			req.Email = caller.Email
		}
	}

	entry, created, err := s.waitlist.Join(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, joinWaitlistResponse{Entry: entry, Created: created})
}

func (s *Server) handleProcessWaitlist(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	var body processWaitlistRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}

	event, err := s.events.Manage(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.waitlist.Process(r.Context(), event.ID, body.TicketID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleWaitlistAccess(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	granted, err := s.waitlist.VerifyAccess(r.Context(), event.ID, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, accessResponse{HasAccess: granted})
}
