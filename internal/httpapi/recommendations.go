package httpapi

import (
	"net/http"

	"nightlife/internal/app/recommendations"
)

type recommendationsResponse struct {
	Events []recommendations.Scored `json:"events"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.optionalPrincipal(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	// Guests get the trending list.
	var userID string
	if caller != nil {
		userID = caller.UserID
	}

	ranked, err := s.recommendations.Recommended(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []recommendations.Scored{}
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{Events: ranked})
}

func (s *Server) handleSimilarEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	ranked, err := s.recommendations.Similar(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []recommendations.Scored{}
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{Events: ranked})
}
