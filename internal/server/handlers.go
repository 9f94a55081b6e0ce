package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/detect"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/rules"
)

// DecisionRequest represents the request body for deciding a suggestion.
type DecisionRequest struct {
	Accept *bool `json:"accept"`
}

// listSuggestions handles GET /suggestions
func (s *Server) listSuggestions(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RunDetection(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Ensure we return an empty array [] instead of null
	if result.Suggestions == nil {
		result.Suggestions = []detect.Suggestion{}
	}

	writeJSON(w, http.StatusOK, result)
}

// decideSuggestion handles POST /suggestions/{suggestionID}/decision
func (s *Server) decideSuggestion(w http.ResponseWriter, r *http.Request) {
	suggestionID := chi.URLParam(r, "suggestionID")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Accept == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "accept is required")
		return
	}

	sug, err := s.engine.FindSuggestion(r.Context(), suggestionID)
	if err != nil {
		if errors.Is(err, engine.ErrSuggestionNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Suggestion not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	result, err := s.engine.ApplyDecision(r.Context(), engine.DecisionFor(*sug, *req.Accept))
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordEvent handles POST /events
func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var ev approval.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if err := s.engine.RecordApproval(r.Context(), ev); err != nil {
		if errors.Is(err, approval.ErrEmptyRule) {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "rule_text is required")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// getStatus handles GET /status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// getRules handles GET /rules
func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.Rules().Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Ensure we return an empty array [] instead of null
	if snapshot.Rules == nil {
		snapshot.Rules = []string{}
	}
	if snapshot.Batches == nil {
		snapshot.Batches = []rules.Batch{}
	}

	writeJSON(w, http.StatusOK, snapshot)
}
