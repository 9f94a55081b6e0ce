package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Suggestions
	r.Route("/suggestions", func(r chi.Router) {
		r.Get("/", s.listSuggestions)
		r.Post("/{suggestionID}/decision", s.decideSuggestion)
	})

	// Approval events
	r.Post("/events", s.recordEvent)
	r.Get("/events/stream", s.streamEvents)

	// Store and learner state
	r.Get("/status", s.getStatus)
	r.Get("/rules", s.getRules)
}
