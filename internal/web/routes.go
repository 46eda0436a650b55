package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config, s.services.Engine)
	identitiesHandler := handlers.NewIdentitiesHandler(s.services.Store, s.services.Enrollment, s.logger)
	recognizeHandler := handlers.NewRecognizeHandler(s.services.Recognizer, s.logger)
	sessionsHandler := handlers.NewSessionsHandler(s.services.Ledger, s.services.Recognizer, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Delete("/identities", identitiesHandler.ClearAll)
		r.Get("/identities/{identity}", identitiesHandler.Get)
		r.Delete("/identities/{identity}", identitiesHandler.Clear)
		r.Post("/identities/{identity}/embeddings", identitiesHandler.Enroll)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Sessions
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions", sessionsHandler.List)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/deactivate", sessionsHandler.Deactivate)
		r.Get("/sessions/{id}/records", sessionsHandler.Records)
		r.Put("/sessions/{id}/records/{identity}", sessionsHandler.SetStatus)
		r.Get("/sessions/{id}/unknown", sessionsHandler.Unknown)
	})
}
