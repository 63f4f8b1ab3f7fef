package game

import "github.com/go-chi/chi/v5"

// Routes mounts the game API on r. The caller mounts it under /api/v1.
func (s *Service) Routes(r chi.Router) {
	// Reference data.
	r.Get("/assets", s.ListAssets)
	r.Get("/presets", s.ListPresets)

	// Portfolio projections.
	r.Post("/projections", s.Project)

	// Sessions.
	r.Get("/sessions", s.ListSessions)
	r.Post("/sessions", s.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Post("/start", s.Start)
		r.Post("/end", s.End)

		r.Post("/participants", s.Register)
		r.Get("/participants/{participantID}", s.GetParticipant)
		r.Get("/participants/{participantID}/history", s.GetHistory)

		r.Get("/turns", s.ListTurns)
		r.Post("/turns", s.SimulateTurn)
		r.Post("/transactions", s.ExecuteTransaction)
		r.Get("/leaderboard", s.Leaderboard)

		r.Put("/fees/{asset}", s.SetFee)
		r.Put("/assets", s.SetTradeable)

		r.Get("/news", s.ListNews)
		r.Post("/news", s.PublishNews)
	})
}
