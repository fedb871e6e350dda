package handlers

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		h.Register(r)
	})
}

// Register adds the game routes to a router already scoped to /v1.
func (h *Handler) Register(r chi.Router) {
	// public routes here
	r.Get("/games", h.ListGames)
	r.Get("/games/active", h.ActiveGame)
	r.Get("/games/{id}", h.GetGame)
	r.Get("/games/{id}/assignments", h.ListAssignments)
	r.Get("/cards/{id}", h.GetCard)
	r.Get("/sessions/{token}", h.GetSession)

	// Secure routes
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Get("/health", h.HealthHandler)

		r.Post("/sessions", h.CreateSession)
		r.Delete("/sessions/{token}", h.Logout)

		r.Post("/games", h.CreateGame)
		r.Delete("/games/{id}", h.RemoveGame)
		r.Post("/games/{id}/start", h.StartGame)
		r.Post("/games/{id}/draw", h.Draw)
		r.Post("/games/{id}/reset", h.Reset)
		r.Post("/games/{id}/next-round", h.NextRound)
		r.Post("/games/{id}/finish", h.Finish)
		r.Put("/games/{id}/status", h.SetStatus)
		r.Put("/games/{id}/rounds/{round}", h.SetRoundSettings)
		r.Get("/games/{id}/detections", h.Detections)
		r.Post("/games/{id}/winners", h.ConfirmWinner)

		r.Post("/games/{id}/assignments", h.CreateAssignment)
		r.Put("/assignments/{id}", h.UpdateAssignment)
		r.Put("/assignments/{id}/paid", h.SetPaid)
		r.Delete("/assignments/{id}", h.RemoveAssignment)
	})
}
