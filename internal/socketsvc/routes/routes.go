package routes

import (
	"github.com/avvvet/bingo-sync/internal/socketsvc/handlers"
	"github.com/avvvet/bingo-sync/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

// SetRoutes mounts the gateway under /v1.
func SetRoutes(r chi.Router, ws *ws.Ws, tokenAuth *jwtauth.JWTAuth) {
	r.Route("/v1", func(r chi.Router) {
		Register(r, ws, tokenAuth)
	})
}

// Register adds the gateway routes to a router already scoped to /v1, so another
// service can embed the gateway.
func Register(r chi.Router, ws *ws.Ws, tokenAuth *jwtauth.JWTAuth) {
	h := handlers.NewHandler(ws)

	r.Get("/ws", h.HandleWebSocket)
	// Secure routes
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Get("/ws/health", h.HealthHandler)
	})
}
