package routes

import (
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avvvet/electionday-services/internal/socketsvc/handlers"
	"github.com/avvvet/electionday-services/internal/socketsvc/ws"
)

func SetRoutes(r chi.Router, s *ws.Ws, chats handlers.ChatCreator, gatherer prometheus.Gatherer) {
	tokenAuth := InitAuth()
	h := handlers.NewHandler(s, chats, tokenAuth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/health", h.HealthHandler)
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(h.Verifier())
			r.Use(jwtauth.Authenticator)

			r.Get("/chats/{schema}", h.HandleChat)
			r.Post("/chats/{schema}", h.CreateChat)
		})
	})
}

func InitAuth() *jwtauth.JWTAuth {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	return jwtauth.New("HS256", []byte(jwtKey), nil)
}
