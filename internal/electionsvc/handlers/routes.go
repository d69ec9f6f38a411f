package handlers

import (
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/summaries", h.SummariesHandler)

			r.Post("/votes", h.CreateVoteHandler)
			r.Get("/votes/{id}/summary", h.VoteSummaryHandler)
			r.Get("/votes/{id}/export", h.VoteExportHandler)

			r.Post("/elections", h.CreateElectionHandler)
			r.Get("/elections/{id}/summary", h.ElectionSummaryHandler)
			r.Get("/elections/{id}/export", h.ElectionExportHandler)

			r.Post("/upload/vote/{id}", h.UploadVoteHandler)
			r.Post("/upload/election/{id}", h.UploadElectionHandler)
		})
	})
}

func (h *Handler) InitAuth() {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)

	if os.Getenv("DEBUG_PRINCIPAL") == "" {
		return
	}

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"principal": os.Getenv("DEBUG_PRINCIPAL"),
		"exp":       expirationTime,
	})

	// For debugging only, never set DEBUG_PRINCIPAL in production
	log.Infof("DEBUG: JWT for %s expires soon : %s", os.Getenv("DEBUG_PRINCIPAL"), tokenString)
}
