// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP router. The API is mounted under /api/v1 and
// Prometheus metrics at /metrics.
func NewRouter(h *Handler, mw *ChiMiddleware) chi.Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetrics)
	r.Use(SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.CORS())
		r.Use(mw.RateLimit())

		r.Get("/health", h.Health)
		r.Get("/popular", h.Popular)
		r.Get("/recommendations/{orderID}", h.ForOrder)
		r.Get("/similar-items/{item}", h.SimilarItems)
		r.Get("/similar-items/{item}/fused", h.SimilarItemsFused)
		r.Get("/co-purchased/{item}", h.CoPurchased)
		r.Post("/basket", h.Basket)
		r.Get("/embeddings/{item}", h.Embedding)
		r.Get("/snapshot", h.Snapshot)
	})

	return r
}
