// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires the handler set and middleware into the route tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates the router.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	return &Router{handler: handler, middleware: middleware}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route.
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)
	r.Use(router.middleware.CORS())

	// Health and metrics stay outside the authenticated tree so
	// monitors can reach them without a token.
	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Login carries the strictest rate limit (brute force prevention).
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(router.middleware.RateLimitLogin()).Post("/login", router.handler.Login)
	})

	// All data endpoints require an operator token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(router.middleware.Authenticate)

		r.Route("/ravens", func(r chi.Router) {
			r.Get("/", router.handler.ListRavens)
			r.Get("/snapshot", router.handler.Snapshot)
			r.Get("/{uuid}", router.handler.GetRaven)
			r.Get("/{uuid}/events", router.handler.ListRavenEvents)
			r.Get("/{uuid}/settings", router.handler.GetSettings)
			r.Patch("/{uuid}/settings", router.handler.UpdateSettings)
		})

		r.Get("/events", router.handler.ListEvents)
		r.Post("/events/media", router.handler.FetchEventMedia)

		r.Route("/geofences", func(r chi.Router) {
			r.Get("/", router.handler.ListGeofences)
			r.Post("/", router.handler.CreateGeofence)
			r.Post("/bulk", router.handler.BulkCreateGeofences)
			r.Put("/{id}", router.handler.UpdateGeofence)
			r.Delete("/{id}", router.handler.DeleteGeofence)
		})

		r.Get("/audit", router.handler.AuditEvents)
		r.Get("/audit/events", router.handler.AuditEvents)
		r.Get("/ws", router.handler.WebSocket)
	})

	return r
}
