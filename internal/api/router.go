// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/stratus/internal/auth"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/middleware"
)

// loginRateLimit bounds login attempts per client IP, independently of
// the general API rate limit, to slow brute forcing.
const (
	loginRateLimitReqs   = 5
	loginRateLimitWindow = 5 * time.Minute
)

// Router assembles the chi handler tree.
type Router struct {
	cfg     *config.Config
	handler *Handler
	authMW  *auth.Middleware
}

// NewRouter builds the Router. The auth middleware may be a mode "none"
// instance; route wiring is identical either way.
func NewRouter(cfg *config.Config, handler *Handler, authMW *auth.Middleware) *Router {
	return &Router{cfg: cfg, handler: handler, authMW: authMW}
}

// Setup wires every route. Health and metrics are unauthenticated;
// everything under /api/v1 requires a bearer token unless auth mode is
// "none". Cache invalidation additionally requires the admin role.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(httprate.LimitByIP(loginRateLimitReqs, loginRateLimitWindow)).
			Post("/login", router.handler.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if router.cfg.Server.HTTPRateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(
				router.cfg.Server.HTTPRateLimitReqs,
				router.cfg.Server.HTTPRateLimitWindow,
			))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)
		r.Use(router.authMW.Authenticate)

		r.Get("/accounts", router.handler.Accounts)
		r.Get("/accounts/{profile}/validate", router.handler.ValidateProfile)
		r.Get("/resources/types", router.handler.ResourceTypes)
		r.Post("/resources", router.handler.FetchResources)

		r.Method(http.MethodPost, "/cache/invalidate",
			router.authMW.RequireRole("admin", http.HandlerFunc(router.handler.InvalidateCache)))
	})

	return r
}
