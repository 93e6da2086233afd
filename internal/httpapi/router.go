// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package httpapi exposes the users, tours and reviews resources over
// HTTP under /api/v1.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/tours"
	"github.com/natours/natours/pkg/errutil"
)

// Prefix is the path prefix of every API route.
const Prefix = "/api/v1"

// Config holds the dependencies of the API router.
type Config struct {
	Auth    *auth.Service
	Users   *resource.Handler
	Tours   *resource.Handler
	Reviews *resource.Handler
	Reports *tours.Reports
	Logger  *slog.Logger
	// Metrics may be nil.
	Metrics    *observability.Metrics
	Production bool
	CookieTTL  time.Duration
	// PublicURL is the base of mailed links. Empty means the request's
	// own scheme and host.
	PublicURL string
	// RateLimit caps requests per client IP. The zero value disables it.
	RateLimit RateLimit
	// Now defaults to time.Now.
	Now func() time.Time
}

type api struct {
	cfg  Config
	rs   *Responder
	auth func(http.Handler) http.Handler
}

// NewRouter validates cfg and returns the API handler.
func NewRouter(cfg Config) (http.Handler, error) {
	switch {
	case cfg.Auth == nil:
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("auth service is required")
	case cfg.Users == nil || cfg.Tours == nil || cfg.Reviews == nil:
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("users, tours and reviews handlers are required")
	case cfg.Reports == nil:
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("tour reports are required")
	case cfg.Logger == nil:
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("logger is required")
	case cfg.RateLimit.Max > 0 && cfg.RateLimit.Window <= 0:
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("rate limit window must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = auth.DefaultTokenTTL
	}

	a := &api{cfg: cfg, rs: &Responder{Production: cfg.Production, Logger: cfg.Logger}}
	a.auth = Authenticate(cfg.Auth, a.rs, cfg.Metrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(instrument(cfg.Metrics))
	}
	r.Use(middleware.Recoverer)

	notFound := a.rs.handle(func(_ http.ResponseWriter, r *http.Request) error {
		return oops.Code("HTTP_ROUTE_NOT_FOUND").With("path", r.URL.Path).
			Wrap(errutil.Newf(errutil.KindNotFound, "Can't find %s on this server!", r.URL.Path))
	})
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Route(Prefix, func(r chi.Router) {
		if cfg.RateLimit.Max > 0 {
			r.Use(limitRate(a.rs, cfg.RateLimit, cfg.Now))
		}
		r.Route("/users", a.userRoutes)
		r.Route("/tours", a.tourRoutes)
		r.Route("/reviews", a.reviewRoutes)
	})
	return r, nil
}

func (a *api) userRoutes(r chi.Router) {
	r.Post("/signup", a.rs.handle(a.signup))
	r.Post("/login", a.rs.handle(a.login))
	r.Get("/logout", a.logout)
	r.Post("/forgotPassword", a.rs.handle(a.forgotPassword))
	r.Patch("/resetPassword/{token}", a.rs.handle(a.resetPassword))

	r.Group(func(r chi.Router) {
		r.Use(a.auth)
		r.Patch("/updateMyPassword", a.rs.handle(a.updatePassword))
		r.Get("/me", a.rs.handle(a.getMe))
		r.Patch("/updateMe", a.rs.handle(a.updateMe))
		r.Delete("/deleteMe", a.rs.handle(a.deleteMe))

		r.Group(func(r chi.Router) {
			r.Use(Authorize(a.rs, auth.RoleAdmin))
			r.Get("/", a.rs.handle(a.list(a.cfg.Users)))
			r.Get("/{id}", a.rs.handle(a.get(a.cfg.Users, "id", false)))
			r.Patch("/{id}", a.rs.handle(a.update(a.cfg.Users, "id")))
			r.Delete("/{id}", a.rs.handle(a.remove(a.cfg.Users, "id")))
		})
	})
}

func (a *api) tourRoutes(r chi.Router) {
	r.Route("/{tourID}/reviews", a.reviewRoutes)

	r.Get("/top-5-cheap", a.rs.handle(a.topCheap))
	r.Get("/tour-stats", a.rs.handle(a.tourStats))
	r.With(a.auth, Authorize(a.rs, auth.RoleAdmin, auth.RoleLeadGuide, auth.RoleGuide)).
		Get("/monthly-plan/{year}", a.rs.handle(a.monthlyPlan))

	r.Get("/", a.rs.handle(a.list(a.cfg.Tours)))
	r.Get("/{tourID}", a.rs.handle(a.get(a.cfg.Tours, "tourID", true)))

	r.Group(func(r chi.Router) {
		r.Use(a.auth, Authorize(a.rs, auth.RoleAdmin, auth.RoleLeadGuide))
		r.Post("/", a.rs.handle(a.create(a.cfg.Tours)))
		r.Patch("/{tourID}", a.rs.handle(a.update(a.cfg.Tours, "tourID")))
		r.Delete("/{tourID}", a.rs.handle(a.remove(a.cfg.Tours, "tourID")))
	})
}

// reviewRoutes serves /reviews and /tours/{tourID}/reviews.
func (a *api) reviewRoutes(r chi.Router) {
	r.Use(a.auth)
	r.Get("/", a.rs.handle(a.listReviews))
	r.With(Authorize(a.rs, auth.RoleUser)).Post("/", a.rs.handle(a.createReview))
	r.Get("/{id}", a.rs.handle(a.get(a.cfg.Reviews, "id", true)))

	editors := Authorize(a.rs, auth.RoleUser, auth.RoleAdmin)
	r.With(editors).Patch("/{id}", a.rs.handle(a.update(a.cfg.Reviews, "id")))
	r.With(editors).Delete("/{id}", a.rs.handle(a.remove(a.cfg.Reviews, "id")))
}
