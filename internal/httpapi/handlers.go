// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/internal/tours"
	"github.com/natours/natours/pkg/errutil"
)

func (a *api) list(h *resource.Handler) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		page, err := h.GetAll(r.Context(), r.URL.Query())
		if err != nil {
			return err
		}
		a.rs.JSON(w, http.StatusOK, Envelope{Results: results(page.Count), Data: data("data", page.Items)})
		return nil
	}
}

func (a *api) get(h *resource.Handler, param string, expand bool) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		doc, err := h.GetOne(r.Context(), chi.URLParam(r, param), expand)
		if err != nil {
			return err
		}
		a.rs.JSON(w, http.StatusOK, Envelope{Data: data("data", doc)})
		return nil
	}
}

func (a *api) create(h *resource.Handler) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var in map[string]any
		if err := decode(w, r, &in); err != nil {
			return err
		}
		doc, err := h.CreateOne(r.Context(), in)
		if err != nil {
			return err
		}
		a.rs.JSON(w, http.StatusCreated, Envelope{Data: data("data", doc)})
		return nil
	}
}

func (a *api) update(h *resource.Handler, param string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		patch := map[string]any{}
		if err := decode(w, r, &patch); err != nil {
			return err
		}
		doc, err := h.UpdateOne(r.Context(), chi.URLParam(r, param), patch)
		if err != nil {
			return err
		}
		a.rs.JSON(w, http.StatusOK, Envelope{Data: data("data", doc)})
		return nil
	}
}

func (a *api) remove(h *resource.Handler, param string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := h.DeleteOne(r.Context(), chi.URLParam(r, param)); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

// Tours.

func (a *api) topCheap(w http.ResponseWriter, r *http.Request) error {
	page, err := a.cfg.Tours.GetAll(r.Context(), tours.TopCheap(r.URL.Query()))
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Results: results(page.Count), Data: data("data", page.Items)})
	return nil
}

func (a *api) tourStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := a.cfg.Reports.TourStats(r.Context())
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Data: data("stats", stats)})
	return nil
}

func (a *api) monthlyPlan(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil {
		return oops.Code("TOUR_PLAN_INVALID_YEAR").With("year", raw).
			Wrap(errutil.Wrap(errutil.KindValidation, "Invalid year: "+raw, err))
	}
	plan, err := a.cfg.Reports.MonthlyPlan(r.Context(), year)
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Results: results(len(plan)), Data: data("plan", plan)})
	return nil
}

// Reviews.

func (a *api) reviewScope(r *http.Request) []query.Condition {
	if tourID := chi.URLParam(r, "tourID"); tourID != "" {
		return []query.Condition{query.Eq(tours.FieldTour, schema.String, tourID)}
	}
	return nil
}

func (a *api) listReviews(w http.ResponseWriter, r *http.Request) error {
	page, err := a.cfg.Reviews.GetAll(r.Context(), r.URL.Query(), a.reviewScope(r)...)
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Results: results(page.Count), Data: data("data", page.Items)})
	return nil
}

// createReview defaults the tour to the nested route's and the user to the
// caller.
func (a *api) createReview(w http.ResponseWriter, r *http.Request) error {
	in := map[string]any{}
	if err := decode(w, r, &in); err != nil {
		return err
	}
	if _, ok := in[tours.FieldTour]; !ok {
		if tourID := chi.URLParam(r, "tourID"); tourID != "" {
			in[tours.FieldTour] = tourID
		}
	}
	if _, ok := in[tours.FieldUser]; !ok {
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			in[tours.FieldUser] = id.ID
		}
	}
	doc, err := a.cfg.Reviews.CreateOne(r.Context(), in)
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusCreated, Envelope{Data: data("data", doc)})
	return nil
}

// Users.

// sendToken answers with a fresh session token, mirrored into the token
// cookie.
func (a *api) sendToken(w http.ResponseWriter, status int, id *auth.Identity, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  a.cfg.Now().Add(a.cfg.CookieTTL),
		MaxAge:   int(a.cfg.CookieTTL / time.Second),
		HttpOnly: true,
		Secure:   a.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
	a.rs.JSON(w, status, Envelope{Token: token, Data: data("user", id.Public())})
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) error {
	var in auth.SignupInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	id, token, err := a.cfg.Auth.Register(r.Context(), in)
	if err != nil {
		return err
	}
	a.sendToken(w, http.StatusCreated, id, token)
	return nil
}

func (a *api) login(w http.ResponseWriter, r *http.Request) error {
	var in auth.LoginInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	id, token, err := a.cfg.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	a.sendToken(w, http.StatusOK, id, token)
	return nil
}

func (a *api) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    loggedOut,
		Path:     "/",
		Expires:  a.cfg.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   a.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
	a.rs.JSON(w, http.StatusOK, Envelope{})
}

// resetURLBase returns the link prefix mailed for password resets.
func (a *api) resetURLBase(r *http.Request) string {
	base := strings.TrimSuffix(a.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + r.Host
	}
	return base + Prefix + "/users/resetPassword"
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) error {
	var in auth.ForgotPasswordInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	if err := a.cfg.Auth.ForgotPassword(r.Context(), in.Email, a.resetURLBase(r)); err != nil {
		if a.cfg.Metrics != nil && errutil.KindOf(err) == errutil.KindInternal {
			a.cfg.Metrics.MailFailures.Inc()
		}
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Message: "Token sent to email!"})
	return nil
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var in auth.ResetPasswordInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	id, token, err := a.cfg.Auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), in)
	if err != nil {
		return err
	}
	a.sendToken(w, http.StatusOK, id, token)
	return nil
}

// caller returns the identity Authenticate attached.
func caller(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, oops.Code("AUTHZ_NO_IDENTITY").With("path", r.URL.Path).
			Errorf("handler requires an authenticated identity")
	}
	return id, nil
}

func (a *api) updatePassword(w http.ResponseWriter, r *http.Request) error {
	id, err := caller(r)
	if err != nil {
		return err
	}
	var in auth.UpdatePasswordInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	updated, token, err := a.cfg.Auth.UpdatePassword(r.Context(), id, in)
	if err != nil {
		return err
	}
	a.sendToken(w, http.StatusOK, updated, token)
	return nil
}

func (a *api) getMe(w http.ResponseWriter, r *http.Request) error {
	id, err := caller(r)
	if err != nil {
		return err
	}
	doc, err := a.cfg.Users.GetOne(r.Context(), id.ID, false)
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Data: data("data", doc)})
	return nil
}

func (a *api) updateMe(w http.ResponseWriter, r *http.Request) error {
	id, err := caller(r)
	if err != nil {
		return err
	}
	patch := map[string]any{}
	if err := decode(w, r, &patch); err != nil {
		return err
	}
	updated, err := a.cfg.Auth.UpdateMe(r.Context(), id, patch)
	if err != nil {
		return err
	}
	a.rs.JSON(w, http.StatusOK, Envelope{Data: data("user", updated.Public())})
	return nil
}

func (a *api) deleteMe(w http.ResponseWriter, r *http.Request) error {
	id, err := caller(r)
	if err != nil {
		return err
	}
	if err := a.cfg.Auth.DeleteMe(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
