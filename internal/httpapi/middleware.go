// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/pkg/errutil"
)

// TokenCookie is the cookie mirroring the session token.
const TokenCookie = "jwt"

// loggedOut replaces the token cookie on logout.
const loggedOut = "loggedout"

const msgForbidden = "You do not have permission to perform this action"

// Authenticator resolves session tokens to identities. *auth.Service
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// bearerToken returns the token of an "Authorization: Bearer" header,
// falling back to the token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != loggedOut {
		return c.Value
	}
	return ""
}

// Authenticate attaches the identity of the request's session token to
// the context, or rejects the request as unauthenticated. m may be nil.
func Authenticate(a Authenticator, rs *Responder, m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				if m != nil {
					m.AuthFailures.WithLabelValues(failureReason(err)).Inc()
				}
				rs.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func failureReason(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			return fmt.Sprint(code)
		}
	}
	return string(errutil.KindOf(err))
}

// Authorize admits identities holding one of roles. It must run after
// Authenticate.
func Authorize(rs *Responder, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				rs.Error(w, r, oops.Code("AUTHZ_NO_IDENTITY").With("path", r.URL.Path).
					Errorf("authorize used without authenticate"))
				return
			}
			if !id.HasRole(roles...) {
				rs.Error(w, r, oops.Code("AUTHZ_FORBIDDEN").
					With("identity_id", id.ID).
					With("role", string(id.Role)).
					Wrap(errutil.New(errutil.KindForbidden, msgForbidden)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// status reports the written status; handlers that never write answer 200.
func status(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// accessLog logs one line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			code := status(ww)
			level := slog.LevelInfo
			if code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", code),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// instrument records request counts and latencies by route pattern.
func instrument(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status(ww))).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
