// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package httpapi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/httpapi"
)

func TestNewRouterRejectsMissingDependencies(t *testing.T) {
	_, err := httpapi.NewRouter(httpapi.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth service is required")
}

func TestSignupAndLogin(t *testing.T) {
	a := newApp(t)

	res := a.do(request{method: http.MethodPost, path: "/api/v1/users/signup", body: map[string]any{
		"name": "Laura Wilson", "email": "laura@example.com",
		"password": "pass1234", "passwordConfirm": "pass1234",
		"role": "admin",
	}})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Equal(t, "success", res.body["status"])
	assert.NotEmpty(t, res.body["token"])
	assert.Equal(t, "laura@example.com", res.field("data", "user", "email"))
	assert.Equal(t, "user", res.field("data", "user", "role"), "signup cannot choose a role")
	assert.Nil(t, res.field("data", "user", "password"))

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, httpapi.TokenCookie, cookies[0].Name)
	assert.Equal(t, res.body["token"], cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)

	t.Run("login", func(t *testing.T) {
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/login",
			body: map[string]any{"email": "laura@example.com", "password": "pass1234"}})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		assert.NotEmpty(t, res.body["token"])
	})

	t.Run("wrong password", func(t *testing.T) {
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/login",
			body: map[string]any{"email": "laura@example.com", "password": "nope12345"}})
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "fail", res.body["status"])
		assert.Equal(t, "Incorrect email or password", res.body["message"])
	})

	t.Run("missing credentials", func(t *testing.T) {
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/login", body: map[string]any{}})
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "Please provide email and password!", res.body["message"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/signup", body: map[string]any{
			"name": "Laura Again", "email": "LAURA@example.com",
			"password": "pass1234", "passwordConfirm": "pass1234",
		}})
		assert.Equal(t, http.StatusConflict, res.Code)
		assert.Equal(t, "That email address is already registered.", res.body["message"])
	})
}

func TestSignupCookieIsSecureInProduction(t *testing.T) {
	a := newApp(t, production)
	res := a.do(request{method: http.MethodPost, path: "/api/v1/users/signup", body: map[string]any{
		"name": "Laura Wilson", "email": "laura@example.com",
		"password": "pass1234", "passwordConfirm": "pass1234",
	}})
	require.Equal(t, http.StatusCreated, res.Code)
	require.Len(t, res.Result().Cookies(), 1)
	assert.True(t, res.Result().Cookies()[0].Secure)
}

func TestAuthenticate(t *testing.T) {
	a := newApp(t)
	_, token := a.signup("Laura Wilson", "laura@example.com", "pass1234")

	tests := []struct {
		name   string
		req    request
		status int
		msg    string
	}{
		{"no token", request{}, http.StatusUnauthorized, "You are not logged in! Please log in to get access."},
		{"bearer header", request{token: token}, http.StatusOK, ""},
		{"cookie", request{cookie: &http.Cookie{Name: httpapi.TokenCookie, Value: token}}, http.StatusOK, ""},
		{"logged out cookie", request{cookie: &http.Cookie{Name: httpapi.TokenCookie, Value: "loggedout"}},
			http.StatusUnauthorized, "You are not logged in! Please log in to get access."},
		{"garbage token", request{token: "not.a.jwt"}, http.StatusUnauthorized, "Invalid token. Please log in again!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.method = http.MethodGet
			tt.req.path = "/api/v1/users/me"
			res := a.do(tt.req)
			assert.Equal(t, tt.status, res.Code, res.Body.String())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, res.body["message"])
				return
			}
			assert.Equal(t, "laura@example.com", res.field("data", "data", "email"))
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(a.metrics.AuthFailures.WithLabelValues("AUTH_NOT_LOGGED_IN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.AuthFailures.WithLabelValues("TOKEN_INVALID")))
}

func TestExpiredToken(t *testing.T) {
	a := newApp(t)
	_, token := a.signup("Laura Wilson", "laura@example.com", "pass1234")
	a.clock.Advance(2 * time.Hour)

	res := a.do(request{method: http.MethodGet, path: "/api/v1/users/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Your token has expired! Please log in again.", res.body["message"])
}

func TestAuthorize(t *testing.T) {
	a := newApp(t)
	user := a.member("Plain User", "user@example.com", auth.RoleUser)
	admin := a.member("Admin User", "admin@example.com", auth.RoleAdmin)

	res := a.do(request{method: http.MethodGet, path: "/api/v1/users", token: user})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "You do not have permission to perform this action", res.body["message"])

	res = a.do(request{method: http.MethodGet, path: "/api/v1/users", token: admin})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, 2.0, res.body["results"])

	t.Run("without authenticate", func(t *testing.T) {
		rs := &httpapi.Responder{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
		h := httpapi.Authorize(rs, auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("identity in context", func(t *testing.T) {
		rs := &httpapi.Responder{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
		h := httpapi.Authorize(rs, auth.RoleGuide)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		ctx := auth.WithIdentity(context.Background(), &auth.Identity{ID: "g1", Role: auth.RoleGuide})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}

type stubAuthenticator struct{ err error }

func (s stubAuthenticator) Authenticate(context.Context, string) (*auth.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Identity{ID: "u1", Role: auth.RoleUser}, nil
}

func TestAuthenticateMiddlewareHidesInternalFailures(t *testing.T) {
	rs := &httpapi.Responder{Production: true, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	h := httpapi.Authenticate(stubAuthenticator{err: errors.New("db down")}, rs, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Something went very wrong!"}`, rec.Body.String())
}

func TestLogout(t *testing.T) {
	a := newApp(t)
	res := a.do(request{method: http.MethodGet, path: "/api/v1/users/logout"})
	require.Equal(t, http.StatusOK, res.Code)
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "loggedout", cookies[0].Value)
}

func TestUpdatePasswordInvalidatesOldTokens(t *testing.T) {
	a := newApp(t)
	_, old := a.signup("Laura Wilson", "laura@example.com", "pass1234")
	a.clock.Advance(10 * time.Second)

	res := a.do(request{method: http.MethodPatch, path: "/api/v1/users/updateMyPassword", token: old,
		body: map[string]any{"passwordCurrent": "wrong123", "password": "newpass123", "passwordConfirm": "newpass123"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Your current password is wrong.", res.body["message"])

	res = a.do(request{method: http.MethodPatch, path: "/api/v1/users/updateMyPassword", token: old,
		body: map[string]any{"passwordCurrent": "pass1234", "password": "newpass123", "passwordConfirm": "newpass123"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	fresh := res.body["token"].(string)

	res = a.do(request{method: http.MethodGet, path: "/api/v1/users/me", token: old})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "User recently changed password! Please log in again.", res.body["message"])

	res = a.do(request{method: http.MethodGet, path: "/api/v1/users/me", token: fresh})
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.do(request{method: http.MethodPost, path: "/api/v1/users/login",
		body: map[string]any{"email": "laura@example.com", "password": "newpass123"}})
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	a := newApp(t)
	a.signup("Laura Wilson", "laura@example.com", "pass1234")

	res := a.do(request{method: http.MethodPost, path: "/api/v1/users/forgotPassword",
		body: map[string]any{"email": "laura@example.com"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "Token sent to email!", res.body["message"])
	token := a.mail.lastResetToken(t)

	reset := map[string]any{"password": "brandnew1", "passwordConfirm": "brandnew1"}
	res = a.do(request{method: http.MethodPatch, path: "/api/v1/users/resetPassword/" + token, body: reset})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.NotEmpty(t, res.body["token"])

	res = a.do(request{method: http.MethodPatch, path: "/api/v1/users/resetPassword/" + token, body: reset})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Token is invalid or has expired", res.body["message"])

	res = a.do(request{method: http.MethodPost, path: "/api/v1/users/login",
		body: map[string]any{"email": "laura@example.com", "password": "brandnew1"}})
	assert.Equal(t, http.StatusOK, res.Code)

	t.Run("unknown email", func(t *testing.T) {
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/forgotPassword",
			body: map[string]any{"email": "nobody@example.com"}})
		assert.Equal(t, http.StatusNotFound, res.Code)
		assert.Equal(t, "There is no user with that email address.", res.body["message"])
	})

	t.Run("mail failure", func(t *testing.T) {
		a.mail.fail = errors.New("smtp unavailable")
		defer func() { a.mail.fail = nil }()
		res := a.do(request{method: http.MethodPost, path: "/api/v1/users/forgotPassword",
			body: map[string]any{"email": "laura@example.com"}})
		assert.Equal(t, http.StatusInternalServerError, res.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.MailFailures))
	})
}

func TestUpdateAndDeleteMe(t *testing.T) {
	a := newApp(t)
	_, token := a.signup("Laura Wilson", "laura@example.com", "pass1234")

	res := a.do(request{method: http.MethodPatch, path: "/api/v1/users/updateMe", token: token,
		body: map[string]any{"password": "sneaky123"}})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(request{method: http.MethodPatch, path: "/api/v1/users/updateMe", token: token,
		body: map[string]any{"name": "Laura W.", "role": "admin"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "Laura W.", res.field("data", "user", "name"))
	assert.Equal(t, "user", res.field("data", "user", "role"))

	res = a.do(request{method: http.MethodDelete, path: "/api/v1/users/deleteMe", token: token})
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = a.do(request{method: http.MethodPost, path: "/api/v1/users/login",
		body: map[string]any{"email": "laura@example.com", "password": "pass1234"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
