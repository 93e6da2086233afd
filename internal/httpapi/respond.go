// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 10 << 10

const msgSomethingWrong = "Something went very wrong!"

// Envelope is the body of every successful response.
type Envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Results *int   `json:"results,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Errors  []schema.FieldError `json:"errors,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
	Context map[string]any      `json:"context,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

// Responder writes envelopes and renders errors. Outside production,
// error responses carry the full error chain, code, context and
// stacktrace.
type Responder struct {
	Production bool
	Logger     *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the client may have gone away
	json.NewEncoder(w).Encode(v)
}

// JSON writes a success envelope with status.
func (rs *Responder) JSON(w http.ResponseWriter, status int, env Envelope) {
	if env.Status == "" {
		env.Status = "success"
	}
	writeJSON(w, status, env)
}

// Error renders err with the status of its kind. Client errors answer
// "fail", server errors "error".
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := errutil.Status(errutil.KindOf(err))
	body := errorBody{Status: "fail"}
	if status >= http.StatusInternalServerError {
		body.Status = "error"
		errutil.LogError(rs.Logger.With("method", r.Method, "path", r.URL.Path), "request failed", err)
	}

	var verr *schema.ValidationError
	if errors.As(err, &verr) && status == http.StatusBadRequest {
		body.Errors = verr.Errors
	}

	if rs.Production {
		body.Message = errutil.PublicMessage(err, msgSomethingWrong)
		writeJSON(w, status, body)
		return
	}

	body.Message = errutil.PublicMessage(err, err.Error())
	body.Error = err.Error()
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			body.Code = fmt.Sprint(code)
		}
		body.Context = oopsErr.Context()
		body.Stack = oopsErr.Stacktrace()
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	err := dec.Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return oops.Code("HTTP_BODY_TOO_LARGE").With("limit", tooLarge.Limit).
			Wrap(errutil.Wrap(errutil.KindValidation, "Request body is too large.", err))
	default:
		return oops.Code("HTTP_BODY_INVALID").
			Wrap(errutil.Wrap(errutil.KindValidation, "Request body is not valid JSON.", err))
	}
}

func results(n int) *int { return &n }

// data wraps v under key, the shape every resource response uses.
func data(key string, v any) map[string]any {
	return map[string]any{key: v}
}

// handlerFunc is an http.HandlerFunc that reports failures instead of
// rendering them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (rs *Responder) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			rs.Error(w, r, err)
		}
	}
}
