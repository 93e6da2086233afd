// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package errutil classifies failures into a small set of kinds that the
// HTTP surface maps to status codes, and provides logging and test helpers
// for oops errors.
package errutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of an operational failure.
type Kind string

// Failure kinds. Anything that carries no kind is treated as KindInternal.
const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// Error is a classified failure whose message is safe to show to clients.
// Wrap it with oops to attach a code and context for logs.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New returns a classified error with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Classify attaches kind to err, using err's text as the client message.
// The original error stays reachable through errors.As.
func Classify(kind Kind, err error) *Error {
	return &Error{kind: kind, msg: err.Error(), cause: err}
}

// Wrap classifies err with a client message of its own. err stays
// reachable through errors.Is and errors.As; its text appears in Error but
// never in Message.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.msg {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports the failure category.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the client-safe message.
func (e *Error) Message() string { return e.msg }

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Operational reports whether err was classified where it was raised.
// Operational failures are expected and their messages may reach clients.
func Operational(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// PublicMessage returns the client-safe message for err. Unclassified errors
// yield fallback so internals never leak.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return fallback
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
