// Package apperr holds the error taxonomy shared by the sync endpoints, the
// calendar fetch proxy and the ingestion pipeline.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuth            Kind = "auth"
	KindConfig          Kind = "config"
	KindUpstreamFetch   Kind = "upstream_fetch"
	KindResourceLimit   Kind = "resource_limit"
	KindSyncUnavailable Kind = "sync_unavailable"
	KindInternal        Kind = "internal"
)

// Error carries a Kind, a caller-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the first Kind found in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message. Auth and internal errors get a
// generic text so nothing about the failure leaks to the client.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindAuth:
		return "Unauthorized"
	case KindInternal:
		return "internal error"
	}
	return e.Msg
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindUpstreamFetch:
		return http.StatusBadGateway
	case KindResourceLimit:
		return http.StatusRequestEntityTooLarge
	case KindSyncUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
