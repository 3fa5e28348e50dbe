// Package apperr defines the error kinds shared by the checkout and
// reconciliation paths and how they map onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindPaymentGateway Kind = "payment_gateway"
	KindPersistence    Kind = "persistence"
	KindUnauthorized   Kind = "unauthorized"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return string(e.Kind) + ": " + e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return string(e.Kind) + ": " + e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func E(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Configuration(msg string) error { return E(KindConfiguration, msg, nil) }
func Validation(msg string) error { return E(KindValidation, msg, nil) }
func NotFound(msg string) error { return E(KindNotFound, msg, nil) }
func Unauthorized(msg string) error { return E(KindUnauthorized, msg, nil) }
func Gateway(msg string, err error) error { return E(KindPaymentGateway, msg, err) }
func Persistence(msg string, err error) error { return E(KindPersistence, msg, err) }

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the short message of the outermost *Error, falling back to
// err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPaymentGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
