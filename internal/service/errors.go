package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tenantly/tenantly/internal/model"
)

// Kind classifies a business error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindBadRequest   Kind = "bad_request"
)

// Error is a business-logic failure carrying the HTTP status it maps to.
// Handlers pass it to a single boundary that renders the envelope.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []model.FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input with field-level detail.
func Validation(fields ...model.FieldError) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: "Validation failed", Fields: fields}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

// Conflict reports a uniqueness violation. It is surfaced as 400.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusBadRequest, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: msg}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind reports whether err is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	se, ok := AsError(err)
	return ok && se.Kind == k
}
