// Package errors provides the typed error taxonomy for the UIN lifecycle engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the nine error kinds the engine distinguishes.
// Kinds are stable strings so callers can switch on them across process
// boundaries (e.g. serialized in an HTTP response) without depending on
// Go error identity.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindIllegalState   Kind = "ILLEGAL_TRANSITION"
	KindDuplicate      Kind = "DUPLICATE_UIN"
	KindNoAvailable    Kind = "NO_AVAILABLE"
	KindSecretMissing  Kind = "SECRET_MISSING"
	KindEntropy        Kind = "ENTROPY_FAILURE"
	KindStorage        Kind = "STORAGE_ERROR"
	KindConfiguration  Kind = "CONFIGURATION_ERROR"
)

// Error is a structured error carrying a Kind, a human message, an HTTP
// status hint for collaborators that expose one, optional structured
// details, and an optional wrapped cause.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the receiver for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an Error with no wrapped cause.
func New(kind Kind, message string, httpStatus int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an Error around an existing cause.
func Wrap(kind Kind, message string, httpStatus int, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// --- Validation ---

func Validation(field, reason string) *Error {
	return New(KindValidation, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func OutOfRange(field string, min, max interface{}) *Error {
	return New(KindValidation, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", min).
		WithDetails("max", max)
}

// --- Resource / lifecycle ---

func NotFound(uin string) *Error {
	return New(KindNotFound, "uin not found", http.StatusNotFound).
		WithDetails("uin", uin)
}

func IllegalTransition(uin, from, to string) *Error {
	return New(KindIllegalState, "illegal state transition", http.StatusConflict).
		WithDetails("uin", uin).
		WithDetails("from", from).
		WithDetails("to", to)
}

func DuplicateUin(uin string) *Error {
	return New(KindDuplicate, "uin already exists", http.StatusConflict).
		WithDetails("uin", uin)
}

// NoAvailable is returned as a well-defined empty outcome, not a failure;
// callers are expected to check for it rather than treat it like the other kinds.
func NoAvailable(scope string) *Error {
	return New(KindNoAvailable, "no available uin in pool", http.StatusOK).
		WithDetails("scope", scope)
}

// --- Secrets / entropy / storage / config ---

func SecretMissing(sector string) *Error {
	return New(KindSecretMissing, "sector secret not configured", http.StatusFailedDependency).
		WithDetails("sector", sector)
}

func EntropyFailure(err error) *Error {
	return Wrap(KindEntropy, "entropy source exhausted", http.StatusServiceUnavailable, err)
}

func Storage(operation string, err error) *Error {
	return Wrap(KindStorage, "storage operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func Configuration(message string, err error) *Error {
	return Wrap(KindConfiguration, message, http.StatusInternalServerError, err)
}
