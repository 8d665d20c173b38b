// Package apperror provides the typed error taxonomy surfaced to HTTP
// clients, per spec §7. Internal components return these directly instead
// of raw errors so the HTTP boundary can map them without string sniffing.
package apperror

import "net/http"

// Code is a short machine-readable error code returned in the JSON envelope.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeRateLimited   Code = "RATE_LIMIT_EXCEEDED"
	CodeNotConnected  Code = "NOT_CONNECTED"
	CodeInternalError Code = "INTERNAL_ERROR"
)

// Error is a taxonomy-tagged error carrying the HTTP status it maps to.
type Error struct {
	Code    Code
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

func newErr(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func Validation(msg string) *Error   { return newErr(CodeValidation, http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error { return newErr(CodeUnauthorized, http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error    { return newErr(CodeForbidden, http.StatusForbidden, msg) }
func NotFound(msg string) *Error     { return newErr(CodeNotFound, http.StatusNotFound, msg) }
func Conflict(msg string) *Error     { return newErr(CodeConflict, http.StatusConflict, msg) }
func RateLimited(msg string) *Error  { return newErr(CodeRateLimited, http.StatusTooManyRequests, msg) }
func NotConnected(msg string) *Error { return newErr(CodeNotConnected, http.StatusBadRequest, msg) }
func Internal(msg string) *Error     { return newErr(CodeInternalError, http.StatusInternalServerError, msg) }

// As extracts an *Error from err, falling back to a generic INTERNAL_ERROR
// wrapping the original message so every error reaching the HTTP boundary
// maps to the taxonomy.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err.Error())
}
