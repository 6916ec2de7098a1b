// Package apperr defines API-facing errors with HTTP status codes and
// machine-readable error codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error that maps onto an HTTP response.
type Error struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails attaches context fields to the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "bad_request", message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, "forbidden", message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, "not_found", message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, "internal_error", message)
}

// From converts any error into an *Error, defaulting to a 500.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err.Error())
}
