package handler

import (
	"net/http"

	"github.com/mcoot/worldrelay/internal/api/apierr"
)

// Re-export from apierr for convenience
type APIError = apierr.APIError
type ErrorResponse = apierr.ErrorResponse

// Re-export error codes
const (
	CodeInvalidRequest     = apierr.CodeInvalidRequest
	CodeNotFound           = apierr.CodeNotFound
	CodeMethodNotAllowed   = apierr.CodeMethodNotAllowed
	CodeWorldNotFound      = apierr.CodeWorldNotFound
	CodeServiceUnavailable = apierr.CodeServiceUnavailable
	CodeTimeout            = apierr.CodeTimeout
	CodeInternalError      = apierr.CodeInternalError
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// NotFound answers requests for unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	apierr.WriteError(w, apierr.NewNotFoundError())
}

// MethodNotAllowed answers requests for known routes with the wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apierr.WriteError(w, apierr.NewMethodNotAllowedError())
}
