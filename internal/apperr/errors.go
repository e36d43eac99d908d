// Package apperr defines the error taxonomy shared by the stores, services
// and HTTP handlers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput signals malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated signals a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden signals that the policy denies the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound signals that the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrStore signals an underlying persistence failure.
	ErrStore = errors.New("store error")
	// ErrUnavailable signals that an optional backend is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to send to a client.
// Store and unknown errors are opaque.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
