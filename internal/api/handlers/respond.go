package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// messageResponse is the body of every error and plain acknowledgement.
type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response body")
	}
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, messageResponse{Message: message})
}

// respondError maps err onto the HTTP taxonomy. Internal failures are
// logged and answered with an opaque message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}
	respondMessage(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads a JSON body into dst. Malformed bodies are InvalidInput.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", apperr.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid request body: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

// identity returns the caller attached by the auth gate.
func identity(r *http.Request) (models.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: no identity on request", apperr.ErrUnauthenticated)
	}
	return id, nil
}
