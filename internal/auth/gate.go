package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/rs/zerolog/log"
)

// IdentityLookup resolves a user ID to the current user record.
type IdentityLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Gate turns a bearer credential into a resolved Identity.
type Gate struct {
	tokens *TokenIssuer
	users  IdentityLookup
}

// NewGate creates an authentication gate.
func NewGate(tokens *TokenIssuer, users IdentityLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

var errMissingBearer = fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)

// Authenticate validates an Authorization header value of the form
// "Bearer <token>".
func (g *Gate) Authenticate(ctx context.Context, header string) (models.Identity, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return models.Identity{}, errMissingBearer
	}
	return g.AuthenticateToken(ctx, strings.TrimSpace(token))
}

// AuthenticateToken validates a raw token and resolves the current role of
// its user. A token for a user that no longer exists is rejected.
func (g *Gate) AuthenticateToken(ctx context.Context, token string) (models.Identity, error) {
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return models.Identity{}, err
	}
	user, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Identity{}, ErrInvalidToken
		}
		return models.Identity{}, err
	}
	return user.Identity(), nil
}

// Middleware protects routes: requests without a valid bearer token are
// answered with 401 and never reach next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			status := apperr.HTTPStatus(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Msg("Failed to resolve identity")
			} else {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected unauthenticated request")
			}
			writeError(w, status, apperr.PublicMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
