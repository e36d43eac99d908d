package auth

import (
	"context"

	"github.com/isdelr/signaldesk-be/internal/models"
)

type contextKey string

// IdentityKey is the context key for the resolved identity.
const IdentityKey = contextKey("identity")

// WithIdentity attaches identity to ctx.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFrom returns the identity attached by the gate middleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(models.Identity)
	return identity, ok
}
