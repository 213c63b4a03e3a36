package auth

import (
	"context"
	"strings"

	domain "github.com/storefront/api/internal/domain"
)

// Identity captures the authenticated account resolved from a bearer token.
type Identity struct {
	UserID  string
	Account domain.Account
}

// IsAdmin reports whether the account carries the admin role.
func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	return i.Account.IsAdmin()
}

// Email returns the account email, trimmed.
func (i *Identity) Email() string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.Account.Email)
}

type contextKey string

const identityContextKey contextKey = "github.com/storefront/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
