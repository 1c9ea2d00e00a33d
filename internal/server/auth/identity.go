package auth

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// Identity is what a validated access token says about the caller.
type Identity struct {
	UserID    string
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

// HasRole reports whether the identity holds one of roles.
func (i *Identity) HasRole(roles ...models.Role) bool {
	return slices.Contains(roles, i.Role)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}
