// Package refreshtokens declares the server-side store for refresh token
// records and their rotation chains, with PostgreSQL and in-memory backends.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// Repository persists refresh token records. Lookups by value are exact
// match only. Missing records yield common.ErrorNotFound.
type Repository interface {
	// Create stores a new record. A duplicate value yields common.ErrAlreadyExists.
	Create(ctx context.Context, token *models.RefreshToken) error

	FindByValue(ctx context.Context, value string) (*models.RefreshToken, error)

	// Rotate atomically revokes the live record holding value at now, stores
	// next and links it as the successor. When the record cannot be rotated it
	// is returned together with common.ErrTokenExpired (past expiry; a live
	// record is revoked on the way) or common.ErrTokenReused (already revoked).
	Rotate(ctx context.Context, value string, next *models.RefreshToken, now time.Time) (*models.RefreshToken, error)

	// Revoke marks the record revoked at now and returns it. An already
	// revoked record keeps its original revocation time.
	Revoke(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error)

	// RevokeAll revokes every live record of the user and returns how many
	// were affected.
	RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error)

	// DescendantsOf returns the forward chain after id, oldest first.
	DescendantsOf(ctx context.Context, id string) ([]*models.RefreshToken, error)

	// RevokeDescendants revokes every live record on the forward chain after id.
	RevokeDescendants(ctx context.Context, id string, now time.Time) (int64, error)
}
