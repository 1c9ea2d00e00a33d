// Package metadata stores small client-side key/value settings, such as the
// current session's credentials, in the local SQLite database.
package metadata

import (
	"context"
)

// Repository is a string key/value store. Missing keys yield
// common.ErrorNotFound.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	// SetMany upserts all values in one transaction.
	SetMany(ctx context.Context, values map[string]string) error
	// Delete removes keys in one transaction. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string]string, error)
}
