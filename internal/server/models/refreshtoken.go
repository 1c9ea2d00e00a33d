package models

import "time"

// RefreshToken is one link of a rotation chain. Value is the opaque secret
// handed to the client; ReplacedByTokenID points at the successor once the
// record has been rotated.
type RefreshToken struct {
	ID                string
	UserID            string
	Value             string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	CreatedByIP       string
}

// Revoked reports whether the record has been revoked for any reason.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// ExpiredAt reports whether the record has expired at now. Like access
// tokens, a record is rejected from its expiry instant onwards.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
