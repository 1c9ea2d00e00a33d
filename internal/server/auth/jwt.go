// Package auth issues and validates access tokens, hashes passwords and
// carries the authenticated identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claims plus the subject's role.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// Reasons attached to access token rejections.
const (
	ReasonMissing = "AccessTokenMissing"
	ReasonExpired = "AccessTokenExpired"
	ReasonInvalid = "AccessTokenInvalid"
)

var (
	ErrAccessTokenMissing = fmt.Errorf("%w: missing access token", common.ErrorUnauthorized)
	ErrAccessTokenExpired = fmt.Errorf("%w: access token expired", common.ErrorUnauthorized)
	ErrAccessTokenInvalid = fmt.Errorf("%w: access token invalid", common.ErrorUnauthorized)
)

// Reason returns the rejection reason for an error produced by Validate.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAccessTokenMissing):
		return ReasonMissing
	case errors.Is(err, ErrAccessTokenExpired):
		return ReasonExpired
	default:
		return ReasonInvalid
	}
}

// TokenManager signs and verifies HS256 access tokens for one issuer and
// audience. Validation applies no clock-skew leeway.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	validity time.Duration
	now      func() time.Time
}

func NewTokenManager(secret, issuer, audience string, validity time.Duration) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		validity: validity,
		now:      time.Now,
	}
}

// WithClock returns a copy of m that reads time from now.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	c := *m
	c.now = now
	return &c
}

// Issue mints an access token for user. The returned expiry is exactly the
// token's exp claim.
func (m *TokenManager) Issue(user *models.User) (string, time.Time, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		Role: user.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// Validate verifies signature, algorithm, issuer, audience and expiry. A
// token is rejected from its exp instant onwards, the same cutoff
// models.RefreshToken.ExpiredAt applies to refresh records.
func (m *TokenManager) Validate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrAccessTokenMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrAccessTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrAccessTokenInvalid, err)
	}

	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrAccessTokenInvalid
	}

	return &Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
