// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"sort"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthenticated")
	ErrForbidden      = errors.New("forbidden")
	ErrRateLimited    = errors.New("rate limited")
	ErrValidation     = errors.New("validation error")

	// Refresh token lifecycle errors.
	ErrTokenInvalid = errors.New("refresh token invalid")
	ErrTokenExpired = errors.New("refresh token expired")
	ErrTokenReused  = errors.New("refresh token reused")
)

// Wire names of the refresh token failure kinds.
const (
	KindTokenInvalid = "TokenInvalid"
	KindTokenExpired = "TokenExpired"
	KindTokenReused  = "TokenReused"
)

// TokenKind returns the wire kind of a refresh token failure, or "" when err
// is not one.
func TokenKind(err error) string {
	switch {
	case errors.Is(err, ErrTokenReused):
		return KindTokenReused
	case errors.Is(err, ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return KindTokenInvalid
	default:
		return ""
	}
}

// TokenKindError maps a wire kind back to its sentinel. Unknown kinds map to
// ErrTokenInvalid.
func TokenKindError(kind string) error {
	switch kind {
	case KindTokenReused:
		return ErrTokenReused
	case KindTokenExpired:
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// ValidationError carries field-scoped input problems. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a problem for field. The first problem per field wins.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e when it holds problems and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
