// Package services contains the server-side business logic of the auth
// core: token issuance and rotation, and the user-facing account flows.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/audit"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Revocation reasons, used for metrics and audit metadata.
const (
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonPasswordChange = "password_change"
	ReasonAdmin          = "admin"
	ReasonReuse          = "reuse"
)

// TokenPair is what a successful login, registration or refresh returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Deps bundles the collaborators shared by the services. Audit, Metrics and
// Limiter are optional.
type Deps struct {
	DB                   dbx.DBTX
	Repos                repomanager.RepositoryManager
	Tokens               *auth.TokenManager
	RefreshTokenValidity time.Duration
	Audit                audit.Sink
	Metrics              *metrics.Metrics
	Limiter              LoginLimiter
	Logger               logging.Logger
	Now                  func() time.Time
}

func (d *Deps) defaults() {
	if d.Audit == nil {
		d.Audit = audit.NoOpSink{}
	}
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// TokenService issues access and refresh tokens and rotates refresh tokens
// with reuse detection.
type TokenService struct {
	deps   Deps
	logger logging.Logger
}

func NewTokenService(d Deps) *TokenService {
	d.defaults()
	return &TokenService{deps: d, logger: d.Logger.With("module", "token_service")}
}

func (s *TokenService) emit(ctx context.Context, e audit.Event) {
	e.Timestamp = s.deps.Now().UTC()
	s.deps.Audit.Emit(ctx, e)
}

// IssueAccessToken mints a signed access token for user. It has no side
// effects.
func (s *TokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	return s.deps.Tokens.Issue(user)
}

func (s *TokenService) newRefreshRecord(userID, ip string, now time.Time) (*models.RefreshToken, error) {
	value, err := common.MakeRandHexString(common.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}
	return &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		Value:       value,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.deps.RefreshTokenValidity),
		CreatedByIP: ip,
	}, nil
}

// IssueRefreshToken creates and persists a fresh refresh token for userID.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID, createdByIP string) (*models.RefreshToken, error) {
	rec, err := s.newRefreshRecord(userID, createdByIP, s.deps.Now().UTC())
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.deps.Repos.RefreshTokens(s.deps.DB).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("error creating refresh token: %w", err)
	}
	return rec, nil
}

// IssuePair issues an access token and a new refresh token for user.
func (s *TokenService) IssuePair(ctx context.Context, user *models.User, ip string) (*TokenPair, error) {
	access, exp, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, common.ErrorInternal
	}
	rec, err := s.IssueRefreshToken(ctx, user.ID, ip)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: rec.Value, ExpiresAt: exp}, nil
}

// Rotate exchanges a live refresh token for a new pair. It fails with
// common.ErrTokenInvalid for unknown values, common.ErrTokenExpired past
// expiry, and common.ErrTokenReused when the token was already rotated or
// revoked, in which case every descendant of it is revoked as well.
func (s *TokenService) Rotate(ctx context.Context, value, ip string) (*TokenPair, error) {
	repo := s.deps.Repos.RefreshTokens(s.deps.DB)
	now := s.deps.Now().UTC()

	current, err := repo.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.reject(ctx, nil, ip, common.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	user, err := s.deps.Repos.Users(s.deps.DB).GetUserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.reject(ctx, current, ip, common.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("error loading token owner: %w", err)
	}

	next, err := s.newRefreshRecord(user.ID, ip, now)
	if err != nil {
		return nil, common.ErrorInternal
	}

	presented, err := repo.Rotate(ctx, value, next, now)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorNotFound):
		return nil, s.reject(ctx, current, ip, common.ErrTokenInvalid)
	case errors.Is(err, common.ErrTokenExpired):
		return nil, s.reject(ctx, presented, ip, common.ErrTokenExpired)
	case errors.Is(err, common.ErrTokenReused):
		return nil, s.handleReuse(ctx, presented, ip, now)
	default:
		return nil, fmt.Errorf("error rotating refresh token: %w", err)
	}

	access, exp, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, common.ErrorInternal
	}

	s.deps.Metrics.Refresh("rotated")
	s.emit(ctx, audit.Event{
		EventType: audit.EventRefreshRotated,
		UserID:    user.ID,
		TokenID:   presented.ID,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"replaced_by": next.ID},
	})

	return &TokenPair{AccessToken: access, RefreshToken: next.Value, ExpiresAt: exp}, nil
}

func (s *TokenService) reject(ctx context.Context, rec *models.RefreshToken, ip string, kind error) error {
	e := audit.Event{EventType: audit.EventRefreshRejected, IP: ip, Error: common.TokenKind(kind)}
	if rec != nil {
		e.UserID = rec.UserID
		e.TokenID = rec.ID
	}
	s.deps.Metrics.Refresh(e.Error)
	s.logger.Info(ctx, "refresh rejected", "kind", e.Error, "user_id", e.UserID, "ip", ip)
	s.emit(ctx, e)
	return kind
}

// handleReuse revokes the forward chain of a replayed token. The
// presented record is already revoked.
func (s *TokenService) handleReuse(ctx context.Context, rec *models.RefreshToken, ip string, now time.Time) error {
	repo := s.deps.Repos.RefreshTokens(s.deps.DB)

	n, err := repo.RevokeDescendants(ctx, rec.ID, now)
	if err != nil {
		s.logger.Error(ctx, "revoke descendants after reuse", "user_id", rec.UserID, "token_id", rec.ID, "error", err)
		return fmt.Errorf("error revoking token chain: %w", err)
	}

	s.deps.Metrics.Refresh(common.KindTokenReused)
	s.deps.Metrics.ReuseDetected()
	s.deps.Metrics.Revoked(ReasonReuse, n)
	s.logger.Warn(ctx, "refresh token reuse detected",
		"security_event", true, "user_id", rec.UserID, "token_id", rec.ID, "ip", ip, "revoked", n)
	s.emit(ctx, audit.Event{
		EventType: audit.EventRefreshReused,
		UserID:    rec.UserID,
		TokenID:   rec.ID,
		IP:        ip,
		Error:     common.KindTokenReused,
		Metadata:  map[string]string{"created_by_ip": rec.CreatedByIP, "revoked": fmt.Sprint(n)},
	})
	return common.ErrTokenReused
}

// Revoke revokes the refresh token holding value. Unknown values fail with
// common.ErrTokenInvalid. Revoking an already revoked token succeeds.
func (s *TokenService) Revoke(ctx context.Context, value, ip string) error {
	rec, err := s.deps.Repos.RefreshTokens(s.deps.DB).Revoke(ctx, value, s.deps.Now().UTC())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrTokenInvalid
		}
		return fmt.Errorf("error revoking refresh token: %w", err)
	}

	s.deps.Metrics.Revoked(ReasonLogout, 1)
	s.emit(ctx, audit.Event{EventType: audit.EventLogout, UserID: rec.UserID, TokenID: rec.ID, IP: ip, Success: true})
	return nil
}

// RevokeAll revokes every live refresh token of userID and reports how many
// were revoked.
func (s *TokenService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	n, err := s.revokeAllOn(ctx, s.deps.DB, userID)
	if err != nil {
		return 0, err
	}
	s.revokedAll(ctx, userID, reason, n)
	return n, nil
}

// revokeAllOn revokes on db, which may be an open transaction. Callers report
// the count with revokedAll once the work is committed.
func (s *TokenService) revokeAllOn(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := s.deps.Repos.RefreshTokens(db).RevokeAll(ctx, userID, s.deps.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("error revoking refresh tokens: %w", err)
	}
	return n, nil
}

func (s *TokenService) revokedAll(ctx context.Context, userID, reason string, n int64) {
	s.deps.Metrics.Revoked(reason, n)
	s.logger.Info(ctx, "refresh tokens revoked", "user_id", userID, "reason", reason, "revoked", n)
}
