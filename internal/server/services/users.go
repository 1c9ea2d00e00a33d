package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/audit"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// LoginLimiter throttles failed logins. *ratelimit.Limiter satisfies it.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email, ip string) error
}

// RegisterInput is the registration form.
type RegisterInput struct {
	FullName        string
	Email           string
	PhoneNumber     string
	Password        string
	ConfirmPassword string
}

type UserService struct {
	deps   Deps
	tokens *TokenService
	logger logging.Logger
}

func NewUserService(d Deps, tokens *TokenService) *UserService {
	d.defaults()
	return &UserService{deps: d, tokens: tokens, logger: d.Logger.With("module", "user_service")}
}

func (s *UserService) emit(ctx context.Context, e audit.Event) {
	e.Timestamp = s.deps.Now().UTC()
	s.deps.Audit.Emit(ctx, e)
}

// normalizeEmail gives every backend the same case-insensitive identity for
// an address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account and signs it in. Self-registration
// always yields models.RoleCustomer.
func (s *UserService) Register(ctx context.Context, in RegisterInput, ip string) (*models.User, *TokenPair, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	if err := validateRegistration(in); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	var (
		user *models.User
		pair *TokenPair
	)
	err = dbx.InTx(ctx, s.deps.DB, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.deps.Repos.Users(tx).Create(ctx, &models.User{
			Email:        in.Email,
			PasswordHash: hash,
			Role:         models.RoleCustomer,
			FullName:     in.FullName,
			PhoneNumber:  in.PhoneNumber,
		})
		if err != nil {
			return err
		}

		access, exp, err := s.tokens.IssueAccessToken(user)
		if err != nil {
			return common.ErrorInternal
		}
		rec, err := s.tokens.newRefreshRecord(user.ID, ip, s.deps.Now().UTC())
		if err != nil {
			return common.ErrorInternal
		}
		if err := s.deps.Repos.RefreshTokens(tx).Create(ctx, rec); err != nil {
			return fmt.Errorf("error creating refresh token: %w", err)
		}
		pair = &TokenPair{AccessToken: access, RefreshToken: rec.Value, ExpiresAt: exp}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, nil, common.ErrAlreadyExists
		}
		return nil, nil, fmt.Errorf("error registering user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	s.emit(ctx, audit.Event{EventType: audit.EventRegister, UserID: user.ID, IP: ip, Success: true})
	return user, pair, nil
}

// Login checks credentials and returns a fresh token pair. Unknown emails and
// wrong passwords both yield common.ErrorUnauthorized. When the limiter is
// unreachable logins proceed unthrottled.
func (s *UserService) Login(ctx context.Context, email, password, ip string) (*models.User, *TokenPair, error) {
	email = normalizeEmail(email)

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, common.ErrRateLimited) {
				s.deps.Metrics.RateLimited()
				s.emit(ctx, audit.Event{EventType: audit.EventLogin, IP: ip, Error: "rate_limited",
					Metadata: map[string]string{"email": email}})
				return nil, nil, common.ErrRateLimited
			}
			s.logger.Warn(ctx, "login limiter unavailable", "error", err)
		}
	}

	user, err := s.deps.Repos.Users(s.deps.DB).GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, nil, fmt.Errorf("error loading user: %w", err)
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !auth.CheckPassword(hash, password) || user == nil {
		s.failedLogin(ctx, email, ip)
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.tokens.IssuePair(ctx, user, ip)
	if err != nil {
		return nil, nil, err
	}

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.ResetLogin(ctx, email, ip); err != nil {
			s.logger.Warn(ctx, "login limiter reset failed", "error", err)
		}
	}
	s.deps.Metrics.Login(true)
	s.emit(ctx, audit.Event{EventType: audit.EventLogin, UserID: user.ID, IP: ip, Success: true})
	return user, pair, nil
}

func (s *UserService) failedLogin(ctx context.Context, email, ip string) {
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.IncrementLogin(ctx, email, ip); err != nil {
			s.logger.Warn(ctx, "login limiter increment failed", "error", err)
		}
	}
	s.deps.Metrics.Login(false)
	s.emit(ctx, audit.Event{EventType: audit.EventLogin, IP: ip, Error: "invalid_credentials",
		Metadata: map[string]string{"email": email}})
}

// GetUser returns the user with id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.deps.Repos.Users(s.deps.DB).GetUserByID(ctx, id)
}

// ChangePassword replaces the password of userID after checking the current
// one and signs the user out everywhere. Both writes share one transaction.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next, confirm, ip string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	v := common.NewValidationError()
	if !auth.CheckPassword(user.PasswordHash, current) {
		v.Add("currentPassword", "incorrect")
	}
	validateNewPassword(v, "newPassword", "confirmPassword", next, confirm)
	if err := v.OrNil(); err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return common.ErrorInternal
	}

	var n int64
	err = dbx.InTx(ctx, s.deps.DB, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.deps.Repos.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		var err error
		n, err = s.tokens.revokeAllOn(ctx, tx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.tokens.revokedAll(ctx, userID, ReasonPasswordChange, n)
	s.emit(ctx, audit.Event{EventType: audit.EventPasswordChanged, UserID: userID, IP: ip, Success: true,
		Metadata: map[string]string{"revoked": fmt.Sprint(n)}})
	return nil
}

// LogoutAll revokes every refresh token of userID.
func (s *UserService) LogoutAll(ctx context.Context, userID, ip string) (int64, error) {
	n, err := s.tokens.RevokeAll(ctx, userID, ReasonLogoutAll)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, audit.Event{EventType: audit.EventLogoutAll, UserID: userID, IP: ip, Success: true,
		Metadata: map[string]string{"revoked": fmt.Sprint(n)}})
	return n, nil
}

// AdminRevokeSessions revokes every refresh token of the target user on
// behalf of adminID.
func (s *UserService) AdminRevokeSessions(ctx context.Context, adminID, targetID, ip string) (int64, error) {
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return 0, err
	}
	n, err := s.tokens.RevokeAll(ctx, targetID, ReasonAdmin)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "sessions revoked by admin", "admin_id", adminID, "user_id", targetID, "revoked", n)
	s.emit(ctx, audit.Event{EventType: audit.EventAdminRevoke, UserID: targetID, IP: ip, Success: true,
		Metadata: map[string]string{"admin_id": adminID, "revoked": fmt.Sprint(n)}})
	return n, nil
}
