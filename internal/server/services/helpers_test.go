package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/audit"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) ofType(t string) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLimiter struct {
	checkErr   error
	increments int
	resets     int
}

func (f *fakeLimiter) CheckLogin(context.Context, string, string) error { return f.checkErr }
func (f *fakeLimiter) IncrementLogin(context.Context, string, string) error {
	f.increments++
	return nil
}
func (f *fakeLimiter) ResetLogin(context.Context, string, string) error {
	f.resets++
	return nil
}

type fixture struct {
	repos   *repomanager.MemoryRepositoryManager
	clock   *fakeClock
	sink    *recordingSink
	limiter *fakeLimiter
	jwt     *auth.TokenManager
	tokens  *TokenService
	users   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		repos:   repomanager.NewMemoryRepositoryManager(),
		clock:   clock,
		sink:    &recordingSink{},
		limiter: &fakeLimiter{},
		jwt:     auth.NewTokenManager("test-secret", "storefront", "storefront-api", 15*time.Minute).WithClock(clock.Now),
	}
	d := Deps{
		Repos:                f.repos,
		Tokens:               f.jwt,
		RefreshTokenValidity: 7 * 24 * time.Hour,
		Audit:                f.sink,
		Metrics:              metrics.New(),
		Limiter:              f.limiter,
		Now:                  clock.Now,
	}
	f.tokens = NewTokenService(d)
	f.users = NewUserService(d, f.tokens)
	return f
}

func (f *fixture) register(t *testing.T, email string) (*models.User, *TokenPair) {
	t.Helper()
	u, pair, err := f.users.Register(context.Background(), RegisterInput{
		FullName:        "Ada Lovelace",
		Email:           email,
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
	}, "10.0.0.1")
	require.NoError(t, err)
	return u, pair
}

func (f *fixture) createUser(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	u, err := f.repos.Users(nil).Create(context.Background(), &models.User{
		Email: email, PasswordHash: hash, Role: role, FullName: "Staff Member",
	})
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, err error, kind string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, common.TokenKind(err))
}
