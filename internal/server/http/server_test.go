package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	app   *httptest.Server
	repos *repomanager.MemoryRepositoryManager
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Now().UTC()}
	repos := repomanager.NewMemoryRepositoryManager()
	jwt := auth.NewTokenManager("test-secret", "storefront", "storefront-api", 15*time.Minute).WithClock(clock.Now)

	d := services.Deps{
		Repos:                repos,
		Tokens:               jwt,
		RefreshTokenValidity: 24 * time.Hour,
		Metrics:              metrics.New(),
		Now:                  clock.Now,
	}
	tokens := services.NewTokenService(d)
	srv := NewServer(Options{
		Tokens:      tokens,
		Users:       services.NewUserService(d, tokens),
		Validator:   jwt,
		Metrics:     d.Metrics,
		CORSOrigins: []string{"http://localhost:3000"},
	})

	app := httptest.NewServer(srv.Router())
	t.Cleanup(app.Close)
	return &testEnv{app: app, repos: repos, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.app.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) register(t *testing.T, email string) map[string]any {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, common.PathRegister, "", map[string]string{
		"fullName": "Ada Lovelace", "email": email, "phoneNumber": "+44 20 7946 0958",
		"password": "correct horse", "confirmPassword": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body
}

func (e *testEnv) seedUser(t *testing.T, email string, role models.Role) {
	t.Helper()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	_, err = e.repos.Users(nil).Create(context.Background(), &models.User{
		Email: email, PasswordHash: hash, Role: role, FullName: string(role),
	})
	require.NoError(t, err)
}

func (e *testEnv) login(t *testing.T, email string) map[string]any {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, common.PathLogin, "", map[string]string{"email": email, "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body
}

func TestRegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)
	reg := e.register(t, "ada@example.com")
	assert.NotEmpty(t, reg["refreshToken"])

	pair := e.login(t, "ada@example.com")
	resp, me := e.do(t, http.MethodGet, common.PathMe, pair["accessToken"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", me["email"])
	assert.Equal(t, string(models.RoleCustomer), me["role"])
}

func TestRegister_Errors(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, common.PathRegister, "", map[string]string{
		"fullName": "Ada", "email": "nope", "password": "short", "confirmPassword": "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "invalid", fields["email"])
	assert.Equal(t, "too short", fields["password"])

	resp, body = e.do(t, http.MethodPost, common.PathRegister, "", map[string]string{
		"fullName": "", "email": "ada@example.com", "phoneNumber": "abc",
		"password": "password1", "confirmPassword": "password2",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields = body["fields"].(map[string]any)
	assert.Equal(t, map[string]any{
		"fullName":        "required",
		"phoneNumber":     "invalid",
		"confirmPassword": "does not match",
	}, fields, "field keys match the request body")

	e.register(t, "ada@example.com")
	resp, body = e.do(t, http.MethodPost, common.PathRegister, "", map[string]string{
		"fullName": "Ada", "email": "ada@example.com", "password": "password1", "confirmPassword": "password1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "AlreadyExists", body["error"])

	resp, _ = e.do(t, http.MethodPost, common.PathRegister, "", map[string]string{
		"fullName": "Ada", "email": "Ada@Example.com", "password": "password1", "confirmPassword": "password1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "emails differing only in case are the same account")
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "ada@example.com")

	resp, _ := e.do(t, http.MethodPost, common.PathLogin, "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, common.PathLogin, "", map[string]string{"email": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh_RotationAndReplay(t *testing.T) {
	e := newTestEnv(t)
	first := e.register(t, "ada@example.com")

	resp, second := e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": first["refreshToken"].(string)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, first["refreshToken"], second["refreshToken"])

	resp, body := e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": first["refreshToken"].(string)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.KindTokenReused, body["error"])
	assert.Equal(t, common.ReauthenticateMessage, body["message"])

	resp, body = e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": second["refreshToken"].(string)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.KindTokenReused, body["error"], "descendants are revoked after a replay")
}

func TestRefresh_UnknownAndExpired(t *testing.T) {
	e := newTestEnv(t)
	pair := e.register(t, "ada@example.com")

	resp, body := e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.KindTokenInvalid, body["error"])

	e.clock.Advance(25 * time.Hour)
	resp, body = e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": pair["refreshToken"].(string)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.KindTokenExpired, body["error"])
}

func TestRevoke(t *testing.T) {
	e := newTestEnv(t)
	pair := e.register(t, "ada@example.com")
	rt := pair["refreshToken"].(string)

	resp, _ := e.do(t, http.MethodPost, common.PathRevokeToken, "", map[string]string{"refreshToken": rt})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": rt})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.KindTokenReused, body["error"])

	resp, _ = e.do(t, http.MethodPost, common.PathRevokeToken, "", map[string]string{"refreshToken": "unknown"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate(t *testing.T) {
	e := newTestEnv(t)
	pair := e.register(t, "ada@example.com")

	resp, body := e.do(t, http.MethodGet, common.PathMe, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.ReasonMissing, body["error"])

	resp, body = e.do(t, http.MethodGet, common.PathMe, "not.a.jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.ReasonInvalid, body["error"])

	e.clock.Advance(15 * time.Minute)
	resp, body = e.do(t, http.MethodGet, common.PathMe, pair["accessToken"].(string), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.ReasonExpired, body["error"], "rejected at exactly exp")
}

func TestAdminRoutes_RoleGating(t *testing.T) {
	e := newTestEnv(t)
	customer := e.register(t, "ada@example.com")
	e.seedUser(t, "admin@example.com", models.RoleAdmin)
	e.seedUser(t, "staff@example.com", models.RoleStaff)
	admin := e.login(t, "admin@example.com")
	staff := e.login(t, "staff@example.com")

	_, me := e.do(t, http.MethodGet, common.PathMe, customer["accessToken"].(string), nil)
	userID := me["id"].(string)
	path := "/admin/users/" + userID

	resp, body := e.do(t, http.MethodPost, path+"/revoke-sessions", customer["accessToken"].(string), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Forbidden", body["error"])

	resp, _ = e.do(t, http.MethodPost, path+"/revoke-sessions", staff["accessToken"].(string), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, path, staff["accessToken"].(string), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["email"])

	resp, body = e.do(t, http.MethodPost, path+"/revoke-sessions", admin["accessToken"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["revoked"])

	resp, _ = e.do(t, http.MethodGet, "/admin/users/missing", admin["accessToken"].(string), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChangePasswordAndLogoutAll(t *testing.T) {
	e := newTestEnv(t)
	pair := e.register(t, "ada@example.com")
	access := pair["accessToken"].(string)

	resp, body := e.do(t, http.MethodPost, common.PathChangePassword, access, map[string]string{
		"currentPassword": "wrong", "newPassword": "new password", "confirmPassword": "new password",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "incorrect", body["fields"].(map[string]any)["currentPassword"])

	resp, _ = e.do(t, http.MethodPost, common.PathChangePassword, access, map[string]string{
		"currentPassword": "correct horse", "newPassword": "new password", "confirmPassword": "new password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, common.PathRefreshToken, "", map[string]string{"refreshToken": pair["refreshToken"].(string)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, common.PathLogoutAll, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["revoked"])
}

func TestHealthMetricsAndCORS(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	e.register(t, "ada@example.com")
	mresp, err := http.Get(e.app.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
	assert.True(t, strings.Contains(string(raw), "storefront_http_request_duration_seconds"))

	req, err := http.NewRequest(http.MethodOptions, e.app.URL+common.PathLogin, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	cresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer cresp.Body.Close()
	assert.Equal(t, "http://localhost:3000", cresp.Header.Get("Access-Control-Allow-Origin"))
}
