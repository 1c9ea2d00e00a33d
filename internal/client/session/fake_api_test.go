package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
)

// fakeAPI mimics the storefront auth endpoints with a single user whose
// refresh token rotates on every successful refresh.
type fakeAPI struct {
	mu          sync.Mutex
	generation  int
	validAccess string
	refreshFail string
	rejectAll   bool
	revoked     []string
	bearerOnPub []string

	release      chan struct{}
	refreshCalls atomic.Int32
	unauthorized atomic.Int32
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) pairLocked() map[string]any {
	a.validAccess = fmt.Sprintf("access-%d", a.generation)
	return map[string]any{
		"accessToken":  a.validAccess,
		"refreshToken": fmt.Sprintf("refresh-%d", a.generation),
		"expiresAt":    time.Now().Add(15 * time.Minute).UTC(),
	}
}

// expireAccess makes the current access token unacceptable.
func (a *fakeAPI) expireAccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validAccess = "expired"
}

func isPublic(path string) bool {
	switch path {
	case common.PathLogin, common.PathRegister, common.PathRefreshToken, common.PathRevokeToken:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isPublic(r.URL.Path) && r.Header.Get(common.AuthorizationHeader) != "" {
		a.mu.Lock()
		a.bearerOnPub = append(a.bearerOnPub, r.URL.Path)
		a.mu.Unlock()
	}

	var body map[string]string
	if r.Method == http.MethodPost && isPublic(r.URL.Path) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case common.PathLogin:
		if body["password"] != "correct horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		a.mu.Lock()
		a.generation = 1
		pair := a.pairLocked()
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, pair)

	case common.PathRegister:
		if body["email"] == "bad" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "ValidationError", "fields": map[string]string{"email": "invalid"},
			})
			return
		}
		a.mu.Lock()
		a.generation = 1
		pair := a.pairLocked()
		a.mu.Unlock()
		writeJSON(w, http.StatusCreated, pair)

	case common.PathRefreshToken:
		a.refreshCalls.Add(1)
		if a.release != nil {
			select {
			case <-a.release:
			case <-r.Context().Done():
				return
			}
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.refreshFail != "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": a.refreshFail, "message": common.ReauthenticateMessage})
			return
		}
		if body["refreshToken"] != fmt.Sprintf("refresh-%d", a.generation) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": common.KindTokenReused})
			return
		}
		a.generation++
		writeJSON(w, http.StatusOK, a.pairLocked())

	case common.PathRevokeToken:
		a.mu.Lock()
		a.revoked = append(a.revoked, body["refreshToken"])
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})

	default:
		a.mu.Lock()
		ok := !a.rejectAll && r.Header.Get(common.AuthorizationHeader) == common.BearerPrefix+a.validAccess
		a.mu.Unlock()
		if !ok {
			a.unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "AccessTokenExpired"})
			return
		}
		switch r.URL.Path {
		case common.PathMe:
			writeJSON(w, http.StatusOK, map[string]string{"id": "u-1", "email": "ada@example.com", "role": "Customer"})
			return
		case common.PathLogoutAll:
			writeJSON(w, http.StatusOK, map[string]int{"revoked": 2})
			return
		case common.PathChangePassword:
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["currentPassword"] != "correct horse" {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": "ValidationError", "fields": map[string]string{"currentPassword": "incorrect"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
			return
		}
		payload, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok:" + strings.TrimSpace(string(payload))))
	}
}
