package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/common"
)

// APIError is a non-success answer from the storefront API.
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status onto the shared sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		return common.ErrAlreadyExists
	case http.StatusTooManyRequests:
		return common.ErrRateLimited
	default:
		return nil
	}
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phoneNumber"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Profile is what /auth/me returns.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

// postJSON sends an unauthenticated JSON POST and decodes a response with
// status want into out.
func (c *Client) postJSON(ctx context.Context, path string, in any, want int, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, want, out)
}

func decodeResponse(resp *http.Response, want int, out any) error {
	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		if resp.StatusCode == http.StatusBadRequest && len(apiErr.Fields) > 0 {
			v := common.NewValidationError()
			for f, msg := range apiErr.Fields {
				v.Add(f, msg)
			}
			return v
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login signs in and stores the new credential pair.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var creds Credentials
	err := c.postJSON(ctx, common.PathLogin, map[string]string{"email": email, "password": password}, http.StatusOK, &creds)
	if err != nil {
		return err
	}
	c.setCredentials(ctx, creds)
	return nil
}

// Register creates an account and signs in with it. Field problems come back
// as *common.ValidationError.
func (c *Client) Register(ctx context.Context, in RegisterRequest) error {
	var creds Credentials
	if err := c.postJSON(ctx, common.PathRegister, in, http.StatusCreated, &creds); err != nil {
		return err
	}
	c.setCredentials(ctx, creds)
	return nil
}

// Logout revokes the refresh token on the server and forgets the session.
// Local state is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	creds, ok := c.Credentials()
	if !ok {
		return nil
	}
	defer c.clear(ctx)

	err := c.postJSON(ctx, common.PathRevokeToken, map[string]string{"refreshToken": creds.RefreshToken}, http.StatusOK, nil)
	if errors.Is(err, common.ErrorUnauthorized) {
		return nil
	}
	return err
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	resp, err := c.Get(ctx, common.PathMe)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p Profile
	if err := decodeResponse(resp, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Post sends in as JSON to path with the session's access token.
func (c *Client) Post(ctx context.Context, path string, in any) (*http.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// ChangePassword replaces the account password. The server signs the
// account out everywhere, so the local session is cleared on success.
func (c *Client) ChangePassword(ctx context.Context, current, next, confirm string) error {
	resp, err := c.Post(ctx, common.PathChangePassword, map[string]string{
		"currentPassword": current,
		"newPassword":     next,
		"confirmPassword": confirm,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
		return err
	}
	c.clear(ctx)
	return nil
}

// LogoutAll revokes every session of the account and clears this one.
func (c *Client) LogoutAll(ctx context.Context) (int64, error) {
	resp, err := c.Post(ctx, common.PathLogoutAll, struct{}{})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Revoked int64 `json:"revoked"`
	}
	if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
		return 0, err
	}
	c.clear(ctx)
	return out.Revoked, nil
}
