package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"golang.org/x/sync/singleflight"
)

// ErrReauthenticate means the session is over and the user has to sign in
// again. Refresh failures wrap it together with the refresh token kind
// (common.ErrTokenInvalid, ErrTokenExpired or ErrTokenReused) or the
// transport error.
var ErrReauthenticate = errors.New(common.ReauthenticateMessage)

const defaultRefreshTimeout = 10 * time.Second

type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Store          CredentialStore
	RefreshTimeout time.Duration
	Logger         logging.Logger
	Now            func() time.Time
}

// Client is the only writer of the session's credentials. It is safe for
// concurrent use.
type Client struct {
	baseURL        string
	http           *http.Client
	store          CredentialStore
	refreshTimeout time.Duration
	logger         logging.Logger
	now            func() time.Time

	mu         sync.Mutex
	creds      *Credentials
	refreshing bool

	flight singleflight.Group
}

// New builds a Client and restores credentials saved by a previous run.
func New(ctx context.Context, o Options) (*Client, error) {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = defaultRefreshTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	c := &Client{
		baseURL:        strings.TrimRight(o.BaseURL, "/"),
		http:           o.HTTPClient,
		store:          o.Store,
		refreshTimeout: o.RefreshTimeout,
		logger:         o.Logger.With("module", "session"),
		now:            o.Now,
	}

	creds, err := o.Store.Load(ctx)
	switch {
	case err == nil:
		c.creds = creds
	case !isNotFound(err):
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.refreshing:
		return Refreshing
	case c.creds == nil:
		return Unauthenticated
	case !c.creds.ExpiresAt.IsZero() && !c.now().Before(c.creds.ExpiresAt):
		return Expired
	default:
		return Authenticated
	}
}

// Credentials returns a copy of the current pair.
func (c *Client) Credentials() (Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return Credentials{}, false
	}
	return *c.creds, true
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.AccessToken
}

func (c *Client) setCredentials(ctx context.Context, creds Credentials) {
	c.mu.Lock()
	c.creds = &creds
	c.mu.Unlock()

	if err := c.store.Save(ctx, creds); err != nil {
		c.logger.Warn(ctx, "failed to persist credentials", "error", err)
	}
}

func (c *Client) clear(ctx context.Context) {
	c.mu.Lock()
	c.creds = nil
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn(ctx, "failed to clear stored credentials", "error", err)
	}
}

// refresh returns an access token newer than stale. Callers that observed a
// 401 for the same credential generation share one rotation; a caller whose
// generation was already replaced gets the current token without a network
// call. ctx only bounds the wait.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.creds == nil {
		c.mu.Unlock()
		return "", ErrReauthenticate
	}
	if c.creds.AccessToken != stale {
		access := c.creds.AccessToken
		c.mu.Unlock()
		return access, nil
	}
	generation := c.creds.RefreshToken
	c.mu.Unlock()

	ch := c.flight.DoChan(generation, func() (any, error) {
		return c.rotate(context.WithoutCancel(ctx), generation)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// rotate performs the single refresh round trip for generation.
func (c *Client) rotate(ctx context.Context, generation string) (string, error) {
	c.mu.Lock()
	switch {
	case c.creds == nil:
		c.mu.Unlock()
		return "", ErrReauthenticate
	case c.creds.RefreshToken != generation:
		access := c.creds.AccessToken
		c.mu.Unlock()
		return access, nil
	}
	c.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	var creds Credentials
	err := c.postJSON(callCtx, common.PathRefreshToken, map[string]string{"refreshToken": generation}, http.StatusOK, &creds)
	if err != nil {
		var cause error = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			cause = common.TokenKindError(apiErr.Code)
		}
		c.logger.Info(ctx, "token refresh failed, signing out", "kind", common.TokenKind(cause), "error", err)
		c.clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrReauthenticate, cause)
	}

	c.setCredentials(ctx, creds)
	c.logger.Debug(ctx, "token refreshed")
	return creds.AccessToken, nil
}

// Do sends req with the current access token. A 401 answer triggers one
// shared refresh and a single replay of req; a 401 on the replay ends the
// session. Request bodies are buffered so they can be sent twice.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access := c.accessToken()
	if access == "" {
		return nil, ErrReauthenticate
	}

	build, err := replayable(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(build(access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	fresh, err := c.refresh(ctx, access)
	if err != nil {
		return nil, err
	}

	resp, err = c.http.Do(build(fresh))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		c.clear(ctx)
		return nil, fmt.Errorf("%w: %w", ErrReauthenticate, common.ErrorUnauthorized)
	}
	return resp, nil
}

// Get issues an authenticated GET for path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func replayable(req *http.Request) (func(access string) *http.Request, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	return func(access string) *http.Request {
		r := req.Clone(req.Context())
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}
		r.Header.Set(common.AuthorizationHeader, common.BearerPrefix+access)
		return r
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
