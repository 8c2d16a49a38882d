// Package apiclient is the HTTP client for the practice backend.
//
// Every request except login, signup and refresh carries the stored bearer
// token. A 401 triggers one shared token refresh; concurrent callers wait for
// it and replay their own request once with the new token. When the refresh
// fails the credential store is cleared and the auth-expired hook runs.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/designdrill/internal/credentials"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	loginPath   = "/users/login"
	signupPath  = "/users/signup"
	refreshPath = "/users/refresh"

	// defaultExpirySkew refreshes JWT access tokens this long before exp.
	defaultExpirySkew = 30 * time.Second
)

// Client talks to the practice backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	store         credentials.Store
	logger        *slog.Logger
	onAuthExpired func()
	refreshGroup  singleflight.Group
	expirySkew    time.Duration
	now           func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthExpiredHook registers fn to run after credentials are cleared
// because the session can no longer be refreshed.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) {
		c.onAuthExpired = fn
	}
}

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, store credentials.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		store:      store,
		logger:     slog.Default(),
		expirySkew: defaultExpirySkew,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request is one logical call; the body is kept as bytes so it can be replayed.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	accept      string
}

func newJSONRequest(method, path string, body interface{}) (request, error) {
	req := request{method: method, path: path, accept: "application/json"}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		req.body = data
		req.contentType = "application/json"
	}
	return req, nil
}

// doJSON sends a JSON request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	req, err := newJSONRequest(method, path, body)
	if err != nil {
		return err
	}
	req.query = query

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs req with bearer auth and the refresh-on-401 policy. The
// caller owns the returned body. Non-2xx responses other than a handled 401
// are returned as-is.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	if !requiresAuth(req.path) {
		return c.roundTrip(ctx, req, "")
	}

	creds, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	token := creds.AccessToken

	if token != "" && c.tokenExpiring(token) {
		c.logger.Debug("access token near expiry, refreshing before request", "path", req.path)
		token, err = c.refresh(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.roundTrip(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	c.logger.Debug("request unauthorized, refreshing access token", "method", req.method, "path", req.path)

	newToken, err := c.refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, req, newToken)
}

func (c *Client) roundTrip(ctx context.Context, req request, token string) (*http.Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.accept != "" {
		httpReq.Header.Set("Accept", req.accept)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	return resp, nil
}

// refresh returns a fresh access token. All callers that observe the same
// stale token share a single refresh round trip. If the store already holds a
// different token, another caller refreshed in the meantime and that token is
// returned without a network call.
func (c *Client) refresh(ctx context.Context, staleToken string) (string, error) {
	v, err, shared := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		// The refresh must finish even if the caller that started it gives up,
		// because other waiters depend on its result.
		ctx := context.WithoutCancel(ctx)

		creds, err := c.store.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		if creds.AccessToken != "" && creds.AccessToken != staleToken {
			return creds.AccessToken, nil
		}
		if creds.RefreshToken == "" {
			if staleToken != "" && creds.AccessToken == "" {
				// An earlier refresh for this token already expired the login.
				return nil, ErrAuthExpired
			}
			c.expire(ctx, errors.New("no refresh token"))
			return nil, ErrAuthExpired
		}

		token, err := c.requestRefresh(ctx, creds.RefreshToken)
		if err != nil {
			c.expire(ctx, err)
			return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
		if err := c.store.SetAccessToken(ctx, token); err != nil {
			return nil, fmt.Errorf("store refreshed token: %w", err)
		}
		c.logger.Info("access token refreshed")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	return v.(string), nil
}

func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (string, error) {
	req, err := newJSONRequest(http.MethodPost, refreshPath, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", err
	}
	resp, err := c.roundTrip(ctx, req, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out domain.AccessToken
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("refresh response missing access_token")
	}
	return out.AccessToken, nil
}

// expire clears all credentials and runs the auth-expired hook.
func (c *Client) expire(ctx context.Context, cause error) {
	c.logger.Warn("token refresh failed, clearing credentials", "error", cause)
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear credentials", "error", err)
	}
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}

// tokenExpiring reports whether token is a JWT that expires within the skew.
// Opaque tokens are never considered expiring; the server's 401 decides.
func (c *Client) tokenExpiring(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(c.now().Add(c.expirySkew))
}

func requiresAuth(path string) bool {
	switch path {
	case loginPath, signupPath, refreshPath:
		return false
	}
	return true
}
