package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/designdrill/internal/domain"
)

// SignupRequest is the body of POST /users/signup.
type SignupRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Signup creates an account. It does not log in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*domain.User, error) {
	var out struct {
		Message string       `json:"message"`
		User    *domain.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, signupPath, nil, req, &out); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return out.User, nil
}

// Login exchanges email and password for tokens and stores them together
// with the returned profile. The login endpoint takes an OAuth2 password form.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        loginPath,
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		accept:      "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var tokens domain.TokenPair
	if err := decodeResponse(resp, &tokens); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.store.SetTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	if tokens.User != nil {
		if err := c.store.SetUser(ctx, tokens.User); err != nil {
			return nil, fmt.Errorf("store user: %w", err)
		}
	}
	return &tokens, nil
}

// Me fetches the current profile and refreshes the cached copy.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, nil, &user); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := c.store.SetUser(ctx, &user); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	return &user, nil
}

// CurrentUser returns the cached profile without a network call.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !creds.Authenticated() || creds.User == nil {
		return nil, ErrNotAuthenticated
	}
	return creds.User, nil
}

// Logout forgets all stored credentials.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Authenticated reports whether an access token is stored.
func (c *Client) Authenticated(ctx context.Context) bool {
	creds, err := c.store.Get(ctx)
	return err == nil && strings.TrimSpace(creds.AccessToken) != ""
}
