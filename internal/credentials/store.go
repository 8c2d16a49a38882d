// Package credentials provides storage for the client's auth state.
package credentials

import (
	"context"

	"github.com/ashureev/designdrill/internal/domain"
)

// Credentials is the persisted authentication state.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// Authenticated returns true if an access token is present.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != ""
}

// Store defines the interface for persisting credentials.
type Store interface {
	// Get returns the current credentials. A store with nothing saved
	// returns zero Credentials and a nil error.
	Get(ctx context.Context) (Credentials, error)

	// SetTokens replaces both tokens.
	SetTokens(ctx context.Context, accessToken, refreshToken string) error

	// SetAccessToken replaces the access token and keeps the refresh token.
	SetAccessToken(ctx context.Context, accessToken string) error

	// SetUser caches the user profile.
	SetUser(ctx context.Context, user *domain.User) error

	// Clear removes tokens and the cached profile.
	Clear(ctx context.Context) error
}
