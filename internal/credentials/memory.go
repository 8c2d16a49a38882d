package credentials

import (
	"context"
	"sync"

	"github.com/ashureev/designdrill/internal/domain"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns a copy of the stored credentials.
func (m *Memory) Get(_ context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.creds
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out, nil
}

// SetTokens replaces both tokens.
func (m *Memory) SetTokens(_ context.Context, accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds.AccessToken = accessToken
	m.creds.RefreshToken = refreshToken
	return nil
}

// SetAccessToken replaces the access token.
func (m *Memory) SetAccessToken(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds.AccessToken = accessToken
	return nil
}

// SetUser caches the user profile.
func (m *Memory) SetUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user == nil {
		m.creds.User = nil
		return nil
	}
	u := *user
	m.creds.User = &u
	return nil
}

// Clear removes everything.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	return nil
}

var _ Store = (*Memory)(nil)
