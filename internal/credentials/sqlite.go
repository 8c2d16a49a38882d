package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file. Each profile owns one
// row, so several accounts can share a database.
type SQLiteStore struct {
	db      *sql.DB
	profile string
}

// NewSQLite opens (or creates) the credentials database at dbPath.
func NewSQLite(dbPath, profile string) (*SQLiteStore, error) {
	if profile == "" {
		profile = "default"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credentials database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credentials database: %w", err)
	}

	s := &SQLiteStore{db: db, profile: profile}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		profile TEXT PRIMARY KEY,
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		user_json TEXT,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get returns the credentials for the store's profile.
func (s *SQLiteStore) Get(ctx context.Context) (Credentials, error) {
	query := `SELECT access_token, refresh_token, user_json FROM credentials WHERE profile = ?`

	var creds Credentials
	var userJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, s.profile).Scan(&creds.AccessToken, &creds.RefreshToken, &userJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("scan credentials row: %w", err)
	}

	if userJSON.Valid && userJSON.String != "" {
		var user domain.User
		if err := json.Unmarshal([]byte(userJSON.String), &user); err != nil {
			// A corrupt profile cache is not fatal; tokens are still usable.
			slog.Warn("discarding unreadable cached user", "profile", s.profile, "error", err)
		} else {
			creds.User = &user
		}
	}
	return creds, nil
}

// SetTokens replaces both tokens.
func (s *SQLiteStore) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	query := `
	INSERT INTO credentials (profile, access_token, refresh_token, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(profile) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		updated_at = excluded.updated_at`
	return s.execWithRetry(ctx, "set tokens", query, s.profile, accessToken, refreshToken, time.Now().Unix())
}

// SetAccessToken replaces the access token, keeping the refresh token.
func (s *SQLiteStore) SetAccessToken(ctx context.Context, accessToken string) error {
	query := `
	INSERT INTO credentials (profile, access_token, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(profile) DO UPDATE SET
		access_token = excluded.access_token,
		updated_at = excluded.updated_at`
	return s.execWithRetry(ctx, "set access token", query, s.profile, accessToken, time.Now().Unix())
}

// SetUser caches the user profile.
func (s *SQLiteStore) SetUser(ctx context.Context, user *domain.User) error {
	var userJSON interface{}
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		userJSON = string(data)
	}
	query := `
	INSERT INTO credentials (profile, user_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(profile) DO UPDATE SET
		user_json = excluded.user_json,
		updated_at = excluded.updated_at`
	return s.execWithRetry(ctx, "set user", query, s.profile, userJSON, time.Now().Unix())
}

// Clear deletes the profile row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.execWithRetry(ctx, "clear credentials", `DELETE FROM credentials WHERE profile = ?`, s.profile)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close credentials database: %w", err)
	}
	return nil
}

// execWithRetry runs a write, retrying while the database is locked.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op, query string, args ...interface{}) error {
	return shared.Retry(ctx, op, shared.Backoff{Attempts: 3, BaseDelay: 50 * time.Millisecond}, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

var _ Store = (*SQLiteStore)(nil)
