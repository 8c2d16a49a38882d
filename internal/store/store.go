// Package store provides data persistence interfaces and implementations
// for the development backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ProblemQuery filters ListProblems. Empty fields match everything.
type ProblemQuery struct {
	Skip       int
	Limit      int
	Difficulty string
	Category   string
	Text       string
}

// Repository defines the interface for persisting accounts, problems,
// practice sessions and submissions. Lookups return nil, nil when the record
// does not exist.
type Repository interface {
	// CreateUser stores a new account with its bcrypt password hash.
	CreateUser(ctx context.Context, user *domain.User, passwordHash string) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user and its password hash by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, string, error)

	// UpsertProblem creates or replaces a problem.
	UpsertProblem(ctx context.Context, problem *domain.Problem) error

	// GetProblem retrieves a problem by ID.
	GetProblem(ctx context.Context, problemID string) (*domain.Problem, error)

	// ListProblems returns a page of problems and the total match count.
	ListProblems(ctx context.Context, q ProblemQuery) ([]domain.Problem, int, error)

	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// OpenSession returns the user's active or paused session for a problem.
	OpenSession(ctx context.Context, userID, problemID string) (*domain.Session, error)

	// UpdateSession overwrites the mutable fields of a session except its
	// chat history.
	UpdateSession(ctx context.Context, session *domain.Session) error

	// AppendChatMessage adds one message to a session's chat history.
	AppendChatMessage(ctx context.Context, sessionID string, msg domain.StoredChatMessage) error

	// ListSessions returns the user's sessions, newest first.
	ListSessions(ctx context.Context, userID string, skip, limit int) ([]domain.Session, error)

	// IdleSessions returns active sessions not saved within idle.
	IdleSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error)

	// CreateSubmission stores a scored submission.
	CreateSubmission(ctx context.Context, sub *domain.Submission) error

	// GetSubmission retrieves a submission by ID.
	GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error)

	// ListSubmissions returns a page of the user's submissions, newest first,
	// and the user's total submission count.
	ListSubmissions(ctx context.Context, userID string, skip, limit int) ([]domain.Submission, int, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
