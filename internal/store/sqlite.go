package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository. Use ":memory:" for a
// throwaway database.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// Open database with WAL mode for better concurrency.
		dsn = dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS problems (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		categories_json TEXT NOT NULL,
		estimated_time TEXT NOT NULL,
		requirements_json TEXT NOT NULL,
		constraints_json TEXT NOT NULL,
		hints_json TEXT NOT NULL,
		created_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		diagram_json TEXT NOT NULL,
		diagram_hash TEXT NOT NULL,
		time_spent INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		chat_json TEXT NOT NULL,
		last_saved_at INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(user_id, problem_id) WHERE status IN ('active', 'paused');
	CREATE INDEX IF NOT EXISTS idx_sessions_last_saved ON sessions(last_saved_at) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		session_id TEXT,
		diagram_json TEXT NOT NULL,
		time_spent INTEGER NOT NULL DEFAULT 0,
		result_json TEXT NOT NULL,
		submitted_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id, submitted_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execWithRetry runs a write, retrying SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := shared.Retry(ctx, op, shared.Backoff{Attempts: 3, BaseDelay: 100 * time.Millisecond}, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// CreateUser stores a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User, passwordHash string) error {
	query := `
	INSERT INTO users (id, email, first_name, last_name, password_hash, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.execWithRetry(ctx, "create user", query,
		user.ID, user.Email, user.FirstName, user.LastName, passwordHash, user.CreatedAt.UnixMilli())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrEmailTaken
	}
	return err
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, created_at FROM users WHERE id = ?`, userID)

	var user domain.User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// GetUserByEmail retrieves a user and its password hash by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash, created_at FROM users WHERE email = ?`, email)

	var user domain.User
	var hash string
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &hash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, hash, nil
}

// UpsertProblem creates or replaces a problem.
func (s *SQLiteStore) UpsertProblem(ctx context.Context, p *domain.Problem) error {
	query := `
	INSERT INTO problems (
		id, title, description, difficulty, categories_json, estimated_time,
		requirements_json, constraints_json, hints_json, created_by, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		difficulty = excluded.difficulty,
		categories_json = excluded.categories_json,
		estimated_time = excluded.estimated_time,
		requirements_json = excluded.requirements_json,
		constraints_json = excluded.constraints_json,
		hints_json = excluded.hints_json,
		updated_at = excluded.updated_at`

	var createdBy any
	if p.CreatedBy != "" {
		createdBy = p.CreatedBy
	}
	enc, err := encodeJSON("problem "+p.ID, p.Categories, p.Requirements, p.Constraints, p.Hints)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx, "upsert problem", query,
		p.ID, p.Title, p.Description, p.Difficulty, enc[0], p.EstimatedTime,
		enc[1], enc[2], enc[3], createdBy,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	return err
}

const problemColumns = `id, title, description, difficulty, categories_json, estimated_time,
	requirements_json, constraints_json, hints_json, created_by, created_at, updated_at`

// GetProblem retrieves a problem by ID.
func (s *SQLiteStore) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = ?`, problemID)
	p, err := scanProblem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProblems returns a page of problems ordered by creation time.
func (s *SQLiteStore) ListProblems(ctx context.Context, q ProblemQuery) ([]domain.Problem, int, error) {
	var where []string
	var args []any
	if q.Difficulty != "" {
		where = append(where, `difficulty = ? COLLATE NOCASE`)
		args = append(args, q.Difficulty)
	}
	if q.Category != "" {
		where = append(where, `categories_json LIKE ?`)
		args = append(args, `%"`+q.Category+`"%`)
	}
	if q.Text != "" {
		where = append(where, `(title LIKE ? OR description LIKE ?)`)
		like := "%" + q.Text + "%"
		args = append(args, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM problems`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count problems: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+problemColumns+` FROM problems`+clause+` ORDER BY created_at, id LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query problems: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close problem rows", "error", closeErr)
		}
	}()

	problems := []domain.Problem{}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, 0, err
		}
		problems = append(problems, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate problems: %w", err)
	}
	return problems, total, nil
}

// CreateSession stores a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (
		id, user_id, problem_id, diagram_json, diagram_hash, time_spent, status,
		chat_json, last_saved_at, started_at, ended_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	enc, err := encodeJSON("session "+sess.ID, sess.DiagramData, chatOrEmpty(sess.ChatMessages))
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx, "create session", query,
		sess.ID, sess.UserID, sess.ProblemID, enc[0], sess.DiagramHash,
		sess.TimeSpent, string(sess.Status), enc[1],
		sess.LastSavedAt.UnixMilli(), sess.StartedAt.UnixMilli(), nullableTime(sess.EndedAt),
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli())
	return err
}

const sessionColumns = `id, user_id, problem_id, diagram_json, diagram_hash, time_spent, status,
	chat_json, last_saved_at, started_at, ended_at, created_at, updated_at`

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// OpenSession returns the newest active or paused session for the pair.
func (s *SQLiteStore) OpenSession(ctx context.Context, userID, problemID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND problem_id = ? AND status IN ('active', 'paused')
		ORDER BY created_at DESC LIMIT 1`, userID, problemID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// UpdateSession overwrites the mutable fields of a session. Chat history is
// only changed through AppendChatMessage.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	query := `
	UPDATE sessions SET
		diagram_json = ?, diagram_hash = ?, time_spent = ?, status = ?,
		last_saved_at = ?, ended_at = ?, updated_at = ?
	WHERE id = ?`

	enc, err := encodeJSON("session "+sess.ID, sess.DiagramData)
	if err != nil {
		return err
	}
	result, err := s.execWithRetry(ctx, "update session", query,
		enc[0], sess.DiagramHash, sess.TimeSpent, string(sess.Status),
		sess.LastSavedAt.UnixMilli(), nullableTime(sess.EndedAt), sess.UpdatedAt.UnixMilli(), sess.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateSession affected 0 rows", "session_id", sess.ID)
		return fmt.Errorf("session not found")
	}
	return nil
}

// AppendChatMessage adds msg to the end of the session's chat history in a
// single statement, so concurrent autosaves cannot drop it.
func (s *SQLiteStore) AppendChatMessage(ctx context.Context, sessionID string, msg domain.StoredChatMessage) error {
	query := `
	UPDATE sessions SET chat_json = json_insert(chat_json, '$[#]', json(?)), updated_at = ?
	WHERE id = ?`

	enc, err := encodeJSON("chat message", msg)
	if err != nil {
		return err
	}
	result, err := s.execWithRetry(ctx, "append chat message", query,
		enc[0], time.Now().UnixMilli(), sessionID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

// ListSessions returns the user's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, skip, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, userID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	sessions := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// IdleSessions returns active sessions whose last save is older than idle.
func (s *SQLiteStore) IdleSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	threshold := time.Now().Add(-idle).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'active' AND last_saved_at < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return sessions, nil
}

// CreateSubmission stores a scored submission.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	query := `
	INSERT INTO submissions (id, user_id, problem_id, session_id, diagram_json, time_spent, result_json, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var sessionID any
	if sub.SessionID != "" {
		sessionID = sub.SessionID
	}
	enc, err := encodeJSON("submission "+sub.ID, sub.DiagramData, sub.Result)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx, "create submission", query,
		sub.ID, sub.UserID, sub.ProblemID, sessionID, enc[0],
		sub.TimeSpent, enc[1], sub.SubmittedAt.UnixMilli())
	return err
}

const submissionColumns = `id, user_id, problem_id, session_id, diagram_json, time_spent, result_json, submitted_at`

// GetSubmission retrieves a submission by ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, submissionID)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// ListSubmissions returns a page of the user's submissions, newest first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, userID string, skip, limit int) ([]domain.Submission, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions WHERE user_id = ?
		ORDER BY submitted_at DESC, rowid DESC LIMIT ? OFFSET ?`, userID, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close submission rows", "error", closeErr)
		}
	}()

	subs := []domain.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProblem(row scanner) (*domain.Problem, error) {
	var p domain.Problem
	var categories, requirements, constraints, hints string
	var createdBy sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Difficulty, &categories, &p.EstimatedTime,
		&requirements, &constraints, &hints, &createdBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan problem row: %w", err)
	}

	lists := []struct {
		raw string
		dst *[]string
	}{
		{categories, &p.Categories},
		{requirements, &p.Requirements},
		{constraints, &p.Constraints},
		{hints, &p.Hints},
	}
	for _, l := range lists {
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return nil, fmt.Errorf("decode problem %s: %w", p.ID, err)
		}
	}
	p.CreatedBy = createdBy.String
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

func scanSession(row scanner) (*domain.Session, error) {
	var sess domain.Session
	var diagramJSON, chatJSON, status string
	var endedAt sql.NullInt64
	var lastSaved, startedAt, createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &sess.UserID, &sess.ProblemID, &diagramJSON, &sess.DiagramHash,
		&sess.TimeSpent, &status, &chatJSON, &lastSaved, &startedAt, &endedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(diagramJSON), &sess.DiagramData); err != nil {
		return nil, fmt.Errorf("decode session %s diagram: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(chatJSON), &sess.ChatMessages); err != nil {
		return nil, fmt.Errorf("decode session %s chat: %w", sess.ID, err)
	}
	sess.Status = domain.SessionStatus(status)
	sess.LastSavedAt = time.UnixMilli(lastSaved)
	sess.StartedAt = time.UnixMilli(startedAt)
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	if endedAt.Valid {
		ts := time.UnixMilli(endedAt.Int64)
		sess.EndedAt = &ts
	}
	return &sess, nil
}

func scanSubmission(row scanner) (*domain.Submission, error) {
	var sub domain.Submission
	var sessionID sql.NullString
	var diagramJSON, resultJSON string
	var submittedAt int64

	err := row.Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sessionID, &diagramJSON,
		&sub.TimeSpent, &resultJSON, &submittedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission row: %w", err)
	}

	if err := json.Unmarshal([]byte(diagramJSON), &sub.DiagramData); err != nil {
		return nil, fmt.Errorf("decode submission %s diagram: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &sub.Result); err != nil {
		return nil, fmt.Errorf("decode submission %s result: %w", sub.ID, err)
	}
	sub.SessionID = sessionID.String
	sub.SubmittedAt = time.UnixMilli(submittedAt)
	return &sub, nil
}

// encodeJSON encodes each value for a JSON column.
func encodeJSON(what string, values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", what, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func chatOrEmpty(msgs []domain.StoredChatMessage) []domain.StoredChatMessage {
	if msgs == nil {
		return []domain.StoredChatMessage{}
	}
	return msgs
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

var _ Repository = (*SQLiteStore)(nil)
