package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a practice session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionSubmitted SessionStatus = "submitted"
	SessionAbandoned SessionStatus = "abandoned"
)

// Session is one in-progress attempt at a problem.
type Session struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	ProblemID    string              `json:"problem_id"`
	DiagramData  Diagram             `json:"diagram_data"`
	DiagramHash  string              `json:"diagram_hash,omitempty"`
	TimeSpent    int                 `json:"time_spent"`
	Status       SessionStatus       `json:"status"`
	ChatMessages []StoredChatMessage `json:"chat_messages"`
	LastSavedAt  time.Time           `json:"last_saved_at"`
	StartedAt    time.Time           `json:"started_at"`
	EndedAt      *time.Time          `json:"ended_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// IsOpen returns true if the session can still be resumed.
func (s *Session) IsOpen() bool {
	return s.Status == SessionActive || s.Status == SessionPaused
}

// StoredChatMessage is a chat entry persisted on the session.
type StoredChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateSessionRequest is the body of POST /sessions/.
type CreateSessionRequest struct {
	ProblemID   string  `json:"problem_id"`
	DiagramData Diagram `json:"diagram_data"`
}

// AutosaveRequest is the body of PUT /sessions/{id}/autosave.
type AutosaveRequest struct {
	DiagramData Diagram `json:"diagram_data"`
	TimeSpent   int     `json:"time_spent"`
}

// PauseRequest is the body of PUT /sessions/{id}/pause.
type PauseRequest struct {
	TimeSpent int `json:"time_spent"`
}

// ChatMessageRequest is the body of POST /sessions/{id}/chat.
type ChatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIChatRequest is the body of POST /sessions/{id}/ai-chat.
type AIChatRequest struct {
	Message     string  `json:"message"`
	DiagramData Diagram `json:"diagram_data"`
}
