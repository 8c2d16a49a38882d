package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ashureev/designdrill/internal/domain"
)

func sessionPath(sessionID, suffix string) string {
	return "/sessions/" + url.PathEscape(sessionID) + suffix
}

// CreateSession creates a session for problemID, or returns the caller's
// active or paused session for it if one exists.
func (c *Client) CreateSession(ctx context.Context, problemID string, diagram domain.Diagram) (*domain.Session, error) {
	var s domain.Session
	body := domain.CreateSessionRequest{ProblemID: problemID, DiagramData: diagram}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/", nil, body, &s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, nil, &s); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// ActiveSession returns the open session for problemID, or nil if none.
func (c *Client) ActiveSession(ctx context.Context, problemID string) (*domain.Session, error) {
	var s *domain.Session
	err := c.doJSON(ctx, http.MethodGet, "/sessions/problem/"+url.PathEscape(problemID), nil, nil, &s)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return s, nil
}

// Autosave stores the diagram and elapsed seconds.
func (c *Client) Autosave(ctx context.Context, sessionID string, diagram domain.Diagram, timeSpent int) (*domain.Session, error) {
	var s domain.Session
	body := domain.AutosaveRequest{DiagramData: diagram, TimeSpent: timeSpent}
	if err := c.doJSON(ctx, http.MethodPut, sessionPath(sessionID, "/autosave"), nil, body, &s); err != nil {
		return nil, fmt.Errorf("autosave session: %w", err)
	}
	return &s, nil
}

// Pause marks the session paused.
func (c *Client) Pause(ctx context.Context, sessionID string, timeSpent int) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, http.MethodPut, sessionPath(sessionID, "/pause"), nil, domain.PauseRequest{TimeSpent: timeSpent}, &s); err != nil {
		return nil, fmt.Errorf("pause session: %w", err)
	}
	return &s, nil
}

// Resume marks a paused session active again.
func (c *Client) Resume(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, http.MethodPut, sessionPath(sessionID, "/resume"), nil, struct{}{}, &s); err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return &s, nil
}

// Check requests AI feedback on the saved diagram.
func (c *Client) Check(ctx context.Context, sessionID string) (domain.CheckFeedback, error) {
	var out domain.CheckResponse
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/check"), nil, struct{}{}, &out); err != nil {
		return domain.CheckFeedback{}, fmt.Errorf("check session: %w", err)
	}
	return out.Flatten(), nil
}

// Submit requests the final score for the saved diagram.
func (c *Client) Submit(ctx context.Context, sessionID string) (domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/submit"), nil, struct{}{}, &out); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("submit session: %w", err)
	}
	return out, nil
}

// Abandon marks the session abandoned so the next open starts fresh.
func (c *Client) Abandon(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, nil, nil); err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}
	return nil
}

// AddChatMessage appends a message to the session's stored history.
func (c *Client) AddChatMessage(ctx context.Context, sessionID, role, content string) (*domain.Session, error) {
	var s domain.Session
	body := domain.ChatMessageRequest{Role: role, Content: content}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "/chat"), nil, body, &s); err != nil {
		return nil, fmt.Errorf("add chat message: %w", err)
	}
	return &s, nil
}

// MySessions lists the caller's sessions, newest first.
func (c *Client) MySessions(ctx context.Context, skip, limit int) ([]domain.Session, error) {
	var out []domain.Session
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/user/my-sessions", pageQuery(skip, limit, 100), nil, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}
