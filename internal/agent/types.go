// Package agent implements the AI practice assistant used by the
// development backend: diagram review, scoring and streamed chat replies.
package agent

import (
	"github.com/ashureev/designdrill/internal/domain"
)

// Input is the material a review is based on.
type Input struct {
	Problem *domain.Problem
	Diagram domain.Diagram
}

// ChatRequest represents a chat request to the agent.
type ChatRequest struct {
	Message   string
	UserID    string
	SessionID string
	Problem   *domain.Problem
	Diagram   domain.Diagram
	History   []domain.StoredChatMessage
}

// problemTitle returns the problem's title or a generic fallback.
func (in Input) problemTitle() string {
	if in.Problem == nil || in.Problem.Title == "" {
		return "System Design"
	}
	return in.Problem.Title
}
