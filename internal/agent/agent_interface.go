package agent

import (
	"context"
	"iter"

	"github.com/ashureev/designdrill/internal/domain"
)

// Processor defines the interface for AI review and chat.
// This interface is implemented by the heuristic reviewer.
type Processor interface {
	// Check returns non-final feedback on a diagram.
	Check(ctx context.Context, in Input) (domain.CheckFeedback, error)

	// Score evaluates a diagram for final submission.
	Score(ctx context.Context, in Input) (domain.SubmissionResult, error)

	// Chat returns the reply to a user message as text chunks.
	Chat(ctx context.Context, req ChatRequest) iter.Seq2[string, error]

	// Close releases resources
	Close()
}

// Ensure Heuristic implements Processor.
var _ Processor = (*Heuristic)(nil)
