package agent

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
)

// Service provides AI review and chat on top of a Processor.
type Service struct {
	processor Processor
}

// NewServiceWithProcessor creates a new agent service with a custom processor.
func NewServiceWithProcessor(processor Processor) (*Service, error) {
	return &Service{
		processor: processor,
	}, nil
}

// Check reviews a diagram and stamps the result with the review time.
func (s *Service) Check(ctx context.Context, in Input) (domain.CheckFeedback, error) {
	start := time.Now()
	fb, err := s.processor.Check(ctx, in)
	if err != nil {
		return domain.CheckFeedback{}, err
	}
	fb.Timestamp = time.Now().UTC()
	slog.Debug("Diagram checked",
		"implemented", len(fb.Implemented),
		"missing", len(fb.Missing),
		"duration", time.Since(start))
	return fb, nil
}

// Score evaluates a diagram for submission.
func (s *Service) Score(ctx context.Context, in Input) (domain.SubmissionResult, error) {
	res, err := s.processor.Score(ctx, in)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	slog.Debug("Diagram scored", "score", res.Score, "max_score", res.MaxScore)
	return res, nil
}

// Chat processes a user message and returns response chunks.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	return s.processor.Chat(ctx, req)
}

// Close releases resources.
func (s *Service) Close() {
	if s.processor != nil {
		s.processor.Close()
	}
}
