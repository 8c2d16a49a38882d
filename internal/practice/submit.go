package practice

import (
	"context"

	"github.com/ashureev/designdrill/internal/domain"
)

// Submit saves the diagram and requests the final score. On success autosave
// stops and the session is marked submitted.
func (c *Controller) Submit(ctx context.Context) (domain.SubmissionResult, error) {
	id, err := c.activeID()
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if !c.surface.Ready() {
		return domain.SubmissionResult{}, ErrSurfaceNotReady
	}
	if (domain.Diagram{Elements: c.surface.SceneElements()}).IsEmpty() {
		return domain.SubmissionResult{}, ErrEmptyDiagram
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return domain.SubmissionResult{}, ErrBusy
	}
	c.submitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	if _, err := c.forceSave(ctx); err != nil {
		c.logger.Error("Submit failed to save diagram", "session_id", id, "error", err)
		return domain.SubmissionResult{}, newSubmitError(StageSave, err)
	}
	result, err := c.api.Submit(ctx, id)
	if err != nil {
		c.logger.Error("Submit failed", "session_id", id, "error", err)
		return domain.SubmissionResult{}, newSubmitError(StageSubmit, err)
	}

	c.leave()
	c.setStatus(domain.SessionSubmitted)
	c.logger.Info("Diagram submitted",
		"session_id", id,
		"submission_id", result.SubmissionID,
		"score", result.Score,
		"max_score", result.MaxScore)
	return result.Clone(), nil
}
