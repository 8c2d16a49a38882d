package practice

import (
	"context"
	"fmt"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/fingerprint"
)

// Check returns AI feedback for the current diagram. An unchanged diagram is
// answered from the cache with Cached set. Otherwise the diagram is saved and
// the backend is asked; on failure the returned feedback carries the error in
// Missing so it can be shown as-is.
func (c *Controller) Check(ctx context.Context) (domain.CheckFeedback, error) {
	id, err := c.activeID()
	if err != nil {
		return domain.CheckFeedback{}, err
	}
	if !c.surface.Ready() {
		return domain.CheckFeedback{}, ErrSurfaceNotReady
	}
	fp := fingerprint.Of(c.surface.SceneElements())

	c.mu.Lock()
	if c.checking {
		c.mu.Unlock()
		return domain.CheckFeedback{}, ErrBusy
	}
	if c.checkCache != nil && c.checkFP == fp {
		fb := c.checkCache.Clone()
		fb.Cached = true
		c.mu.Unlock()
		c.logger.Debug("Check served from cache", "session_id", id, "fingerprint", fp)
		return fb, nil
	}
	c.checking = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.checking = false
		c.mu.Unlock()
	}()

	savedFP, err := c.forceSave(ctx)
	if err != nil {
		return c.checkFailed(id, fmt.Errorf("save diagram: %w", err))
	}
	fb, err := c.api.Check(ctx, id)
	if err != nil {
		return c.checkFailed(id, err)
	}

	cached := fb.Clone()
	c.mu.Lock()
	c.checkFP = savedFP
	c.checkCache = &cached
	c.mu.Unlock()

	c.logger.Info("Check feedback received",
		"session_id", id,
		"fingerprint", savedFP,
		"implemented", len(fb.Implemented),
		"missing", len(fb.Missing))
	return fb, nil
}

func (c *Controller) checkFailed(sessionID string, err error) (domain.CheckFeedback, error) {
	c.logger.Error("Check failed", "session_id", sessionID, "error", err)
	return domain.CheckFeedback{
		Implemented: []string{},
		Missing:     []string{"Failed to get AI feedback: " + err.Error()},
		NextSteps:   []string{},
		Timestamp:   c.opts.Now(),
	}, fmt.Errorf("check: %w", err)
}
