package practice

import (
	"context"

	"github.com/ashureev/designdrill/internal/fingerprint"
	"github.com/ashureev/designdrill/internal/surface"
)

// AutosaveTick saves the diagram if it changed since the last successful
// save. A tick that finds a save in flight is skipped. Failures are logged
// and leave the diagram unsaved so the next tick retries.
func (c *Controller) AutosaveTick(ctx context.Context) bool {
	if !c.saveMu.TryLock() {
		c.logger.Debug("Autosave skipped, save already in flight")
		return false
	}
	defer c.saveMu.Unlock()

	if !c.surface.Ready() {
		c.logger.Debug("Autosave skipped, surface not ready")
		return false
	}
	saved, _, err := c.saveLocked(ctx, false)
	if err != nil {
		c.logger.Warn("Autosave failed", "error", err)
		return false
	}
	return saved
}

// forceSave saves regardless of the fingerprint, waiting for any in-flight
// save. It returns the fingerprint of the saved elements.
func (c *Controller) forceSave(ctx context.Context) (string, error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	_, fp, err := c.saveLocked(ctx, true)
	return fp, err
}

// saveLocked must be called with saveMu held.
func (c *Controller) saveLocked(ctx context.Context, force bool) (bool, string, error) {
	id, err := c.activeID()
	if err != nil {
		return false, "", err
	}

	snap := surface.Snapshot(c.surface)
	fp := fingerprint.Of(snap.Elements)

	c.mu.Lock()
	unchanged := c.hasSaved && c.savedFP == fp
	elapsed := c.elapsedLocked()
	c.mu.Unlock()
	if unchanged && !force {
		return false, fp, nil
	}

	_, err = c.api.Autosave(ctx, id, snap, elapsed)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastSaveErr = err
		return false, fp, err
	}
	c.savedFP = fp
	c.hasSaved = true
	c.lastSavedAt = c.opts.Now()
	c.lastSaveErr = nil
	c.logger.Debug("Diagram saved", "session_id", id, "fingerprint", fp, "elements", len(snap.Elements), "forced", force)
	return true, fp, nil
}

// Status reports whether the current scene matches the last save.
func (c *Controller) Status() SaveStatus {
	fp := fingerprint.Of(c.surface.SceneElements())
	c.mu.Lock()
	defer c.mu.Unlock()
	return SaveStatus{
		LastSavedFingerprint: c.savedFP,
		LastSavedAt:          c.lastSavedAt,
		Unsaved:              !c.hasSaved || c.savedFP != fp,
		LastError:            c.lastSaveErr,
	}
}
