// Package worker runs background maintenance for the development backend.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/store"
)

// PauseCallback is called after the idle worker pauses a session.
type PauseCallback func(sess *domain.Session)

// StartIdleWorker runs a background goroutine that periodically pauses
// active sessions that have not autosaved within ttl.
func StartIdleWorker(ctx context.Context, repo store.Repository, ttl, interval time.Duration, onPause PauseCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				pauseIdleSessions(ctx, repo, ttl, onPause)
			case <-ctx.Done():
				slog.Info("Idle worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// pauseIdleSessions returns how many sessions it paused.
func pauseIdleSessions(ctx context.Context, repo store.Repository, ttl time.Duration, onPause PauseCallback) int {
	idle, err := repo.IdleSessions(ctx, ttl)
	if err != nil {
		slog.Error("Idle worker failed to get idle sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("Idle worker found idle sessions", "count", len(idle))

	paused := 0
	for _, sess := range idle {
		sess.Status = domain.SessionPaused
		sess.UpdatedAt = time.Now().UTC()
		if err := repo.UpdateSession(ctx, sess); err != nil {
			// Context canceled is not fatal; the next sweep picks it up.
			if ctx.Err() != nil {
				slog.Debug("Idle worker: context canceled during pause, sweep incomplete",
					"session_id", sess.ID,
					"error", err)
				return paused
			}
			slog.Warn("Idle worker failed to pause session",
				"error", err,
				"session_id", sess.ID,
				"user_id", sess.UserID)
			continue
		}
		paused++
		if onPause != nil {
			onPause(sess)
		}
	}

	slog.Info("Idle worker sweep completed", "paused", paused)
	return paused
}
