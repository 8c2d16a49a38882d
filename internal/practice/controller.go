// Package practice runs one practice session: it autosaves the diagram when
// it changes, serves cached check feedback for an unchanged diagram, submits
// for a final score, and streams AI chat replies into a transcript.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/fingerprint"
	"github.com/ashureev/designdrill/internal/surface"
	"github.com/google/uuid"
)

// DefaultAutosaveInterval is used when Options.AutosaveInterval is zero.
const DefaultAutosaveInterval = 10 * time.Second

// API is the backend surface the controller needs. *apiclient.Client
// satisfies it.
type API interface {
	CreateSession(ctx context.Context, problemID string, diagram domain.Diagram) (*domain.Session, error)
	Autosave(ctx context.Context, sessionID string, diagram domain.Diagram, timeSpent int) (*domain.Session, error)
	Pause(ctx context.Context, sessionID string, timeSpent int) (*domain.Session, error)
	Abandon(ctx context.Context, sessionID string) error
	Check(ctx context.Context, sessionID string) (domain.CheckFeedback, error)
	Submit(ctx context.Context, sessionID string) (domain.SubmissionResult, error)
	OpenChat(ctx context.Context, sessionID, message string, diagram domain.Diagram) (io.ReadCloser, error)
}

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options tunes a Controller.
type Options struct {
	AutosaveInterval time.Duration
	Now              func() time.Time
}

// SaveStatus reports the autosave state.
type SaveStatus struct {
	LastSavedFingerprint string
	LastSavedAt          time.Time
	// Unsaved is true when the current scene differs from the last save.
	Unsaved   bool
	LastError error
}

// Controller coordinates a practice session between a diagram surface and
// the backend. Its methods are safe for concurrent use.
type Controller struct {
	api     API
	surface surface.Surface
	logger  *slog.Logger
	opts    Options

	// saveMu serializes saves; ticks skip instead of waiting.
	saveMu sync.Mutex

	mu          sync.Mutex
	state       State
	opening     bool
	session     domain.Session
	baseElapsed int
	openedAt    time.Time
	stop        chan struct{}

	savedFP     string
	hasSaved    bool
	lastSavedAt time.Time
	lastSaveErr error

	checkFP    string
	checkCache *domain.CheckFeedback
	checking   bool
	submitting bool

	transcript []domain.ChatMessage
	typing     bool
	onChat     func(domain.ChatMessage)
}

// New creates an idle controller.
func New(api API, surf surface.Surface, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{api: api, surface: surf, logger: logger, opts: opts}
}

// Open creates or resumes the session for problemID. A resumed, non-empty
// diagram is pushed into the surface and counts as already saved.
func (c *Controller) Open(ctx context.Context, problemID string) (*domain.Session, error) {
	c.mu.Lock()
	if c.state == StateActive || c.opening {
		c.mu.Unlock()
		return nil, ErrSessionOpen
	}
	c.opening = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.opening = false
		c.mu.Unlock()
	}()

	snap := domain.Diagram{}
	if c.surface.Ready() {
		snap = surface.Snapshot(c.surface)
	}
	s, err := c.api.CreateSession(ctx, problemID, snap)
	if err != nil {
		return nil, fmt.Errorf("open session for problem %s: %w", problemID, err)
	}

	if !s.DiagramData.IsEmpty() {
		c.surface.UpdateScene(s.DiagramData)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateActive
	c.session = *s
	c.baseElapsed = s.TimeSpent
	c.openedAt = c.opts.Now()
	c.stop = make(chan struct{})
	c.savedFP = fingerprint.Of(s.DiagramData.Elements)
	c.hasSaved = true
	c.lastSavedAt = s.LastSavedAt
	c.lastSaveErr = nil
	c.checkFP, c.checkCache = "", nil
	c.transcript = c.transcript[:0]
	for _, m := range s.ChatMessages {
		c.transcript = append(c.transcript, domain.ChatMessage{
			ID:        uuid.NewString(),
			Role:      storedRole(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	c.logger.Info("Practice session opened",
		"session_id", s.ID,
		"problem_id", problemID,
		"status", s.Status,
		"time_spent", s.TimeSpent,
		"resumed_elements", len(s.DiagramData.Elements))
	return s, nil
}

// Run autosaves on a ticker until ctx is done or the session leaves Active.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	stop := c.stop
	c.mu.Unlock()

	ticker := time.NewTicker(c.opts.AutosaveInterval)
	defer ticker.Stop()

	c.logger.Debug("Autosave loop started", "interval", c.opts.AutosaveInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			c.logger.Debug("Autosave loop stopped")
			return nil
		case <-ticker.C:
			c.AutosaveTick(ctx)
		}
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current session record.
func (c *Controller) Session() (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.state == StateActive
}

// Elapsed returns seconds spent on the session, including time from earlier
// visits.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Controller) elapsedLocked() int {
	if c.openedAt.IsZero() {
		return c.baseElapsed
	}
	return c.baseElapsed + int(c.opts.Now().Sub(c.openedAt).Seconds())
}

// Pause saves pending changes, records the session as paused on the backend
// and stops autosaving. On failure the session stays Active so Pause can be
// retried.
func (c *Controller) Pause(ctx context.Context) error {
	// Holding saveMu makes ticks skip while the backend call is in flight.
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if c.surface.Ready() {
		if _, _, err := c.saveLocked(ctx, false); err != nil && !errors.Is(err, ErrNoSession) {
			c.logger.Warn("Final save before pause failed", "error", err)
		}
	}
	id, err := c.activeID()
	if err != nil {
		return err
	}
	elapsed := c.Elapsed()

	if _, err := c.api.Pause(ctx, id, elapsed); err != nil {
		return fmt.Errorf("pause session: %w", err)
	}
	c.leave()
	c.setStatus(domain.SessionPaused)
	c.logger.Info("Practice session paused", "session_id", id, "time_spent", elapsed)
	return nil
}

// Abandon abandons the session on the backend and stops autosaving so the
// next Open starts from a blank diagram. On failure the session stays Active.
func (c *Controller) Abandon(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	id, err := c.activeID()
	if err != nil {
		return err
	}
	if err := c.api.Abandon(ctx, id); err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}
	c.leave()
	c.setStatus(domain.SessionAbandoned)
	c.logger.Info("Practice session abandoned", "session_id", id)
	return nil
}

// Close leaves Active and stops the autosave loop. It is idempotent.
func (c *Controller) Close() {
	c.leave()
}

// leave moves Active to Closed and returns the session id and elapsed time.
func (c *Controller) leave() (string, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return "", 0, false
	}
	c.state = StateClosed
	close(c.stop)
	return c.session.ID, c.elapsedLocked(), true
}

func (c *Controller) setStatus(status domain.SessionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Status = status
}

func (c *Controller) activeID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return "", ErrNoSession
	}
	return c.session.ID, nil
}
