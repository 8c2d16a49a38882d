package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/designdrill/internal/agent"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/fingerprint"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ownedSession loads the session named by the {id} URL parameter and checks
// that it belongs to the caller. On failure it writes the response and
// returns nil.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) *domain.Session {
	id := chi.URLParam(r, "id")
	sess, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load session")
		return nil
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "Session not found")
		return nil
	}
	if sess.UserID != identity.UserIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "Not authorized to access this session")
		return nil
	}
	return sess
}

// openSession is ownedSession restricted to active or paused sessions.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) *domain.Session {
	sess := h.ownedSession(w, r)
	if sess == nil {
		return nil
	}
	switch sess.Status {
	case domain.SessionSubmitted:
		Error(w, http.StatusBadRequest, "Session already submitted")
		return nil
	case domain.SessionAbandoned:
		Error(w, http.StatusBadRequest, "Session has been abandoned")
		return nil
	}
	return sess
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, sess *domain.Session) bool {
	sess.UpdatedAt = h.now()
	if err := h.repo.UpdateSession(r.Context(), sess); err != nil {
		slog.Error("Failed to update session", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to update session")
		return false
	}
	return true
}

// CreateSession handles POST /sessions/. An open session for the same
// problem is resumed instead of starting a second one.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ProblemID = strings.TrimSpace(req.ProblemID)
	if req.ProblemID == "" {
		Error(w, http.StatusUnprocessableEntity, "problem_id is required")
		return
	}
	userID := identity.UserIDFromContext(r.Context())

	problem, err := h.repo.GetProblem(r.Context(), req.ProblemID)
	if err != nil {
		slog.Error("Failed to load problem", "problem_id", req.ProblemID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	if problem == nil {
		Error(w, http.StatusNotFound, "Problem not found")
		return
	}

	existing, err := h.repo.OpenSession(r.Context(), userID, req.ProblemID)
	if err != nil {
		slog.Error("Failed to look up open session", "problem_id", req.ProblemID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	if existing != nil {
		if existing.Status == domain.SessionPaused {
			existing.Status = domain.SessionActive
			if !h.saveSession(w, r, existing) {
				return
			}
		}
		slog.Info("Resumed existing session", "session_id", existing.ID, "problem_id", req.ProblemID)
		JSON(w, http.StatusCreated, existing)
		return
	}

	now := h.now()
	sess := &domain.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProblemID:    req.ProblemID,
		DiagramData:  req.DiagramData,
		DiagramHash:  fingerprint.Of(req.DiagramData.Elements),
		Status:       domain.SessionActive,
		ChatMessages: []domain.StoredChatMessage{},
		LastSavedAt:  now,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.repo.CreateSession(r.Context(), sess); err != nil {
		slog.Error("Failed to create session", "problem_id", req.ProblemID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	slog.Info("Session created", "session_id", sess.ID, "problem_id", sess.ProblemID, "user_id", userID)
	JSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if sess := h.ownedSession(w, r); sess != nil {
		JSON(w, http.StatusOK, sess)
	}
}

// SessionForProblem handles GET /sessions/problem/{problem_id}. The body is
// null when the caller has no open session for the problem.
func (h *Handler) SessionForProblem(w http.ResponseWriter, r *http.Request) {
	problemID := chi.URLParam(r, "problemID")
	sess, err := h.repo.OpenSession(r.Context(), identity.UserIDFromContext(r.Context()), problemID)
	if err != nil {
		slog.Error("Failed to look up open session", "problem_id", problemID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Autosave handles PUT /sessions/{id}/autosave. Elapsed time is always
// recorded; the diagram is rewritten only when its fingerprint changed.
func (h *Handler) Autosave(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	var req domain.AutosaveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hash := fingerprint.Of(req.DiagramData.Elements)
	changed := hash != sess.DiagramHash
	if changed {
		sess.DiagramData = req.DiagramData
		sess.DiagramHash = hash
	}
	if req.TimeSpent > 0 {
		sess.TimeSpent = req.TimeSpent
	}
	// A save means someone is working on it again.
	sess.Status = domain.SessionActive
	sess.LastSavedAt = h.now()
	if !h.saveSession(w, r, sess) {
		return
	}
	slog.Debug("Session autosaved", "session_id", sess.ID, "fingerprint", hash, "changed", changed)
	JSON(w, http.StatusOK, sess)
}

// Pause handles PUT /sessions/{id}/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	var req domain.PauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TimeSpent > 0 {
		sess.TimeSpent = req.TimeSpent
	}
	sess.Status = domain.SessionPaused
	if !h.saveSession(w, r, sess) {
		return
	}
	slog.Info("Session paused", "session_id", sess.ID, "time_spent", sess.TimeSpent)
	JSON(w, http.StatusOK, sess)
}

// Resume handles PUT /sessions/{id}/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	sess.Status = domain.SessionActive
	if !h.saveSession(w, r, sess) {
		return
	}
	slog.Info("Session resumed", "session_id", sess.ID)
	JSON(w, http.StatusOK, sess)
}

// AddChatMessage handles POST /sessions/{id}/chat.
func (h *Handler) AddChatMessage(w http.ResponseWriter, r *http.Request) {
	sess := h.ownedSession(w, r)
	if sess == nil {
		return
	}
	var req domain.ChatMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role := domain.ChatRole(req.Role)
	if role != domain.RoleUser && role != domain.RoleAI {
		Error(w, http.StatusUnprocessableEntity, "role must be user or ai")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusUnprocessableEntity, "content is required")
		return
	}
	msg := domain.StoredChatMessage{Role: req.Role, Content: req.Content, Timestamp: h.now()}
	if err := h.repo.AppendChatMessage(r.Context(), sess.ID, msg); err != nil {
		slog.Error("Failed to append chat message", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to save chat message")
		return
	}
	sess.ChatMessages = append(sess.ChatMessages, msg)
	JSON(w, http.StatusOK, sess)
}

// Abandon handles DELETE /sessions/{id}.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	ended := h.now()
	sess.Status = domain.SessionAbandoned
	sess.EndedAt = &ended
	if !h.saveSession(w, r, sess) {
		return
	}
	h.checks.drop(sess.ID)
	slog.Info("Session abandoned", "session_id", sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// MySessions handles GET /sessions/user/my-sessions.
func (h *Handler) MySessions(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	sessions, err := h.repo.ListSessions(r.Context(), userID, skip, limit)
	if err != nil {
		slog.Error("Failed to list sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	JSON(w, http.StatusOK, sessions)
}

// Check handles POST /sessions/{id}/check. Reviews are cached per session
// and diagram fingerprint.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	hash := fingerprint.Of(sess.DiagramData.Elements)

	fb, cached := h.checks.get(sess.ID, hash)
	if cached {
		fb.Cached = true
	} else {
		in, ok := h.agentInput(w, r, sess)
		if !ok {
			return
		}
		var err error
		fb, err = h.agent.Check(r.Context(), in)
		if err != nil {
			slog.Error("Diagram check failed", "session_id", sess.ID, "error", err)
			Error(w, http.StatusInternalServerError, "Failed to check diagram")
			return
		}
		fb.DiagramHash = hash
		h.checks.put(sess.ID, fb)
	}
	slog.Info("Diagram checked", "session_id", sess.ID, "fingerprint", hash, "cached", cached)

	var resp domain.CheckResponse
	resp.Feedback.Implemented = fb.Implemented
	resp.Feedback.Missing = fb.Missing
	resp.Feedback.NextSteps = fb.NextSteps
	resp.DiagramHash = hash
	resp.Cached = fb.Cached
	resp.Timestamp = fb.Timestamp
	JSON(w, http.StatusOK, resp)
}

// Submit handles POST /sessions/{id}/submit. The diagram is scored, stored
// as a submission and the session is closed.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := h.openSession(w, r)
	if sess == nil {
		return
	}
	in, ok := h.agentInput(w, r, sess)
	if !ok {
		return
	}
	result, err := h.agent.Score(r.Context(), in)
	if err != nil {
		slog.Error("Scoring failed", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to score submission")
		return
	}

	now := h.now()
	sub := &domain.Submission{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		ProblemID:   sess.ProblemID,
		SessionID:   sess.ID,
		DiagramData: sess.DiagramData,
		TimeSpent:   sess.TimeSpent,
		SubmittedAt: now,
	}
	result.SubmissionID = sub.ID
	sub.Result = result
	if err := h.repo.CreateSubmission(r.Context(), sub); err != nil {
		slog.Error("Failed to store submission", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to store submission")
		return
	}

	sess.Status = domain.SessionSubmitted
	sess.EndedAt = &now
	if !h.saveSession(w, r, sess) {
		return
	}
	h.checks.drop(sess.ID)
	slog.Info("Session submitted",
		"session_id", sess.ID,
		"submission_id", sub.ID,
		"score", result.Score,
		"max_score", result.MaxScore,
	)
	JSON(w, http.StatusOK, result)
}

func (h *Handler) agentInput(w http.ResponseWriter, r *http.Request, sess *domain.Session) (agent.Input, bool) {
	problem, err := h.repo.GetProblem(r.Context(), sess.ProblemID)
	if err != nil {
		slog.Error("Failed to load problem", "problem_id", sess.ProblemID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load problem")
		return agent.Input{}, false
	}
	return agent.Input{Problem: problem, Diagram: sess.DiagramData}, true
}
