package agent

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/store"
	"github.com/ashureev/designdrill/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize bounds the chat body, which carries the whole diagram.
const defaultMaxRequestBodySize = 4 << 20 // 4MB

// StreamObserver is notified when a chat stream starts.
type StreamObserver interface {
	ChatStreamStarted()
}

// Handler serves the streamed AI chat endpoint.
type Handler struct {
	agent       *Service
	repo        store.Repository
	rateLimiter *RateLimiter
	observer    StreamObserver
}

// RateLimiter implements a per-user rate limiter.
// The key is userID only, so clients cannot bypass throttling by opening
// more practice sessions.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// startEviction runs a background goroutine that periodically removes expired
// keys from the requests map, preventing unbounded memory growth.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
			}
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// NewHandler creates a chat handler. observer may be nil.
func NewHandler(agentService *Service, repo store.Repository, limit int, window time.Duration, observer StreamObserver) *Handler {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Handler{
		agent:       agentService,
		repo:        repo,
		rateLimiter: NewRateLimiter(limit, window),
		observer:    observer,
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// HandleChat handles POST /sessions/{id}/ai-chat. The reply is streamed as
// SSE data records: JSON-quoted chunks, then [DONE] or an ERROR: record.
//
//nolint:gocyclo // Validation and streaming branches are kept inline to preserve request flow.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	sessionID := chi.URLParam(r, "id")

	if !h.rateLimiter.Allow(userID) {
		writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	var req domain.AIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if !errors.Is(err, io.EOF) {
			writeDetail(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeDetail(w, http.StatusBadRequest, "Message is required")
		return
	}

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session for chat", "session_id", sessionID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if sess == nil {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if sess.UserID != userID {
		writeDetail(w, http.StatusForbidden, "Not authorized to access this session")
		return
	}

	problem, err := h.repo.GetProblem(r.Context(), sess.ProblemID)
	if err != nil {
		slog.Warn("Failed to load problem for chat", "problem_id", sess.ProblemID, "error", err)
	}

	diagram := req.DiagramData
	if diagram.Elements == nil {
		diagram = sess.DiagramData
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Agent chat request",
		"user_id", userID,
		"session_id", sessionID,
		"request_id", reqID,
		"message_length", len(message),
	)

	// Stream response via SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	if h.observer != nil {
		h.observer.ChatStreamStarted()
	}

	chatReq := ChatRequest{
		Message:   message,
		UserID:    userID,
		SessionID: sessionID,
		Problem:   problem,
		Diagram:   diagram,
		History:   sess.ChatMessages,
	}

	var assistantContent strings.Builder
	streamChunks := 0
	for chunk, err := range h.agent.Chat(r.Context(), chatReq) {
		if err != nil {
			slog.Error("Agent stream failed", "session_id", sessionID, "chunks", streamChunks, "error", err)
			if writeErr := writeSSE(w, stream.EncodeError(err.Error())); writeErr != nil {
				slog.Warn("failed to write SSE error record", "error", writeErr)
				return
			}
			flusher.Flush()
			return
		}
		if chunk == "" {
			continue
		}
		streamChunks++
		assistantContent.WriteString(chunk)
		if err := writeSSE(w, stream.EncodeChunk(chunk)); err != nil {
			slog.Warn("failed to write SSE chunk", "session_id", sessionID, "error", err)
			return
		}
		flusher.Flush()
	}
	if err := writeSSE(w, stream.EncodeDone()); err != nil {
		slog.Warn("failed to write SSE done marker", "session_id", sessionID, "error", err)
		return
	}
	flusher.Flush()

	h.recordTurn(r, sessionID, message, assistantContent.String())
	slog.Info("Agent chat completed", "session_id", sessionID, "chunks", streamChunks)
}

// recordTurn appends the completed exchange to the session history.
func (h *Handler) recordTurn(r *http.Request, sessionID, userMsg, reply string) {
	now := time.Now().UTC()
	for _, msg := range []domain.StoredChatMessage{
		{Role: string(domain.RoleUser), Content: userMsg, Timestamp: now},
		{Role: string(domain.RoleAI), Content: reply, Timestamp: now},
	} {
		if err := h.repo.AppendChatMessage(r.Context(), sessionID, msg); err != nil {
			slog.Warn("failed to record chat turn", "session_id", sessionID, "error", err)
			return
		}
	}
}

// RegisterRoutes registers agent routes on the /sessions router (requires authentication).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/ai-chat", h.HandleChat)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	if h.agent != nil {
		h.agent.Close()
	}
}

func writeSSE(w io.Writer, record string) error {
	_, err := io.WriteString(w, record)
	return err
}
