// Package api provides HTTP handlers for the practice backend.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/agent"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/store"
)

// maxBodySize bounds JSON request bodies; diagrams can be large.
const maxBodySize = 4 << 20 // 4MB

const (
	defaultPageLimit = 100
	maxPageLimit     = 100
)

// Handler provides common handler utilities.
type Handler struct {
	repo   store.Repository
	issuer *identity.Issuer
	agent  *agent.Service
	now    func() time.Time
	checks *checkCache
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, issuer *identity.Issuer, agentService *agent.Service) *Handler {
	return &Handler{
		repo:   repo,
		issuer: issuer,
		agent:  agentService,
		now:    func() time.Time { return time.Now().UTC() },
		checks: newCheckCache(),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
// It writes the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		case errors.Is(err, io.EOF):
			return true
		default:
			Error(w, http.StatusBadRequest, "Invalid request body")
			return false
		}
	}
	return true
}

// page reads skip and limit query parameters. Invalid values yield a 422
// like the rest of the validation errors.
func page(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	skip, limit = 0, defaultPageLimit
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			Error(w, http.StatusUnprocessableEntity, "skip must be a non-negative integer")
			return 0, 0, false
		}
		skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			Error(w, http.StatusUnprocessableEntity, "limit must be between 1 and 100")
			return 0, 0, false
		}
		limit = n
	}
	return skip, limit, true
}

// checkCache remembers the last review per session, keyed by diagram hash.
type checkCache struct {
	mu      sync.Mutex
	entries map[string]domain.CheckFeedback
}

func newCheckCache() *checkCache {
	return &checkCache{entries: make(map[string]domain.CheckFeedback)}
}

func (c *checkCache) get(sessionID, hash string) (domain.CheckFeedback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fb, ok := c.entries[sessionID]
	if !ok || fb.DiagramHash != hash {
		return domain.CheckFeedback{}, false
	}
	return fb.Clone(), true
}

func (c *checkCache) put(sessionID string, fb domain.CheckFeedback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = fb.Clone()
}

func (c *checkCache) drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}
