package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/store"
	"github.com/go-chi/chi/v5"
)

// ListProblems handles GET /problems/.
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	h.writeProblems(w, r, store.ProblemQuery{
		Skip:       skip,
		Limit:      limit,
		Difficulty: strings.TrimSpace(q.Get("difficulty")),
		Category:   strings.TrimSpace(q.Get("category")),
	})
}

// SearchProblems handles GET /problems/search/query?q=.
func (h *Handler) SearchProblems(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		Error(w, http.StatusUnprocessableEntity, "q is required")
		return
	}
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	h.writeProblems(w, r, store.ProblemQuery{Skip: skip, Limit: limit, Text: text})
}

func (h *Handler) writeProblems(w http.ResponseWriter, r *http.Request, q store.ProblemQuery) {
	problems, total, err := h.repo.ListProblems(r.Context(), q)
	if err != nil {
		slog.Error("Failed to list problems", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list problems")
		return
	}
	if problems == nil {
		problems = []domain.Problem{}
	}
	JSON(w, http.StatusOK, domain.ProblemList{
		Total:    total,
		Skip:     q.Skip,
		Limit:    q.Limit,
		Problems: problems,
	})
}

// GetProblem handles GET /problems/{id}.
func (h *Handler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.repo.GetProblem(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load problem", "problem_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load problem")
		return
	}
	if p == nil {
		Error(w, http.StatusNotFound, "Problem not found")
		return
	}
	JSON(w, http.StatusOK, p)
}
