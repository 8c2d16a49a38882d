package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/go-chi/chi/v5"
)

// MySubmissions handles GET /submissions/user/my-submissions.
func (h *Handler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	subs, total, err := h.repo.ListSubmissions(r.Context(), userID, skip, limit)
	if err != nil {
		slog.Error("Failed to list submissions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list submissions")
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	JSON(w, http.StatusOK, domain.SubmissionList{Total: total, Skip: skip, Limit: limit, Submissions: subs})
}

// GetSubmission handles GET /submissions/{id}.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.repo.GetSubmission(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load submission", "submission_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load submission")
		return
	}
	if sub == nil {
		Error(w, http.StatusNotFound, "Submission not found")
		return
	}
	if sub.UserID != identity.UserIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "You are not authorized to view this submission")
		return
	}
	JSON(w, http.StatusOK, sub)
}
