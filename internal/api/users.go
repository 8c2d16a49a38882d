package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/store"
	"github.com/google/uuid"
)

const minPasswordLength = 8

type signupRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Signup handles POST /users/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		Error(w, http.StatusUnprocessableEntity, "A valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		Error(w, http.StatusUnprocessableEntity, "Password must be at least 8 characters")
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	user := &domain.User{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     email,
		CreatedAt: h.now(),
	}
	if err := h.repo.CreateUser(r.Context(), user, hash); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			Error(w, http.StatusBadRequest, "User already exists.")
			return
		}
		slog.Error("Failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	slog.Info("User signed up", "user_id", user.ID)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    user,
	})
}

// Login handles POST /users/login. Credentials arrive as an OAuth2 password
// form: username carries the email.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.PostForm.Get("username")))
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		Error(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	user, hash, err := h.repo.GetUserByEmail(r.Context(), email)
	if err != nil {
		slog.Error("Failed to look up user", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if user == nil || !identity.CheckPassword(hash, password) {
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, err := h.issuer.Issue(user.ID, user.Email, identity.KindAccess)
	if err != nil {
		slog.Error("Failed to issue access token", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	refresh, err := h.issuer.Issue(user.ID, user.Email, identity.KindRefresh)
	if err != nil {
		slog.Error("Failed to issue refresh token", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	slog.Info("User logged in", "user_id", user.ID, "ip", identity.IPFromRequest(r))
	JSON(w, http.StatusOK, domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(h.issuer.AccessTTL().Seconds()),
		User:         user,
	})
}

// Refresh handles POST /users/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claims, err := h.issuer.Verify(req.RefreshToken, identity.KindRefresh)
	if err != nil {
		Error(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	user, err := h.repo.GetUser(r.Context(), claims.Subject)
	if err != nil {
		slog.Error("Failed to look up user for refresh", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	access, err := h.issuer.Issue(user.ID, user.Email, identity.KindAccess)
	if err != nil {
		slog.Error("Failed to issue access token", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}
	JSON(w, http.StatusOK, domain.AccessToken{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(h.issuer.AccessTTL().Seconds()),
	})
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if user == nil {
		Error(w, http.StatusNotFound, "User not found")
		return
	}
	JSON(w, http.StatusOK, user)
}
