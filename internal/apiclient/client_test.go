package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/designdrill/internal/credentials"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// tokenServer accepts only currentToken on protected routes and hands out
// nextToken from the refresh endpoint.
type tokenServer struct {
	mu            sync.Mutex
	currentToken  string
	nextToken     string
	refreshCalls  atomic.Int32
	failRefresh   bool
	refreshDelay  time.Duration
	authOnPublic  atomic.Int32
	staleRequests atomic.Int32
	// holdSlow, when set, delays the 401 for /problems/slow until closed.
	holdSlow chan struct{}
	slowIn   chan struct{}
}

func (s *tokenServer) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			s.authOnPublic.Add(1)
		}
		s.refreshCalls.Add(1)
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}
		if s.failRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid refresh token"}`))
			return
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.currentToken = s.nextToken
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(domain.AccessToken{AccessToken: s.nextToken, TokenType: "bearer"})
	})
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			s.authOnPublic.Add(1)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") != "ada@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.TokenPair{
			AccessToken:  "access-0",
			RefreshToken: "refresh-1",
			TokenType:    "bearer",
			User:         &domain.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"},
		})
	})
	mux.HandleFunc("/problems/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.currentToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			s.staleRequests.Add(1)
			if s.holdSlow != nil && r.URL.Path == "/problems/slow" {
				s.slowIn <- struct{}{}
				<-s.holdSlow
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Problem{ID: strings.TrimPrefix(r.URL.Path, "/problems/"), Title: "URL Shortener"})
	})
	return mux
}

func seededStore(t *testing.T, access string) *credentials.Memory {
	t.Helper()
	store := credentials.NewMemory()
	if err := store.SetTokens(context.Background(), access, "refresh-1"); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	ts := &tokenServer{currentToken: "rotated", nextToken: "access-2", refreshDelay: 50 * time.Millisecond}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store := seededStore(t, "access-0")
	client := New(srv.URL, store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := client.GetProblem(context.Background(), "p1")
			if err == nil && p.ID != "p1" {
				err = errors.New("unexpected problem id " + p.ID)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("GetProblem() error = %v", err)
		}
	}
	if got := ts.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	creds, _ := store.Get(context.Background())
	if creds.AccessToken != "access-2" {
		t.Fatalf("stored access token = %q, want access-2", creds.AccessToken)
	}
}

func TestRefreshFailureClearsCredentialsAndNotifies(t *testing.T) {
	ts := &tokenServer{currentToken: "never", failRefresh: true}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store := seededStore(t, "access-0")
	var hookCalls atomic.Int32
	client := New(srv.URL, store, WithAuthExpiredHook(func() { hookCalls.Add(1) }))

	_, err := client.GetProblem(context.Background(), "p1")
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("GetProblem() error = %v, want ErrAuthExpired", err)
	}
	if hookCalls.Load() != 1 {
		t.Fatalf("auth expired hook calls = %d, want 1", hookCalls.Load())
	}
	creds, _ := store.Get(context.Background())
	if creds.Authenticated() || creds.RefreshToken != "" {
		t.Fatalf("credentials not cleared: %+v", creds)
	}
}

func TestLateUnauthorizedDoesNotExpireTwice(t *testing.T) {
	ts := &tokenServer{
		currentToken: "never",
		failRefresh:  true,
		holdSlow:     make(chan struct{}),
		slowIn:       make(chan struct{}, 1),
	}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store := seededStore(t, "access-0")
	var hookCalls atomic.Int32
	client := New(srv.URL, store, WithAuthExpiredHook(func() { hookCalls.Add(1) }))

	slowErr := make(chan error, 1)
	go func() {
		_, err := client.GetProblem(context.Background(), "slow")
		slowErr <- err
	}()
	<-ts.slowIn

	if _, err := client.GetProblem(context.Background(), "p1"); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("GetProblem(p1) error = %v, want ErrAuthExpired", err)
	}
	close(ts.holdSlow)
	if err := <-slowErr; !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("GetProblem(slow) error = %v, want ErrAuthExpired", err)
	}

	if got := hookCalls.Load(); got != 1 {
		t.Fatalf("auth expired hook calls = %d, want 1", got)
	}
	if got := ts.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestMissingRefreshTokenExpiresWithoutNetwork(t *testing.T) {
	ts := &tokenServer{currentToken: "never"}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store := credentials.NewMemory()
	_ = store.SetTokens(context.Background(), "access-0", "")
	client := New(srv.URL, store)

	if _, err := client.GetProblem(context.Background(), "p1"); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("GetProblem() error = %v, want ErrAuthExpired", err)
	}
	if ts.refreshCalls.Load() != 0 {
		t.Fatalf("refresh calls = %d, want 0", ts.refreshCalls.Load())
	}
}

func TestLoginStoresTokensWithoutSendingAuth(t *testing.T) {
	ts := &tokenServer{currentToken: "access-0"}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store := seededStore(t, "old-token")
	client := New(srv.URL, store)

	if _, err := client.Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if ts.authOnPublic.Load() != 0 {
		t.Fatal("login request carried an Authorization header")
	}
	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.DisplayName() != "Ada" {
		t.Fatalf("DisplayName() = %q, want Ada", user.DisplayName())
	}
	if _, err := client.GetProblem(context.Background(), "p9"); err != nil {
		t.Fatalf("GetProblem() after login error = %v", err)
	}
}

func TestExpiringJWTRefreshesBeforeRequest(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Second))}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	ts := &tokenServer{currentToken: "rotated", nextToken: "fresh"}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	client := New(srv.URL, seededStore(t, stale), WithClock(func() time.Time { return now }))
	if _, err := client.GetProblem(context.Background(), "p1"); err != nil {
		t.Fatalf("GetProblem() error = %v", err)
	}
	if ts.staleRequests.Load() != 0 {
		t.Fatalf("stale requests = %d, want 0", ts.staleRequests.Load())
	}
	if ts.refreshCalls.Load() != 1 {
		t.Fatalf("refresh calls = %d, want 1", ts.refreshCalls.Load())
	}
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string detail", body: `{"detail":"Session not found"}`, want: "Session not found"},
		{name: "error field", body: `{"error":"boom"}`, want: "boom"},
		{name: "structured detail", body: `{"detail":[{"msg":"field required"}]}`, want: `[{"msg":"field required"}]`},
		{name: "plain text", body: "upstream down\n", want: "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(tt.body))}
			apiErr := newAPIError(resp)
			if apiErr.Detail != tt.want {
				t.Fatalf("Detail = %q, want %q", apiErr.Detail, tt.want)
			}
			if !IsNotFound(apiErr) {
				t.Fatal("IsNotFound() = false, want true")
			}
		})
	}
}

func TestActiveSessionNullMeansNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/problem/empty":
			_, _ = w.Write([]byte("null"))
		case "/sessions/problem/open":
			_ = json.NewEncoder(w).Encode(domain.Session{ID: "s1", Status: domain.SessionPaused})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, seededStore(t, "access-0"))
	ctx := context.Background()

	s, err := client.ActiveSession(ctx, "empty")
	if err != nil || s != nil {
		t.Fatalf("ActiveSession(empty) = %v, %v; want nil, nil", s, err)
	}
	s, err = client.ActiveSession(ctx, "missing")
	if err != nil || s != nil {
		t.Fatalf("ActiveSession(missing) = %v, %v; want nil, nil", s, err)
	}
	s, err = client.ActiveSession(ctx, "open")
	if err != nil || s == nil || s.ID != "s1" {
		t.Fatalf("ActiveSession(open) = %v, %v", s, err)
	}
}

func TestOpenChatSetsStreamHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/s1/ai-chat" || r.Header.Get("Accept") != "text/event-stream" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req domain.AIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message != "hi" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: hello\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := New(srv.URL, seededStore(t, "access-0"))
	body, err := client.OpenChat(context.Background(), "s1", "hi", domain.Diagram{})
	if err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if !strings.Contains(string(data), "data: hello") {
		t.Fatalf("stream body = %q", data)
	}
}

func TestOpenChatRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"Rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, seededStore(t, "access-0"))
	_, err := client.OpenChat(context.Background(), "s1", "hi", domain.Diagram{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Temporary() {
		t.Fatalf("OpenChat() error = %v, want temporary APIError", err)
	}
}
