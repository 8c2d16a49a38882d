package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/store"
	"github.com/ashureev/designdrill/internal/stream"
	"github.com/go-chi/chi/v5"
)

// labelled builds a diagram of labelled rectangles, optionally chained by arrows.
func labelled(connect bool, labels ...string) domain.Diagram {
	var els []json.RawMessage
	for i, l := range labels {
		id := fmt.Sprintf("shape-%d", i)
		bound := fmt.Sprintf(`[{"id":"text-%d","type":"text"}]`, i)
		els = append(els,
			json.RawMessage(fmt.Sprintf(`{"id":%q,"type":"rectangle","x":%d,"y":0,"width":100,"height":50,"boundElements":%s}`, id, i*150, bound)),
			json.RawMessage(fmt.Sprintf(`{"id":"text-%d","type":"text","text":%q,"containerId":%q,"x":%d,"y":10,"width":80,"height":20}`, i, l, id, i*150)),
		)
		if connect && i > 0 {
			els = append(els, json.RawMessage(fmt.Sprintf(
				`{"id":"arrow-%d","type":"arrow","x":0,"y":0,"points":[[0,0],[50,0]],"startBinding":{"elementId":"shape-%d"},"endBinding":{"elementId":%q}}`,
				i, i-1, id)))
		}
	}
	return domain.Diagram{Elements: els}
}

func TestHeuristicCheck(t *testing.T) {
	h := NewHeuristic(0)
	ctx := context.Background()

	fb, err := h.Check(ctx, Input{Diagram: domain.Diagram{}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(fb.Missing) != 1 || fb.Missing[0] != "No components drawn on canvas" {
		t.Errorf("empty diagram missing = %v", fb.Missing)
	}

	fb, err = h.Check(ctx, Input{Diagram: labelled(true, "Load Balancer", "API Server", "Postgres DB")})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	joined := strings.Join(fb.Implemented, "|")
	for _, want := range []string{"Load balancer", "Database", "API layer", "connection"} {
		if !strings.Contains(joined, want) {
			t.Errorf("implemented %v missing %q", fb.Implemented, want)
		}
	}
	if len(fb.Missing) != 1 || fb.Missing[0] != "Cache" {
		t.Errorf("missing = %v, want [Cache]", fb.Missing)
	}
	if len(fb.NextSteps) == 0 {
		t.Error("Expected a next step for the missing cache")
	}
}

func TestHeuristicScore(t *testing.T) {
	h := NewHeuristic(0)
	ctx := context.Background()

	tests := []struct {
		name    string
		diagram domain.Diagram
		want    int
	}{
		{"empty", domain.Diagram{}, 0},
		{"database only", labelled(false, "Database"), 25},
		{"connected core", labelled(true, "LB", "API", "Postgres"), 20 + 15 + 25 + 10},
		{"full design", labelled(true, "Load balancer", "API gateway", "Redis cache", "MySQL", "Worker"), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.Score(ctx, Input{Problem: &domain.Problem{Title: "URL Shortener"}, Diagram: tt.diagram})
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if res.Score != tt.want || res.MaxScore != 100 {
				t.Errorf("score = %d/%d, want %d/100", res.Score, res.MaxScore, tt.want)
			}
			if len(res.Tips) == 0 {
				t.Error("Expected at least one tip")
			}
			if len(res.Resources.Docs) == 0 || !strings.Contains(res.Resources.Docs[3].URL, "URL+Shortener") {
				t.Errorf("Unexpected docs: %+v", res.Resources.Docs)
			}
		})
	}
}

func TestHeuristicChatStreamsWords(t *testing.T) {
	h := NewHeuristic(0)
	var chunks []string
	for chunk, err := range h.Chat(context.Background(), ChatRequest{Message: "how do I scale?", Diagram: labelled(true, "API", "DB")}) {
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) < 5 {
		t.Fatalf("Expected word chunks, got %d", len(chunks))
	}
	reply := strings.Join(chunks, "")
	if !strings.HasPrefix(reply, "I can see 2 component(s) and 1 connection(s)") {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(reply, "load balancer") {
		t.Errorf("scale question should mention load balancing: %q", reply)
	}
}

func TestHeuristicChatStopsOnCancel(t *testing.T) {
	h := NewHeuristic(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []string
	var gotErr error
	for chunk, err := range h.Chat(ctx, ChatRequest{Message: "hi"}) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, chunk)
		cancel()
	}
	if len(got) != 1 || !errors.Is(gotErr, context.Canceled) {
		t.Errorf("got %v, %v; want one chunk then context.Canceled", got, gotErr)
	}
}

type chatFixture struct {
	srv    *httptest.Server
	repo   *store.SQLiteStore
	issuer *identity.Issuer
}

func newChatFixture(t *testing.T, limit int) *chatFixture {
	t.Helper()
	repo, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now()
	if err := repo.CreateSession(context.Background(), &domain.Session{
		ID: "s1", UserID: "u1", ProblemID: "p1", Status: domain.SessionActive,
		DiagramData: labelled(false, "API"),
		LastSavedAt: now, StartedAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	svc, _ := NewServiceWithProcessor(NewHeuristic(0))
	h := NewHandler(svc, repo, limit, time.Minute, nil)
	t.Cleanup(h.Close)

	issuer := identity.NewIssuer("secret", time.Minute, time.Hour, nil)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(issuer))
		r.Route("/sessions", h.RegisterRoutes)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &chatFixture{srv: srv, repo: repo, issuer: issuer}
}

func (f *chatFixture) post(t *testing.T, userID, sessionID, body string) *http.Response {
	t.Helper()
	token, err := f.issuer.Issue(userID, userID+"@example.com", identity.KindAccess)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/sessions/"+sessionID+"/ai-chat", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandleChatStreamsAndRecordsTurn(t *testing.T) {
	f := newChatFixture(t, 10)

	resp := f.post(t, "u1", "s1", `{"message":"  what next?  "}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var reply strings.Builder
	if err := stream.NewDecoder(resp.Body).Each(func(c string) { reply.WriteString(c) }); err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if !strings.HasPrefix(reply.String(), "I can see 1 component(s)") {
		t.Errorf("reply = %q", reply.String())
	}

	sess, err := f.repo.GetSession(context.Background(), "s1")
	if err != nil || sess == nil {
		t.Fatalf("GetSession = %v, %v", sess, err)
	}
	if len(sess.ChatMessages) != 2 {
		t.Fatalf("chat history = %+v, want 2 entries", sess.ChatMessages)
	}
	if sess.ChatMessages[0].Content != "what next?" || sess.ChatMessages[1].Role != "ai" {
		t.Errorf("Unexpected history: %+v", sess.ChatMessages)
	}
	if sess.ChatMessages[1].Content != reply.String() {
		t.Errorf("stored reply %q != streamed %q", sess.ChatMessages[1].Content, reply.String())
	}
}

func TestHandleChatRejections(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		session string
		body    string
		limit   int
		want    int
		detail  string
	}{
		{"blank message", "u1", "s1", `{"message":"   "}`, 10, http.StatusBadRequest, "Message is required"},
		{"bad json", "u1", "s1", `{`, 10, http.StatusBadRequest, "Invalid request body"},
		{"unknown session", "u1", "nope", `{"message":"hi"}`, 10, http.StatusNotFound, "Session not found"},
		{"other user", "u2", "s1", `{"message":"hi"}`, 10, http.StatusForbidden, "Not authorized to access this session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, tt.limit)
			resp := f.post(t, tt.userID, tt.session, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.detail) {
				t.Errorf("body = %s, want detail %q", body, tt.detail)
			}
		})
	}
}

func TestHandleChatRateLimited(t *testing.T) {
	f := newChatFixture(t, 1)

	first := f.post(t, "u1", "s1", `{"message":"hi"}`)
	_, _ = io.Copy(io.Discard, first.Body)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	second := f.post(t, "u1", "s1", `{"message":"hi"}`)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("Expected the first two requests to pass")
	}
	if rl.Allow("u1") {
		t.Fatal("Expected the third request to be limited")
	}
	if !rl.Allow("u2") {
		t.Fatal("Limits must be per user")
	}
	time.Sleep(80 * time.Millisecond)
	if !rl.Allow("u1") {
		t.Fatal("Expected the window to reset")
	}
}
