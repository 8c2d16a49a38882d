package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "drill.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &domain.User{ID: "u1", FirstName: "Ada", LastName: "L", Email: "ada@example.com", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u, "hash"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	dup := &domain.User{ID: "u2", Email: "ADA@example.com", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, dup, "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Expected ErrEmailTaken, got %v", err)
	}

	got, hash, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil || got == nil {
		t.Fatalf("GetUserByEmail = %v, %v", got, err)
	}
	if got.ID != "u1" || hash != "hash" {
		t.Errorf("Unexpected user %+v hash %q", got, hash)
	}

	missing, err := s.GetUser(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for a missing user, got %v, %v", missing, err)
	}
}

func TestListProblemsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	problems := []domain.Problem{
		{ID: "p1", Title: "URL Shortener", Description: "short links", Difficulty: "Easy",
			Categories: []string{"web"}, Requirements: []string{}, Constraints: []string{}, Hints: []string{}, CreatedAt: now},
		{ID: "p2", Title: "Chat System", Description: "realtime messaging", Difficulty: "Medium",
			Categories: []string{"realtime", "web"}, Requirements: []string{}, Constraints: []string{}, Hints: []string{}, CreatedAt: now.Add(time.Second)},
	}
	for i := range problems {
		if err := s.UpsertProblem(ctx, &problems[i]); err != nil {
			t.Fatalf("UpsertProblem failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		q     ProblemQuery
		want  []string
		total int
	}{
		{"all", ProblemQuery{Limit: 10}, []string{"p1", "p2"}, 2},
		{"paged", ProblemQuery{Skip: 1, Limit: 1}, []string{"p2"}, 2},
		{"difficulty", ProblemQuery{Limit: 10, Difficulty: "medium"}, []string{"p2"}, 1},
		{"category", ProblemQuery{Limit: 10, Category: "web"}, []string{"p1", "p2"}, 2},
		{"text", ProblemQuery{Limit: 10, Text: "messag"}, []string{"p2"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListProblems(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListProblems failed: %v", err)
			}
			if total != tt.total {
				t.Errorf("total = %d, want %d", total, tt.total)
			}
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := &domain.Session{
		ID: "s1", UserID: "u1", ProblemID: "p1",
		DiagramData: domain.Diagram{Elements: []json.RawMessage{json.RawMessage(`{"id":"a","type":"rectangle"}`)}},
		DiagramHash: "h1", Status: domain.SessionActive,
		LastSavedAt: now.Add(-time.Hour), StartedAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	open, err := s.OpenSession(ctx, "u1", "p1")
	if err != nil || open == nil || open.ID != "s1" {
		t.Fatalf("OpenSession = %v, %v", open, err)
	}
	if len(open.DiagramData.Elements) != 1 || open.ChatMessages == nil {
		t.Errorf("Unexpected round trip: %+v", open)
	}

	idle, err := s.IdleSessions(ctx, 30*time.Minute)
	if err != nil || len(idle) != 1 {
		t.Fatalf("IdleSessions = %v, %v", idle, err)
	}

	if err := s.AppendChatMessage(ctx, "s1", domain.StoredChatMessage{Role: "user", Content: "hi", Timestamp: now}); err != nil {
		t.Fatalf("AppendChatMessage failed: %v", err)
	}

	// open still carries the empty history; the update must not clobber it.
	ended := now
	open.Status = domain.SessionSubmitted
	open.EndedAt = &ended
	if err := s.UpdateSession(ctx, open); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	if again, _ := s.OpenSession(ctx, "u1", "p1"); again != nil {
		t.Errorf("Submitted session should not be open: %+v", again)
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("GetSession = %v, %v", got, err)
	}
	if got.EndedAt == nil || len(got.ChatMessages) != 1 || got.ChatMessages[0].Content != "hi" {
		t.Errorf("Update not persisted: %+v", got)
	}
	if idle, _ := s.IdleSessions(ctx, 30*time.Minute); len(idle) != 0 {
		t.Errorf("Submitted session should not be idle: %v", idle)
	}

	if err := s.UpdateSession(ctx, &domain.Session{ID: "missing"}); err == nil {
		t.Error("Expected error updating a missing session")
	}
	if err := s.AppendChatMessage(ctx, "missing", domain.StoredChatMessage{Role: "user"}); err == nil {
		t.Error("Expected error appending to a missing session")
	}
}

func TestSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		sub := &domain.Submission{
			ID: id, UserID: "u1", ProblemID: "p1",
			Result:      domain.SubmissionResult{Score: 10 * i, MaxScore: 100},
			SubmittedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("CreateSubmission failed: %v", err)
		}
	}

	page, total, err := s.ListSubmissions(ctx, "u1", 0, 2)
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if total != 3 || len(page) != 2 || page[0].ID != "c" {
		t.Errorf("Unexpected page total=%d %+v", total, page)
	}

	got, err := s.GetSubmission(ctx, "b")
	if err != nil || got == nil || got.Result.Score != 10 {
		t.Errorf("GetSubmission = %+v, %v", got, err)
	}
	if other, _, _ := s.ListSubmissions(ctx, "u2", 0, 10); len(other) != 0 {
		t.Errorf("Expected no submissions for another user, got %v", other)
	}
}

func TestUnencodableDiagramIsAnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	bad := domain.Diagram{Elements: []json.RawMessage{json.RawMessage(`{"id":`)}}
	sess := &domain.Session{
		ID: "s1", UserID: "u1", ProblemID: "p1", DiagramData: bad, Status: domain.SessionActive,
		LastSavedAt: now, StartedAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateSession(ctx, sess); err == nil {
		t.Fatal("CreateSession accepted an unencodable diagram")
	}

	sess.DiagramData = domain.Diagram{}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	sess.DiagramData = bad
	if err := s.UpdateSession(ctx, sess); err == nil {
		t.Fatal("UpdateSession accepted an unencodable diagram")
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil || got == nil || len(got.DiagramData.Elements) != 0 {
		t.Fatalf("GetSession = %+v, %v; want the stored empty diagram", got, err)
	}
}
