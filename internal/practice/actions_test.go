package practice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/designdrill/internal/apiclient"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/stream"
	"github.com/ashureev/designdrill/internal/surface"
)

// notReady is a surface that has not been mounted yet.
type notReady struct{ *surface.Memory }

func (notReady) Ready() bool { return false }

func TestCheckServesCacheForUnchangedDiagram(t *testing.T) {
	api := &fakeAPI{checkResult: domain.CheckFeedback{Implemented: []string{"API gateway"}, Missing: []string{"cache"}}}
	surf := surface.NewMemory()
	surf.UpdateScene(shapes(2))
	c := openController(t, api, surf)
	ctx := context.Background()

	first, err := c.Check(ctx)
	if err != nil {
		t.Fatalf("first Check() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first Check() reported cached")
	}
	second, err := c.Check(ctx)
	if err != nil {
		t.Fatalf("second Check() error = %v", err)
	}
	if !second.Cached || second.Implemented[0] != "API gateway" {
		t.Fatalf("second Check() = %+v, want cached copy", second)
	}
	if api.count("check") != 1 || api.count("autosave") != 1 {
		t.Fatalf("calls = %v, want one save and one check", api.callLog())
	}

	// Mutating the returned feedback must not leak into the cache.
	second.Implemented[0] = "changed"
	third, _ := c.Check(ctx)
	if third.Implemented[0] != "API gateway" {
		t.Fatal("cached feedback shares storage with callers")
	}
}

func TestCheckAfterEditCallsBackend(t *testing.T) {
	api := &fakeAPI{checkResult: domain.CheckFeedback{Missing: []string{"database"}}}
	surf := surface.NewMemory()
	surf.UpdateScene(shapes(1))
	c := openController(t, api, surf)
	ctx := context.Background()

	if _, err := c.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	surf.UpdateScene(shapes(3))
	api.mu.Lock()
	api.checkResult = domain.CheckFeedback{Implemented: []string{"database"}}
	api.mu.Unlock()

	fb, err := c.Check(ctx)
	if err != nil {
		t.Fatalf("Check() after edit error = %v", err)
	}
	if fb.Cached || len(fb.Implemented) != 1 {
		t.Fatalf("Check() after edit = %+v, want fresh feedback", fb)
	}
	if api.count("check") != 2 {
		t.Fatalf("check calls = %d, want 2", api.count("check"))
	}
	again, _ := c.Check(ctx)
	if !again.Cached || again.Implemented[0] != "database" {
		t.Fatalf("cache not replaced: %+v", again)
	}
}

func TestCheckForcesSaveEvenWhenAutosaved(t *testing.T) {
	api := &fakeAPI{}
	surf := surface.NewMemory()
	c := openController(t, api, surf)
	ctx := context.Background()

	surf.UpdateScene(shapes(2))
	c.AutosaveTick(ctx)
	if _, err := c.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got := api.callLog(); strings.Join(got, ",") != "create,autosave,autosave,check" {
		t.Fatalf("calls = %v", got)
	}
}

func TestCheckFailureReturnsErrorFeedback(t *testing.T) {
	api := &fakeAPI{checkErr: &apiclient.APIError{StatusCode: 503, Detail: "model offline"}}
	surf := surface.NewMemory()
	surf.UpdateScene(shapes(1))
	c := openController(t, api, surf)

	fb, err := c.Check(context.Background())
	if err == nil {
		t.Fatal("Check() error = nil, want failure")
	}
	if len(fb.Missing) != 1 || !strings.HasPrefix(fb.Missing[0], "Failed to get AI feedback: ") {
		t.Fatalf("feedback = %+v", fb)
	}

	api.mu.Lock()
	api.checkErr = nil
	api.mu.Unlock()
	if fb, _ := c.Check(context.Background()); fb.Cached {
		t.Fatal("a failed check must not populate the cache")
	}
}

func TestCheckRequiresReadySurface(t *testing.T) {
	api := &fakeAPI{}
	c := openController(t, api, notReady{surface.NewMemory()})
	if _, err := c.Check(context.Background()); !errors.Is(err, ErrSurfaceNotReady) {
		t.Fatalf("Check() error = %v, want ErrSurfaceNotReady", err)
	}
	if api.count("check") != 0 {
		t.Fatal("check called with an unready surface")
	}
}

func TestSubmitEmptyDiagramIsRejectedLocally(t *testing.T) {
	api := &fakeAPI{}
	c := openController(t, api, surface.NewMemory())

	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrEmptyDiagram) {
		t.Fatalf("Submit() error = %v, want ErrEmptyDiagram", err)
	}
	if got := api.callLog(); len(got) != 1 {
		t.Fatalf("calls = %v, want only create", got)
	}
	if c.State() != StateActive {
		t.Fatal("rejected submit left the session")
	}
}

func TestSubmitSavesThenScores(t *testing.T) {
	want := domain.SubmissionResult{
		Score:    65,
		MaxScore: 100,
		Feedback: domain.SubmissionFeedback{Strengths: []string{"Includes a database"}},
		Tips:     []string{"How would you scale reads?"},
	}
	api := &fakeAPI{submitResult: want}
	surf := surface.NewMemory()
	surf.UpdateScene(shapes(3))
	c := openController(t, api, surf)

	got, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.Score != 65 || got.Percent() != 65 || got.Tips[0] != want.Tips[0] {
		t.Fatalf("Submit() = %+v", got)
	}
	if log := strings.Join(api.callLog(), ","); log != "create,autosave,submit" {
		t.Fatalf("calls = %s", log)
	}
	if c.State() != StateClosed {
		t.Fatal("session still active after submit")
	}
	if s, _ := c.Session(); s.Status != domain.SessionSubmitted {
		t.Fatalf("status = %q, want submitted", s.Status)
	}
	if c.AutosaveTick(context.Background()) {
		t.Fatal("autosave ran after submit")
	}
}

func TestSubmitFailureIsDetailed(t *testing.T) {
	api := &fakeAPI{submitErr: &apiclient.APIError{StatusCode: 500, Detail: "OPENAI_API_KEY not configured"}}
	surf := surface.NewMemory()
	surf.UpdateScene(shapes(1))
	c := openController(t, api, surf)

	_, err := c.Submit(context.Background())
	var subErr *SubmitError
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit() error = %v, want *SubmitError", err)
	}
	if subErr.Stage != StageSubmit || len(subErr.Causes) == 0 {
		t.Fatalf("SubmitError = %+v", subErr)
	}
	if c.State() != StateActive {
		t.Fatal("failed submit should leave the session active for a retry")
	}
}

func TestChatStreamsChunksIntoOneReply(t *testing.T) {
	api := &fakeAPI{chatBody: chatStream("Hel", "lo ", "there") + stream.EncodeDone()}
	c := openController(t, api, surface.NewMemory())

	var progress []string
	c.OnChatUpdate(func(m domain.ChatMessage) {
		if m.Role == domain.RoleAI && m.Content != "" {
			progress = append(progress, m.Content)
		}
	})
	if err := c.Chat(context.Background(), "  how do I shard?  "); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	want := []string{"Hel", "Hello ", "Hello there"}
	if strings.Join(progress, "|") != strings.Join(want, "|") {
		t.Fatalf("progress = %q, want %q", progress, want)
	}
	tr := c.Transcript()
	if len(tr) != 2 || tr[0].Role != domain.RoleUser || tr[0].Content != "how do I shard?" || tr[1].Content != "Hello there" {
		t.Fatalf("Transcript() = %+v", tr)
	}
	if tr[0].ID == "" || tr[0].ID == tr[1].ID {
		t.Fatal("messages need distinct ids")
	}
	if c.Typing() {
		t.Fatal("Typing() = true after the stream ended")
	}
}

func TestChatFailureAppendsApology(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
		want string
	}{
		{
			name: "open fails",
			api:  &fakeAPI{chatErr: &apiclient.APIError{StatusCode: 500}},
			want: ChatApology,
		},
		{
			name: "server error record after text",
			api:  &fakeAPI{chatBody: chatStream("Partial") + stream.EncodeError("OPENAI_API_KEY not configured")},
			want: "Partial\n\n" + ChatApology,
		},
		{
			name: "stream ends without done marker",
			api:  &fakeAPI{chatBody: chatStream("Hel")},
			want: "Hel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := openController(t, tt.api, surface.NewMemory())
			_ = c.Chat(context.Background(), "hello")
			tr := c.Transcript()
			if len(tr) != 2 {
				t.Fatalf("Transcript() has %d messages, want 2", len(tr))
			}
			if tr[1].Content != tt.want {
				t.Fatalf("reply = %q, want %q", tr[1].Content, tt.want)
			}
			if c.Typing() {
				t.Fatal("Typing() still set after failure")
			}
		})
	}
}

func TestChatRejectsBlankText(t *testing.T) {
	api := &fakeAPI{}
	c := openController(t, api, surface.NewMemory())
	if err := c.Chat(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Chat() error = %v, want ErrEmptyMessage", err)
	}
	if len(c.Transcript()) != 0 || api.count("chat") != 0 {
		t.Fatal("blank message reached the transcript or backend")
	}
}
