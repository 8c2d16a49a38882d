// Package cli implements the interactive drill shell.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/apiclient"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/practice"
	"github.com/ashureev/designdrill/internal/surface"
)

var _ practice.API = (*apiclient.Client)(nil)

// errQuit ends the read loop.
var errQuit = errors.New("quit")

const (
	prompt       = "drill> "
	pauseOnClose = 5 * time.Second
)

// Shell reads commands and drives a practice controller.
type Shell struct {
	client   *apiclient.Client
	surface  surface.Surface
	renderer *surface.Renderer
	out      io.Writer
	logger   *slog.Logger
	opts     practice.Options

	outMu sync.Mutex

	mu      sync.Mutex
	ctrl    *practice.Controller
	printed map[string]int
	runWG   sync.WaitGroup
}

// Config wires a Shell.
type Config struct {
	Client   *apiclient.Client
	Surface  surface.Surface
	Renderer *surface.Renderer // nil uses the built-in font
	Out      io.Writer
	Logger   *slog.Logger
	Options  practice.Options
}

// New creates a shell.
func New(cfg Config) *Shell {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Shell{
		client:   cfg.Client,
		surface:  cfg.Surface,
		renderer: cfg.Renderer,
		out:      cfg.Out,
		logger:   cfg.Logger,
		opts:     cfg.Options,
		printed:  make(map[string]int),
	}
}

// AuthExpired tells the user that they must log in again. It is the
// apiclient auth-expired hook.
func (s *Shell) AuthExpired() {
	s.println("Your login has expired. Run 'login <email> <password>' to continue.")
}

// Run reads commands from in until quit, EOF or ctx is done. An open session
// is paused before Run returns.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer s.shutdown()
	s.println("designdrill. Type 'help' for commands.")
	for {
		s.print(prompt)
		select {
		case <-ctx.Done():
			s.println("")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.println("error: " + err.Error())
			}
		}
	}
}

// Exec runs one command line.
//
//nolint:gocyclo // The command table is a flat switch on purpose.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch cmd {
	case "help", "?":
		s.println(helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "signup":
		return s.signup(ctx, args)
	case "login":
		return s.login(ctx, args)
	case "logout":
		return s.logout(ctx)
	case "whoami":
		return s.whoami(ctx)
	case "problems":
		return s.problems(ctx, args)
	case "search":
		return s.search(ctx, rest)
	case "show":
		return s.show(ctx, args)
	case "open":
		return s.open(ctx, args)
	case "status":
		return s.status()
	case "check":
		return s.check(ctx)
	case "submit":
		return s.submit(ctx)
	case "chat":
		return s.chat(ctx, rest)
	case "transcript":
		return s.transcript()
	case "summary":
		s.println(surface.Summarize(surface.Snapshot(s.surface)).String())
		return nil
	case "export":
		return s.export(args)
	case "reset":
		s.surface.ResetScene()
		s.println("Canvas cleared.")
		return nil
	case "pause":
		return s.pause(ctx)
	case "abandon":
		return s.abandon(ctx)
	case "history":
		return s.history(ctx)
	}
	return fmt.Errorf("unknown command %q (try 'help')", cmd)
}

const helpText = `Commands:
  signup <email> <password> [first] [last]   create an account
  login <email> <password>                    log in
  logout | whoami
  problems [difficulty] | search <text> | show <problem-id>
  open <problem-id>      start or resume a practice session
  status                 session, timer and autosave state
  check                  AI feedback on the current diagram
  submit                 final score for the current diagram
  chat <message>         ask the AI coach
  transcript             show the chat so far
  summary                describe the current diagram
  export <file.png>      render the diagram to PNG
  reset                  clear the canvas
  pause | abandon        leave the session
  history                past submissions
  quit`

func (s *Shell) controller() (*practice.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil || s.ctrl.State() != practice.StateActive {
		return nil, practice.ErrNoSession
	}
	return s.ctrl, nil
}

func (s *Shell) signup(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: signup <email> <password> [first] [last]")
	}
	req := apiclient.SignupRequest{Email: args[0], Password: args[1]}
	if len(args) > 2 {
		req.FirstName = args[2]
	}
	if len(args) > 3 {
		req.LastName = strings.Join(args[3:], " ")
	}
	user, err := s.client.Signup(ctx, req)
	if err != nil {
		return err
	}
	s.printf("Account created for %s. Now run 'login'.\n", user.Email)
	return nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <email> <password>")
	}
	pair, err := s.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.printf("Logged in as %s.\n", pair.User.DisplayName())
	return nil
}

func (s *Shell) logout(ctx context.Context) error {
	s.leave(ctx)
	if err := s.client.Logout(ctx); err != nil {
		return err
	}
	s.println("Logged out.")
	return nil
}

func (s *Shell) whoami(ctx context.Context) error {
	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	s.printf("%s <%s>\n", user.DisplayName(), user.Email)
	return nil
}

func (s *Shell) problems(ctx context.Context, args []string) error {
	f := apiclient.ProblemFilter{}
	if len(args) > 0 {
		f.Difficulty = args[0]
	}
	list, err := s.client.ListProblems(ctx, f)
	if err != nil {
		return err
	}
	s.printProblems(list)
	return nil
}

func (s *Shell) search(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("usage: search <text>")
	}
	list, err := s.client.SearchProblems(ctx, text, 0, 0)
	if err != nil {
		return err
	}
	s.printProblems(list)
	return nil
}

func (s *Shell) printProblems(list *domain.ProblemList) {
	if len(list.Problems) == 0 {
		s.println("No problems found.")
		return
	}
	for _, p := range list.Problems {
		s.printf("  %-16s %-8s %s\n", p.ID, p.Difficulty, p.Title)
	}
	s.printf("%d of %d problem(s).\n", len(list.Problems), list.Total)
}

func (s *Shell) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <problem-id>")
	}
	p, err := s.client.GetProblem(ctx, args[0])
	if err != nil {
		return err
	}
	s.printf("%s (%s, ~%s)\n\n%s\n", p.Title, p.Difficulty, p.EstimatedTime, p.Description)
	s.printList("Requirements", p.Requirements)
	s.printList("Constraints", p.Constraints)
	s.printList("Hints", p.Hints)
	return nil
}

func (s *Shell) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <problem-id>")
	}
	s.leave(ctx)

	ctrl := practice.New(s.client, s.surface, s.logger, s.opts)
	ctrl.OnChatUpdate(s.streamChat)
	sess, err := ctrl.Open(ctx, args[0])
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Autosave loop ended", "session_id", sess.ID, "error", err)
		}
	}()

	verb := "Started"
	if sess.TimeSpent > 0 || !sess.DiagramData.IsEmpty() {
		verb = "Resumed"
	}
	s.printf("%s session %s (%s elapsed).\n", verb, sess.ID, formatElapsed(sess.TimeSpent))
	return nil
}

func (s *Shell) status() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	sess, _ := ctrl.Session()
	st := ctrl.Status()
	s.printf("Session %s on %s: %s, %s elapsed\n", sess.ID, sess.ProblemID, ctrl.State(), formatElapsed(ctrl.Elapsed()))
	switch {
	case st.LastError != nil:
		s.printf("Autosave failing: %v\n", st.LastError)
	case st.Unsaved:
		s.println("Unsaved changes.")
	default:
		s.printf("Saved at %s (%s).\n", st.LastSavedAt.Local().Format("15:04:05"), st.LastSavedFingerprint)
	}
	return nil
}

func (s *Shell) check(ctx context.Context) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	fb, err := ctrl.Check(ctx)
	if err != nil {
		s.printList("Missing", fb.Missing)
		return err
	}
	if fb.Cached {
		s.println("(unchanged diagram, cached feedback)")
	}
	s.printList("Implemented", fb.Implemented)
	s.printList("Missing", fb.Missing)
	s.printList("Next steps", fb.NextSteps)
	return nil
}

func (s *Shell) submit(ctx context.Context) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	res, err := ctrl.Submit(ctx)
	if err != nil {
		var subErr *practice.SubmitError
		if errors.As(err, &subErr) {
			return errors.New(subErr.Detail())
		}
		return err
	}
	s.printf("Score: %d/%d (%d%%)\n", res.Score, res.MaxScore, res.Percent())
	s.printList("Strengths", res.Feedback.Strengths)
	s.printList("Weaknesses", res.Feedback.Weaknesses)
	s.printList("Tips", res.Tips)
	for _, r := range append(res.Resources.Videos, res.Resources.Docs...) {
		s.printf("  %s: %s\n", r.Title, r.URL)
	}
	return nil
}

func (s *Shell) chat(ctx context.Context, text string) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	err = ctrl.Chat(ctx, text)
	s.println("")
	return err
}

// streamChat prints the unseen tail of each AI message as it grows.
func (s *Shell) streamChat(msg domain.ChatMessage) {
	if msg.Role != domain.RoleAI {
		return
	}
	s.mu.Lock()
	n := s.printed[msg.ID]
	if len(msg.Content) <= n {
		s.mu.Unlock()
		return
	}
	s.printed[msg.ID] = len(msg.Content)
	s.mu.Unlock()
	if n == 0 {
		s.print("coach: ")
	}
	s.print(msg.Content[n:])
}

func (s *Shell) transcript() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	msgs := ctrl.Transcript()
	if len(msgs) == 0 {
		s.println("No messages yet.")
		return nil
	}
	for _, m := range msgs {
		who := "you"
		if m.Role == domain.RoleAI {
			who = "coach"
		}
		s.printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
	}
	return nil
}

func (s *Shell) export(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: export <file.png>")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("create %s: %w", args[0], err)
	}
	if s.renderer != nil {
		err = s.renderer.Render(surface.Snapshot(s.surface), f)
	} else {
		err = s.surface.ExportPNG(f)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("export png: %w", err)
	}
	s.printf("Wrote %s.\n", args[0])
	return nil
}

func (s *Shell) pause(ctx context.Context) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.Pause(ctx); err != nil {
		return err
	}
	s.runWG.Wait()
	s.printf("Paused after %s. 'open' the problem again to resume.\n", formatElapsed(ctrl.Elapsed()))
	return nil
}

func (s *Shell) abandon(ctx context.Context) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.Abandon(ctx); err != nil {
		return err
	}
	s.runWG.Wait()
	s.surface.ResetScene()
	s.println("Session abandoned.")
	return nil
}

func (s *Shell) history(ctx context.Context) error {
	list, err := s.client.MySubmissions(ctx, 0, 0)
	if err != nil {
		return err
	}
	if len(list.Submissions) == 0 {
		s.println("No submissions yet.")
		return nil
	}
	for _, sub := range list.Submissions {
		s.printf("  %s  %-16s %3d/%d  %s\n",
			sub.SubmittedAt.Local().Format("2006-01-02 15:04"), sub.ProblemID,
			sub.Result.Score, sub.Result.MaxScore, formatElapsed(sub.TimeSpent))
	}
	return nil
}

// leave pauses an active session, logging failures.
func (s *Shell) leave(ctx context.Context) {
	ctrl, err := s.controller()
	if err != nil {
		return
	}
	if err := ctrl.Pause(ctx); err != nil {
		s.logger.Warn("Failed to pause session", "error", err)
	}
	s.runWG.Wait()
}

// shutdown pauses with its own deadline since the caller's context may
// already be canceled.
func (s *Shell) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), pauseOnClose)
	defer cancel()
	s.leave(ctx)
}

func (s *Shell) printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	s.printf("%s:\n", title)
	for _, it := range items {
		s.printf("  - %s\n", it)
	}
}

func (s *Shell) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = io.WriteString(s.out, text)
}

func (s *Shell) println(text string) {
	s.print(text + "\n")
}

func (s *Shell) printf(format string, args ...interface{}) {
	s.print(fmt.Sprintf(format, args...))
}

func formatElapsed(seconds int) string {
	if seconds < 60 {
		return strconv.Itoa(seconds) + "s"
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
