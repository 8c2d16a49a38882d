package agent

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/surface"
)

const maxScore = 100

// concept is one building block the reviewer looks for in diagram labels.
type concept struct {
	name     string
	keywords []string
	points   int
	nextStep string
	tip      string
}

var concepts = []concept{
	{
		name:     "Load balancer",
		keywords: []string{"load balancer", "loadbalancer", "lb", "nginx", "haproxy"},
		points:   20,
		nextStep: "Add a load balancer in front of your application servers",
		tip:      "Put a load balancer in front of stateless app servers so you can scale them horizontally.",
	},
	{
		name:     "Database",
		keywords: []string{"database", "db", "postgres", "mysql", "sql", "mongo", "dynamo", "cassandra"},
		points:   25,
		nextStep: "Add a database to persist your core data",
		tip:      "Pick a primary datastore and note how it is partitioned or replicated as data grows.",
	},
	{
		name:     "Cache",
		keywords: []string{"cache", "redis", "memcached", "cdn"},
		points:   20,
		nextStep: "Add a cache for frequently read data",
		tip:      "Cache hot reads (Redis or Memcached) and decide how entries are invalidated.",
	},
	{
		name:     "API layer",
		keywords: []string{"api", "gateway", "server", "service"},
		points:   15,
		nextStep: "Add an API layer or service that handles client requests",
		tip:      "Define the API service boundary and the main endpoints clients call.",
	},
}

const (
	connectionPoints = 10
	componentPoints  = 10
	componentTarget  = 5
)

// Heuristic reviews diagrams by looking for well-known components in their
// labels. It needs no model credentials.
type Heuristic struct {
	chunkDelay time.Duration
}

// NewHeuristic creates a reviewer that pauses chunkDelay between chat chunks.
func NewHeuristic(chunkDelay time.Duration) *Heuristic {
	return &Heuristic{chunkDelay: chunkDelay}
}

// Check lists what the diagram already covers and what to add next.
func (h *Heuristic) Check(ctx context.Context, in Input) (domain.CheckFeedback, error) {
	if err := ctx.Err(); err != nil {
		return domain.CheckFeedback{}, err
	}
	sum := surface.Summarize(in.Diagram)
	fb := domain.CheckFeedback{
		Implemented: []string{},
		Missing:     []string{},
		NextSteps:   []string{},
	}
	if sum.Total == 0 {
		fb.Missing = append(fb.Missing, "No components drawn on canvas")
		fb.NextSteps = append(fb.NextSteps, "Start by drawing the client, an API layer and a database, then connect them")
		return fb, nil
	}

	for _, c := range concepts {
		if sum.HasText(c.keywords...) {
			fb.Implemented = append(fb.Implemented, c.name+" present")
		} else {
			fb.Missing = append(fb.Missing, c.name)
			fb.NextSteps = append(fb.NextSteps, c.nextStep)
		}
	}

	if n := len(sum.Connections); n > 0 {
		fb.Implemented = append(fb.Implemented, fmt.Sprintf("%d connection(s) showing data flow", n))
	} else {
		fb.Missing = append(fb.Missing, "Connections between components")
		fb.NextSteps = append(fb.NextSteps, "Draw arrows to show how requests flow between components")
	}

	unlabelled := 0
	for _, comp := range sum.Components {
		if strings.TrimSpace(comp.Label) == "" {
			unlabelled++
		}
	}
	if unlabelled > 0 {
		fb.NextSteps = append(fb.NextSteps, fmt.Sprintf("Label the %d unlabelled component(s) so reviewers can tell them apart", unlabelled))
	}
	return fb, nil
}

// Score awards points for each concept present, for connections and for
// reaching a minimum component count, capped at 100.
func (h *Heuristic) Score(ctx context.Context, in Input) (domain.SubmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SubmissionResult{}, err
	}
	sum := surface.Summarize(in.Diagram)
	res := domain.SubmissionResult{MaxScore: maxScore}
	res.Resources = resourcesFor(in)

	if sum.Total == 0 {
		res.Feedback.Missing = []string{"No components drawn on canvas"}
		res.Feedback.Weaknesses = []string{"The diagram is empty"}
		res.Tips = []string{"Start with the request path: client, API, storage. Then iterate."}
		return res, nil
	}

	score := 0
	for _, c := range concepts {
		if sum.HasText(c.keywords...) {
			score += c.points
			res.Feedback.Implemented = append(res.Feedback.Implemented, c.name)
			res.Feedback.Strengths = append(res.Feedback.Strengths, "Includes a "+strings.ToLower(c.name))
		} else {
			res.Feedback.Missing = append(res.Feedback.Missing, c.name)
			res.Feedback.Weaknesses = append(res.Feedback.Weaknesses, "No "+strings.ToLower(c.name)+" in the design")
			res.Tips = append(res.Tips, c.tip)
		}
	}

	if len(sum.Connections) > 0 {
		score += connectionPoints
		res.Feedback.Strengths = append(res.Feedback.Strengths, "Components are connected to show data flow")
	} else {
		res.Feedback.Weaknesses = append(res.Feedback.Weaknesses, "Components are not connected")
		res.Tips = append(res.Tips, "Connect components with arrows and label the important hops.")
	}

	if len(sum.Components) >= componentTarget {
		score += componentPoints
		res.Feedback.Strengths = append(res.Feedback.Strengths, fmt.Sprintf("Covers %d components", len(sum.Components)))
	} else {
		res.Feedback.Weaknesses = append(res.Feedback.Weaknesses,
			fmt.Sprintf("Only %d component(s); most designs need at least %d", len(sum.Components), componentTarget))
	}

	res.Score = min(score, maxScore)
	res.Tips = append(res.Tips, reflectionTip(res.Score))
	return res, nil
}

func reflectionTip(score int) string {
	switch {
	case score >= 80:
		return "Strong design. Next, reason about failure modes and how each component degrades."
	case score >= 50:
		return "Solid start. Walk one request end to end and note where it could bottleneck."
	default:
		return "Focus on the core request path first, then add scaling components."
	}
}

func resourcesFor(in Input) domain.Resources {
	title := in.problemTitle()
	search := url.QueryEscape(title + " system design")
	return domain.Resources{
		Videos: []domain.Resource{{
			Title:       title + " - System Design Walkthrough",
			URL:         "https://www.youtube.com/results?search_query=" + search,
			Description: "Video walkthroughs of this problem",
		}},
		Docs: []domain.Resource{
			{Title: "System Design Primer", URL: "https://github.com/donnemartin/system-design-primer", Description: "Comprehensive system design resource"},
			{Title: "AWS Architecture Center", URL: "https://aws.amazon.com/architecture/", Description: "Learn cloud architecture patterns"},
			{Title: "Google Cloud Architecture Framework", URL: "https://cloud.google.com/architecture/framework", Description: "Best practices for system design"},
			{Title: title + " - System Design", URL: "https://www.google.com/search?q=" + search, Description: "Search for specific implementation guides"},
		},
	}
}

// Chat streams a short hint that references the caller's diagram. The reply
// is split on word boundaries so clients see it arrive progressively.
func (h *Heuristic) Chat(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	reply := h.reply(req)
	return func(yield func(string, error) bool) {
		words := strings.SplitAfter(reply, " ")
		for i, w := range words {
			if i > 0 && h.chunkDelay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(h.chunkDelay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

func (h *Heuristic) reply(req ChatRequest) string {
	in := Input{Problem: req.Problem, Diagram: req.Diagram}
	sum := surface.Summarize(req.Diagram)
	msg := strings.ToLower(req.Message)

	if sum.Total == 0 {
		return fmt.Sprintf("Your canvas is empty so far. For %s, start with the client, an API layer and a database, then connect them with arrows.", in.problemTitle())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I can see %d component(s) and %d connection(s) in your diagram.", len(sum.Components), len(sum.Connections))

	var missing *concept
	for i := range concepts {
		if !sum.HasText(concepts[i].keywords...) {
			missing = &concepts[i]
			break
		}
	}

	switch {
	case strings.Contains(msg, "scale") || strings.Contains(msg, "traffic"):
		b.WriteString(" To handle more traffic, think about which tiers can be replicated behind a load balancer and what state must stay shared.")
	case strings.Contains(msg, "cache"):
		b.WriteString(" A cache helps most on read-heavy paths. Ask which data is read far more often than it changes.")
	case strings.Contains(msg, "database") || strings.Contains(msg, "storage"):
		b.WriteString(" Consider the access pattern first: key lookups, range scans or relationships. That usually decides the datastore.")
	case missing != nil:
		fmt.Fprintf(&b, " A good next step: %s.", strings.ToLower(missing.nextStep[:1])+missing.nextStep[1:])
	default:
		b.WriteString(" The core pieces are in place. Walk one request end to end and look for single points of failure.")
	}
	if len(sum.Connections) == 0 {
		b.WriteString(" Remember to connect your components so the data flow is clear.")
	}
	return b.String()
}

// Close releases resources.
func (h *Heuristic) Close() {}
