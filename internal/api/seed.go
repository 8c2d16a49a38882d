package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/store"
)

// catalogue is the built-in problem set. IDs are stable so links and tests
// can refer to them.
var catalogue = []domain.Problem{
	{
		ID:            "url-shortener",
		Title:         "URL Shortener",
		Description:   "Design a service that turns long URLs into short aliases and redirects visitors to the original address.",
		Difficulty:    "Easy",
		Categories:    []string{"web", "storage"},
		EstimatedTime: "30 min",
		Requirements: []string{
			"Create a short alias for a long URL",
			"Redirect an alias to its original URL",
			"Aliases can expire",
		},
		Constraints: []string{"100M new URLs per month", "Read:write ratio of 100:1", "Redirect latency under 50ms"},
		Hints: []string{
			"Reads dominate, so think about caching hot aliases",
			"Decide how aliases are generated without collisions",
		},
	},
	{
		ID:            "rate-limiter",
		Title:         "Distributed Rate Limiter",
		Description:   "Design a rate limiter that throttles API clients consistently across a fleet of servers.",
		Difficulty:    "Medium",
		Categories:    []string{"infrastructure", "api"},
		EstimatedTime: "40 min",
		Requirements: []string{
			"Limit requests per client per time window",
			"Return a clear error when a client is throttled",
			"Rules can change without a deploy",
		},
		Constraints: []string{"1M requests per second at peak", "Adds under 5ms per request"},
		Hints: []string{
			"Compare fixed window, sliding window and token bucket",
			"Where do counters live so every server sees them?",
		},
	},
	{
		ID:            "chat-system",
		Title:         "Chat System",
		Description:   "Design a chat service supporting one-to-one and group conversations with online presence.",
		Difficulty:    "Medium",
		Categories:    []string{"realtime", "messaging"},
		EstimatedTime: "45 min",
		Requirements: []string{
			"Send and receive messages in real time",
			"Group chats of up to 500 members",
			"Show online status",
			"Persist message history",
		},
		Constraints: []string{"50M daily active users", "Messages delivered in order per conversation"},
		Hints: []string{
			"Long-lived connections need their own tier",
			"Think about how messages fan out to group members",
		},
	},
	{
		ID:            "news-feed",
		Title:         "News Feed",
		Description:   "Design a social news feed that shows each user recent posts from the people they follow.",
		Difficulty:    "Hard",
		Categories:    []string{"social", "web"},
		EstimatedTime: "50 min",
		Requirements: []string{
			"Publish a post",
			"Build a ranked feed of followed users' posts",
			"Support media attachments",
		},
		Constraints: []string{"Some users have millions of followers", "Feed loads in under 200ms"},
		Hints: []string{
			"Compare fan-out on write with fan-out on read",
			"Celebrity accounts may need a different path",
		},
	},
	{
		ID:            "file-storage",
		Title:         "Cloud File Storage",
		Description:   "Design a service where users upload, sync and share files across devices.",
		Difficulty:    "Hard",
		Categories:    []string{"storage", "sync"},
		EstimatedTime: "50 min",
		Requirements: []string{
			"Upload and download files",
			"Sync changes across devices",
			"Share files with other users",
		},
		Constraints: []string{"Files up to 10GB", "Durability of eleven nines"},
		Hints: []string{
			"Split files into chunks to resume uploads and dedupe",
			"Keep metadata separate from blob storage",
		},
	},
}

// SeedProblems upserts the built-in catalogue.
func SeedProblems(ctx context.Context, repo store.Repository) error {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range catalogue {
		p := catalogue[i]
		p.CreatedBy = "system"
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		p.UpdatedAt = p.CreatedAt
		if err := repo.UpsertProblem(ctx, &p); err != nil {
			return fmt.Errorf("seed problem %s: %w", p.ID, err)
		}
	}
	slog.Info("Problem catalogue seeded", "count", len(catalogue))
	return nil
}
