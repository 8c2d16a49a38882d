package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ashureev/designdrill/internal/domain"
)

// ProblemFilter narrows ListProblems.
type ProblemFilter struct {
	Skip       int
	Limit      int
	Difficulty string
	Category   string
}

// GetProblem fetches one problem.
func (c *Client) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	var p domain.Problem
	if err := c.doJSON(ctx, http.MethodGet, "/problems/"+url.PathEscape(problemID), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("get problem %s: %w", problemID, err)
	}
	return &p, nil
}

// ListProblems returns a page of problems.
func (c *Client) ListProblems(ctx context.Context, f ProblemFilter) (*domain.ProblemList, error) {
	q := pageQuery(f.Skip, f.Limit, 50)
	if f.Difficulty != "" {
		q.Set("difficulty", f.Difficulty)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	var out domain.ProblemList
	if err := c.doJSON(ctx, http.MethodGet, "/problems/", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	return &out, nil
}

// SearchProblems runs a text search over problems.
func (c *Client) SearchProblems(ctx context.Context, query string, skip, limit int) (*domain.ProblemList, error) {
	q := pageQuery(skip, limit, 100)
	q.Set("q", query)
	var out domain.ProblemList
	if err := c.doJSON(ctx, http.MethodGet, "/problems/search/query", q, nil, &out); err != nil {
		return nil, fmt.Errorf("search problems: %w", err)
	}
	return &out, nil
}

func pageQuery(skip, limit, defaultLimit int) url.Values {
	if limit <= 0 {
		limit = defaultLimit
	}
	if skip < 0 {
		skip = 0
	}
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	return q
}
