package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ashureev/designdrill/internal/domain"
)

// MySubmissions lists the caller's scored submissions.
func (c *Client) MySubmissions(ctx context.Context, skip, limit int) (*domain.SubmissionList, error) {
	var out domain.SubmissionList
	if err := c.doJSON(ctx, http.MethodGet, "/submissions/user/my-submissions", pageQuery(skip, limit, 100), nil, &out); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return &out, nil
}

// GetSubmission fetches one submission.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	var out domain.Submission
	if err := c.doJSON(ctx, http.MethodGet, "/submissions/"+url.PathEscape(submissionID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &out, nil
}
