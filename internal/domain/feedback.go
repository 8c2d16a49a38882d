package domain

import (
	"slices"
	"time"
)

// CheckFeedback is the non-final AI review of the current diagram.
type CheckFeedback struct {
	Implemented []string  `json:"implemented"`
	Missing     []string  `json:"missing"`
	NextSteps   []string  `json:"next_steps"`
	DiagramHash string    `json:"diagram_hash,omitempty"`
	Cached      bool      `json:"cached"`
	Timestamp   time.Time `json:"timestamp"`
}

// Clone returns a copy that shares no slices with f.
func (f CheckFeedback) Clone() CheckFeedback {
	f.Implemented = slices.Clone(f.Implemented)
	f.Missing = slices.Clone(f.Missing)
	f.NextSteps = slices.Clone(f.NextSteps)
	return f
}

// CheckResponse is the wire shape of POST /sessions/{id}/check.
type CheckResponse struct {
	Feedback struct {
		Implemented []string `json:"implemented"`
		Missing     []string `json:"missing"`
		NextSteps   []string `json:"next_steps"`
	} `json:"feedback"`
	DiagramHash string    `json:"diagram_hash"`
	Cached      bool      `json:"cached"`
	Timestamp   time.Time `json:"timestamp"`
}

// Flatten converts the wire response into CheckFeedback.
func (r CheckResponse) Flatten() CheckFeedback {
	return CheckFeedback{
		Implemented: r.Feedback.Implemented,
		Missing:     r.Feedback.Missing,
		NextSteps:   r.Feedback.NextSteps,
		DiagramHash: r.DiagramHash,
		Cached:      r.Cached,
		Timestamp:   r.Timestamp,
	}
}

// SubmissionResult is the final scored evaluation. It is immutable once
// received; use Clone before handing it to another owner.
type SubmissionResult struct {
	Score        int                `json:"score"`
	MaxScore     int                `json:"max_score"`
	Feedback     SubmissionFeedback `json:"feedback"`
	Resources    Resources          `json:"resources"`
	Tips         []string           `json:"tips"`
	SubmissionID string             `json:"submission_id,omitempty"`
}

// SubmissionFeedback holds the qualitative part of a submission result.
type SubmissionFeedback struct {
	Strengths   []string `json:"strengths,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
	Implemented []string `json:"implemented,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}

// Resources are follow-up learning links.
type Resources struct {
	Videos []Resource `json:"videos,omitempty"`
	Docs   []Resource `json:"docs,omitempty"`
}

// Resource is one learning link.
type Resource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Percent returns the score as a percentage of the maximum.
func (r SubmissionResult) Percent() int {
	if r.MaxScore <= 0 {
		return 0
	}
	return r.Score * 100 / r.MaxScore
}

// Clone returns a deep copy of the result.
func (r SubmissionResult) Clone() SubmissionResult {
	r.Feedback.Strengths = slices.Clone(r.Feedback.Strengths)
	r.Feedback.Weaknesses = slices.Clone(r.Feedback.Weaknesses)
	r.Feedback.Implemented = slices.Clone(r.Feedback.Implemented)
	r.Feedback.Missing = slices.Clone(r.Feedback.Missing)
	r.Resources.Videos = slices.Clone(r.Resources.Videos)
	r.Resources.Docs = slices.Clone(r.Resources.Docs)
	r.Tips = slices.Clone(r.Tips)
	return r
}
