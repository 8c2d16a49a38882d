package domain

import (
	"time"
)

// Problem is a practice question.
type Problem struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Difficulty    string    `json:"difficulty"`
	Categories    []string  `json:"categories"`
	EstimatedTime string    `json:"estimated_time"`
	Requirements  []string  `json:"requirements"`
	Constraints   []string  `json:"constraints"`
	Hints         []string  `json:"hints"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProblemList is a page of problems.
type ProblemList struct {
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
	Problems []Problem `json:"problems"`
}

// Submission is a stored, scored attempt.
type Submission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	ProblemID   string           `json:"problem_id"`
	SessionID   string           `json:"session_id,omitempty"`
	DiagramData Diagram          `json:"diagram_data"`
	TimeSpent   int              `json:"time_spent"`
	Result      SubmissionResult `json:"result"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// SubmissionList is a page of submissions.
type SubmissionList struct {
	Total       int          `json:"total"`
	Skip        int          `json:"skip"`
	Limit       int          `json:"limit"`
	Submissions []Submission `json:"submissions"`
}
