package models

import (
	"time"
)

// PRReview represents a GitHub pull request review. Reviews are
// inserted once by github_id and never updated.
type PRReview struct {
	ID            string     `json:"id"`
	PullRequestID string     `json:"pull_request_id"`
	ReviewerID    *string    `json:"reviewer_id"`
	GithubID      *int64     `json:"github_id"`
	State         string     `json:"state"`
	SubmittedAt   *time.Time `json:"submitted_at"` // nil for pending reviews
}
