package models

import (
	"time"
)

// Pull request states as reported by GitHub
const (
	PRStateOpen   = "OPEN"
	PRStateMerged = "MERGED"
	PRStateClosed = "CLOSED"
)

// PullRequest represents a GitHub pull request. GithubID is the sole
// identity used to decide insert vs. update.
type PullRequest struct {
	ID           string     `json:"id"`
	GithubID     int64      `json:"github_id"`
	RepositoryID string     `json:"repository_id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	AuthorID     *string    `json:"author_id"` // nil for deleted accounts
	State        string     `json:"state"`
	IsDraft      bool       `json:"is_draft"`
	CreatedAt    time.Time  `json:"created_at"`
	PublishedAt  *time.Time `json:"published_at"` // first non-draft moment
	MergedAt     *time.Time `json:"merged_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	// Filtered counts exclude glob-matched files and are the
	// authoritative size metric for all analytics.
	FilteredAdditions int     `json:"filtered_additions"`
	FilteredDeletions int     `json:"filtered_deletions"`
	URL               *string `json:"url"`
}

// IsMerged checks if the pull request has been merged
func (pr *PullRequest) IsMerged() bool {
	return pr.State == PRStateMerged
}
