package services

import (
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/google/uuid"
)

// ParseTime converts an ISO-8601 timestamp to a time pointer. A nil,
// empty or malformed value maps to nil, never to a zero time.
func ParseTime(iso *string) *time.Time {
	if iso == nil || *iso == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *iso)
	if err != nil {
		return nil
	}
	return &t
}

// PublishedAt derives the first non-draft moment of a pull request:
// the first ready-for-review event if one exists, else the creation
// time when the PR is not a draft, else nil.
func PublishedAt(pr *PullRequestNode) *time.Time {
	if len(pr.TimelineItems.Nodes) > 0 {
		return ParseTime(&pr.TimelineItems.Nodes[0].CreatedAt)
	}
	if !pr.IsDraft {
		return ParseTime(&pr.CreatedAt)
	}
	return nil
}

// TransformPullRequest maps a wire-format pull request into a model
// row. Repository and author associations are set by the caller.
func TransformPullRequest(pr *PullRequestNode) *models.PullRequest {
	createdAt := ParseTime(&pr.CreatedAt)
	if createdAt == nil {
		now := time.Now()
		createdAt = &now
	}

	url := pr.URL
	return &models.PullRequest{
		ID:           uuid.New().String(),
		GithubID:     pr.DatabaseID,
		Number:       pr.Number,
		Title:        pr.Title,
		State:        pr.State,
		IsDraft:      pr.IsDraft,
		CreatedAt:    *createdAt,
		PublishedAt:  PublishedAt(pr),
		MergedAt:     ParseTime(pr.MergedAt),
		ClosedAt:     ParseTime(pr.ClosedAt),
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
		URL:          &url,
	}
}

// TransformReview maps a wire-format review into a model row
func TransformReview(review *ReviewNode) *models.PRReview {
	return &models.PRReview{
		ID:          uuid.New().String(),
		GithubID:    review.DatabaseID,
		State:       review.State,
		SubmittedAt: ParseTime(review.SubmittedAt),
	}
}

// ComputeFilteredStats sums additions and deletions over the
// non-excluded files of a pull request
func ComputeFilteredStats(files []*models.PRFile) (int, int) {
	filteredAdditions := 0
	filteredDeletions := 0
	for _, f := range files {
		if !f.IsExcluded {
			filteredAdditions += f.Additions
			filteredDeletions += f.Deletions
		}
	}
	return filteredAdditions, filteredDeletions
}
