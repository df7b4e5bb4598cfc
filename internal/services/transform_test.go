package services

import (
	"testing"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseTime(t *testing.T) {
	testCases := []struct {
		name  string
		input *string
		want  *time.Time
	}{
		{name: "nil input", input: nil, want: nil},
		{name: "empty string", input: strPtr(""), want: nil},
		{name: "malformed", input: strPtr("yesterday"), want: nil},
		{
			name:  "valid timestamp",
			input: strPtr("2026-03-01T12:00:00Z"),
			want:  timePtr(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTime(tc.input)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.True(t, got.Equal(*tc.want))
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestPublishedAt(t *testing.T) {
	t.Run("ready for review event wins", func(t *testing.T) {
		pr := &PullRequestNode{
			IsDraft:   false,
			CreatedAt: "2026-01-01T00:00:00Z",
		}
		pr.TimelineItems.Nodes = []TimelineEventNode{{CreatedAt: "2026-01-03T00:00:00Z"}}

		got := PublishedAt(pr)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.Day())
	})

	t.Run("non-draft falls back to creation time", func(t *testing.T) {
		pr := &PullRequestNode{
			IsDraft:   false,
			CreatedAt: "2026-01-01T00:00:00Z",
		}

		got := PublishedAt(pr)
		require.NotNil(t, got)
		assert.Equal(t, 1, got.Day())
	})

	t.Run("draft without event has no published time", func(t *testing.T) {
		pr := &PullRequestNode{
			IsDraft:   true,
			CreatedAt: "2026-01-01T00:00:00Z",
		}

		assert.Nil(t, PublishedAt(pr))
	})
}

func TestTransformPullRequest(t *testing.T) {
	pr := &PullRequestNode{
		ID:           "PR_node1",
		DatabaseID:   12345,
		Number:       7,
		Title:        "Add parser",
		State:        models.PRStateMerged,
		IsDraft:      false,
		CreatedAt:    "2026-02-01T10:00:00Z",
		UpdatedAt:    "2026-02-02T10:00:00Z",
		MergedAt:     strPtr("2026-02-02T09:00:00Z"),
		ClosedAt:     strPtr("2026-02-02T09:00:00Z"),
		Additions:    120,
		Deletions:    30,
		ChangedFiles: 4,
		URL:          "https://example.com/pr/7",
	}

	row := TransformPullRequest(pr)

	assert.NotEmpty(t, row.ID)
	assert.Equal(t, int64(12345), row.GithubID)
	assert.Equal(t, 7, row.Number)
	assert.Equal(t, models.PRStateMerged, row.State)
	require.NotNil(t, row.MergedAt)
	assert.Equal(t, 2, row.MergedAt.Day())
	require.NotNil(t, row.PublishedAt)
	assert.Equal(t, 120, row.Additions)
	require.NotNil(t, row.URL)
	assert.Equal(t, "https://example.com/pr/7", *row.URL)
	assert.True(t, row.IsMerged())
}

func TestTransformReview(t *testing.T) {
	id := int64(99)
	review := &ReviewNode{
		ID:          "REV_node1",
		DatabaseID:  &id,
		State:       "APPROVED",
		SubmittedAt: strPtr("2026-02-02T08:00:00Z"),
	}

	row := TransformReview(review)

	assert.NotEmpty(t, row.ID)
	require.NotNil(t, row.GithubID)
	assert.Equal(t, int64(99), *row.GithubID)
	assert.Equal(t, "APPROVED", row.State)
	require.NotNil(t, row.SubmittedAt)

	pending := &ReviewNode{ID: "REV_node2", State: "PENDING"}
	row = TransformReview(pending)
	assert.Nil(t, row.GithubID)
	assert.Nil(t, row.SubmittedAt)
}

func TestComputeFilteredStats(t *testing.T) {
	files := []*models.PRFile{
		{Filename: "main.go", Additions: 100, Deletions: 20},
		{Filename: "go.sum", Additions: 500, Deletions: 300, IsExcluded: true},
		{Filename: "util.go", Additions: 10, Deletions: 5},
	}

	additions, deletions := ComputeFilteredStats(files)
	assert.Equal(t, 110, additions)
	assert.Equal(t, 25, deletions)

	additions, deletions = ComputeFilteredStats(nil)
	assert.Equal(t, 0, additions)
	assert.Equal(t, 0, deletions)
}
