package repositories

import (
	"time"

	"github.com/alimgiray/prpulse/internal/models"
)

type PRReviewRepository struct {
	db DBTX
}

func NewPRReviewRepository(db DBTX) *PRReviewRepository {
	return &PRReviewRepository{db: db}
}

func (r *PRReviewRepository) Create(review *models.PRReview) error {
	query := `
		INSERT INTO pr_reviews (id, pull_request_id, reviewer_id, github_id, state, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		review.ID, review.PullRequestID, review.ReviewerID, review.GithubID, review.State, review.SubmittedAt,
	)

	return err
}

// ExistsByGithubID checks whether a review was already ingested.
// Reviews are insert-once; they are never updated afterwards.
func (r *PRReviewRepository) ExistsByGithubID(githubID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM pr_reviews WHERE github_id = ?`

	var count int
	if err := r.db.QueryRow(query, githubID).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *PRReviewRepository) GetByPullRequestID(pullRequestID string) ([]*models.PRReview, error) {
	query := `
		SELECT id, pull_request_id, reviewer_id, github_id, state, submitted_at
		FROM pr_reviews WHERE pull_request_id = ?
	`

	rows, err := r.db.Query(query, pullRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*models.PRReview
	for rows.Next() {
		var review models.PRReview
		err := rows.Scan(&review.ID, &review.PullRequestID, &review.ReviewerID,
			&review.GithubID, &review.State, &review.SubmittedAt)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, &review)
	}

	return reviews, rows.Err()
}

// CountSubmittedByReviewer aggregates submitted review counts per reviewer login
func (r *PRReviewRepository) CountSubmittedByReviewer(start, end time.Time) ([]*models.PersonMetric, error) {
	query := `
		SELECT u.github_login, u.avatar_url, COUNT(*)
		FROM pr_reviews rv
		INNER JOIN users u ON rv.reviewer_id = u.id
		WHERE rv.submitted_at IS NOT NULL AND rv.submitted_at >= ? AND rv.submitted_at <= ?
		GROUP BY u.github_login
	`

	rows, err := r.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.PersonMetric
	for rows.Next() {
		var m models.PersonMetric
		if err := rows.Scan(&m.Login, &m.AvatarURL, &m.Value); err != nil {
			return nil, err
		}
		metrics = append(metrics, &m)
	}

	return metrics, rows.Err()
}
