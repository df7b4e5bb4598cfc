package repositories

import (
	"database/sql"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
)

const pullRequestColumns = `id, github_id, repository_id, number, title, author_id, state, is_draft,
		created_at, published_at, merged_at, closed_at, additions, deletions, changed_files,
		filtered_additions, filtered_deletions, url`

type PullRequestRepository struct {
	db DBTX
}

func NewPullRequestRepository(db DBTX) *PullRequestRepository {
	return &PullRequestRepository{db: db}
}

func (r *PullRequestRepository) Create(pr *models.PullRequest) error {
	query := `
		INSERT INTO pull_requests (
			id, github_id, repository_id, number, title, author_id, state, is_draft,
			created_at, published_at, merged_at, closed_at, additions, deletions, changed_files,
			filtered_additions, filtered_deletions, url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		pr.ID, pr.GithubID, pr.RepositoryID, pr.Number, pr.Title, pr.AuthorID, pr.State, pr.IsDraft,
		pr.CreatedAt, pr.PublishedAt, pr.MergedAt, pr.ClosedAt, pr.Additions, pr.Deletions, pr.ChangedFiles,
		pr.FilteredAdditions, pr.FilteredDeletions, pr.URL,
	)

	return err
}

// Update rewrites all mutable fields of an existing pull request.
// Filtered counts are carried as-is; UpdateFilteredStats owns them.
func (r *PullRequestRepository) Update(pr *models.PullRequest) error {
	query := `
		UPDATE pull_requests SET
			repository_id = ?, number = ?, title = ?, author_id = ?, state = ?, is_draft = ?,
			created_at = ?, published_at = ?, merged_at = ?, closed_at = ?,
			additions = ?, deletions = ?, changed_files = ?, url = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		pr.RepositoryID, pr.Number, pr.Title, pr.AuthorID, pr.State, pr.IsDraft,
		pr.CreatedAt, pr.PublishedAt, pr.MergedAt, pr.ClosedAt,
		pr.Additions, pr.Deletions, pr.ChangedFiles, pr.URL,
		pr.ID,
	)

	return err
}

func (r *PullRequestRepository) GetByID(id string) (*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM pull_requests WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByGithubID returns nil without error when the PR has not been seen yet
func (r *PullRequestRepository) GetByGithubID(githubID int64) (*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM pull_requests WHERE github_id = ?`
	return r.scanOne(r.db.QueryRow(query, githubID))
}

func (r *PullRequestRepository) GetByRepositoryID(repositoryID string) ([]*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM pull_requests WHERE repository_id = ? ORDER BY number DESC`

	rows, err := r.db.Query(query, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *PullRequestRepository) GetAll() ([]*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM pull_requests ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetAllIDs returns every pull request id, for recompute passes
func (r *PullRequestRepository) GetAllIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM pull_requests`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpdateFilteredStats writes back the filtered line counts for a PR
func (r *PullRequestRepository) UpdateFilteredStats(id string, filteredAdditions, filteredDeletions int) error {
	query := `UPDATE pull_requests SET filtered_additions = ?, filtered_deletions = ? WHERE id = ?`
	_, err := r.db.Exec(query, filteredAdditions, filteredDeletions, id)
	return err
}

// MergedPullRequest is the slim row shape used by the churn engine
type MergedPullRequest struct {
	ID       string
	MergedAt time.Time
}

// GetMergedBetween returns merged PRs in the window ordered by merge time
func (r *PullRequestRepository) GetMergedBetween(start, end time.Time) ([]*MergedPullRequest, error) {
	query := `
		SELECT id, merged_at FROM pull_requests
		WHERE state = ? AND merged_at IS NOT NULL AND merged_at >= ? AND merged_at <= ?
		ORDER BY merged_at
	`

	rows, err := r.db.Query(query, models.PRStateMerged, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []*MergedPullRequest
	for rows.Next() {
		var pr MergedPullRequest
		if err := rows.Scan(&pr.ID, &pr.MergedAt); err != nil {
			return nil, err
		}
		prs = append(prs, &pr)
	}

	return prs, rows.Err()
}

// CountMergedByAuthor aggregates merged PR counts per author login
func (r *PullRequestRepository) CountMergedByAuthor(start, end time.Time) ([]*models.PersonMetric, error) {
	query := `
		SELECT u.github_login, u.avatar_url, COUNT(*)
		FROM pull_requests pr
		INNER JOIN users u ON pr.author_id = u.id
		WHERE pr.state = ? AND pr.merged_at >= ? AND pr.merged_at <= ?
		GROUP BY u.github_login
	`

	return r.queryPersonMetrics(query, models.PRStateMerged, start, end)
}

// SumFilteredLinesByAuthor aggregates filtered additions+deletions per author
func (r *PullRequestRepository) SumFilteredLinesByAuthor(start, end time.Time) ([]*models.PersonMetric, error) {
	query := `
		SELECT u.github_login, u.avatar_url,
			COALESCE(SUM(pr.filtered_additions), 0) + COALESCE(SUM(pr.filtered_deletions), 0)
		FROM pull_requests pr
		INNER JOIN users u ON pr.author_id = u.id
		WHERE pr.state = ? AND pr.merged_at >= ? AND pr.merged_at <= ?
		GROUP BY u.github_login
	`

	return r.queryPersonMetrics(query, models.PRStateMerged, start, end)
}

// AuthoredMerge is one merged PR attributed to its author, for trend bucketing
type AuthoredMerge struct {
	Login     string
	AvatarURL *string
	MergedAt  time.Time
}

// GetMergedWithAuthorBetween returns merged PRs joined to their authors
func (r *PullRequestRepository) GetMergedWithAuthorBetween(start, end time.Time) ([]*AuthoredMerge, error) {
	query := `
		SELECT u.github_login, u.avatar_url, pr.merged_at
		FROM pull_requests pr
		INNER JOIN users u ON pr.author_id = u.id
		WHERE pr.state = ? AND pr.merged_at >= ? AND pr.merged_at <= ?
	`

	rows, err := r.db.Query(query, models.PRStateMerged, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merges []*AuthoredMerge
	for rows.Next() {
		var m AuthoredMerge
		if err := rows.Scan(&m.Login, &m.AvatarURL, &m.MergedAt); err != nil {
			return nil, err
		}
		merges = append(merges, &m)
	}

	return merges, rows.Err()
}

func (r *PullRequestRepository) queryPersonMetrics(query string, args ...interface{}) ([]*models.PersonMetric, error) {
	rows, err := r.db.Query(query, args...)
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

func (r *PullRequestRepository) scanOne(row *sql.Row) (*models.PullRequest, error) {
	var pr models.PullRequest
	err := row.Scan(
		&pr.ID, &pr.GithubID, &pr.RepositoryID, &pr.Number, &pr.Title, &pr.AuthorID, &pr.State, &pr.IsDraft,
		&pr.CreatedAt, &pr.PublishedAt, &pr.MergedAt, &pr.ClosedAt, &pr.Additions, &pr.Deletions, &pr.ChangedFiles,
		&pr.FilteredAdditions, &pr.FilteredDeletions, &pr.URL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (r *PullRequestRepository) scanAll(rows *sql.Rows) ([]*models.PullRequest, error) {
	var pullRequests []*models.PullRequest
	for rows.Next() {
		var pr models.PullRequest
		err := rows.Scan(
			&pr.ID, &pr.GithubID, &pr.RepositoryID, &pr.Number, &pr.Title, &pr.AuthorID, &pr.State, &pr.IsDraft,
			&pr.CreatedAt, &pr.PublishedAt, &pr.MergedAt, &pr.ClosedAt, &pr.Additions, &pr.Deletions, &pr.ChangedFiles,
			&pr.FilteredAdditions, &pr.FilteredDeletions, &pr.URL,
		)
		if err != nil {
			return nil, err
		}
		pullRequests = append(pullRequests, &pr)
	}

	return pullRequests, rows.Err()
}
