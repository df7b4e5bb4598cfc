package repositories

import (
	"github.com/alimgiray/prpulse/internal/models"
)

type PRFileRepository struct {
	db DBTX
}

func NewPRFileRepository(db DBTX) *PRFileRepository {
	return &PRFileRepository{db: db}
}

func (r *PRFileRepository) Create(file *models.PRFile) error {
	query := `
		INSERT INTO pr_files (id, pull_request_id, filename, status, additions, deletions, is_excluded, patch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		file.ID, file.PullRequestID, file.Filename, file.Status,
		file.Additions, file.Deletions, file.IsExcluded, file.Patch,
	)

	return err
}

func (r *PRFileRepository) GetByPullRequestID(pullRequestID string) ([]*models.PRFile, error) {
	query := `
		SELECT id, pull_request_id, filename, status, additions, deletions, is_excluded, patch
		FROM pr_files WHERE pull_request_id = ?
	`

	rows, err := r.db.Query(query, pullRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.PRFile
	for rows.Next() {
		var file models.PRFile
		err := rows.Scan(&file.ID, &file.PullRequestID, &file.Filename, &file.Status,
			&file.Additions, &file.Deletions, &file.IsExcluded, &file.Patch)
		if err != nil {
			return nil, err
		}
		files = append(files, &file)
	}

	return files, rows.Err()
}

func (r *PRFileRepository) GetAll() ([]*models.PRFile, error) {
	query := `SELECT id, pull_request_id, filename, status, additions, deletions, is_excluded, patch FROM pr_files`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.PRFile
	for rows.Next() {
		var file models.PRFile
		err := rows.Scan(&file.ID, &file.PullRequestID, &file.Filename, &file.Status,
			&file.Additions, &file.Deletions, &file.IsExcluded, &file.Patch)
		if err != nil {
			return nil, err
		}
		files = append(files, &file)
	}

	return files, rows.Err()
}

// GetAllNonExcluded returns every file that currently counts toward
// filtered stats, for the churn engine
func (r *PRFileRepository) GetAllNonExcluded() ([]*models.PRFile, error) {
	query := `
		SELECT id, pull_request_id, filename, status, additions, deletions, is_excluded, patch
		FROM pr_files WHERE is_excluded = 0
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.PRFile
	for rows.Next() {
		var file models.PRFile
		err := rows.Scan(&file.ID, &file.PullRequestID, &file.Filename, &file.Status,
			&file.Additions, &file.Deletions, &file.IsExcluded, &file.Patch)
		if err != nil {
			return nil, err
		}
		files = append(files, &file)
	}

	return files, rows.Err()
}

// DeleteByPullRequestID clears a PR's file set before a re-fetch
func (r *PRFileRepository) DeleteByPullRequestID(pullRequestID string) error {
	query := `DELETE FROM pr_files WHERE pull_request_id = ?`
	_, err := r.db.Exec(query, pullRequestID)
	return err
}

// UpdateExcluded retags a single file against the current glob set
func (r *PRFileRepository) UpdateExcluded(id string, isExcluded bool) error {
	query := `UPDATE pr_files SET is_excluded = ? WHERE id = ?`
	_, err := r.db.Exec(query, isExcluded, id)
	return err
}

// ClearAllExcluded resets every exclusion flag, used when the glob
// list becomes empty
func (r *PRFileRepository) ClearAllExcluded() error {
	query := `UPDATE pr_files SET is_excluded = 0`
	_, err := r.db.Exec(query)
	return err
}
