package repositories

import (
	"database/sql"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
)

const syncJobColumns = `id, repository_id, job_type, status, backfill, error_message,
		prs_processed, started_at, completed_at, created_at, updated_at`

type SyncJobRepository struct {
	db DBTX
}

func NewSyncJobRepository(db DBTX) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (
			id, repository_id, job_type, status, backfill, error_message,
			prs_processed, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		job.ID, job.RepositoryID, job.JobType, job.Status, job.Backfill, job.ErrorMessage,
		job.PRsProcessed, job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt,
	)

	return err
}

func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	job.UpdatedAt = time.Now()

	query := `
		UPDATE sync_jobs SET
			repository_id = ?, status = ?, error_message = ?, prs_processed = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		job.RepositoryID, job.Status, job.ErrorMessage, job.PRsProcessed,
		job.StartedAt, job.CompletedAt, job.UpdatedAt, job.ID,
	)

	return err
}

// UpdatePRsProcessed bumps the poll-visible progress counter
func (r *SyncJobRepository) UpdatePRsProcessed(id string, prsProcessed int) error {
	query := `UPDATE sync_jobs SET prs_processed = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, prsProcessed, time.Now(), id)
	return err
}

func (r *SyncJobRepository) GetByID(id string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetNextPending returns the oldest pending job of the given type,
// nil when the queue is empty
func (r *SyncJobRepository) GetNextPending(jobType models.JobType) (*models.SyncJob, error) {
	query := `
		SELECT ` + syncJobColumns + ` FROM sync_jobs
		WHERE job_type = ? AND status = ?
		ORDER BY created_at ASC LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, jobType, models.JobStatusPending))
}

func (r *SyncJobRepository) GetRecent(limit int) ([]*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// HasActive reports whether a pending or running job of the given type
// exists for the given scope. A nil repositoryID matches the
// whole-fleet scope.
func (r *SyncJobRepository) HasActive(jobType models.JobType, repositoryID *string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM sync_jobs
		WHERE job_type = ? AND status IN (?, ?)
	`
	args := []interface{}{jobType, models.JobStatusPending, models.JobStatusRunning}

	if repositoryID != nil {
		query += ` AND (repository_id = ? OR repository_id IS NULL)`
		args = append(args, *repositoryID)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

// FailOrphanedRunning marks jobs left RUNNING by a dead process as
// failed. Called once at startup.
func (r *SyncJobRepository) FailOrphanedRunning(message string) (int64, error) {
	now := time.Now()
	query := `
		UPDATE sync_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE status = ?
	`

	result, err := r.db.Exec(query, models.JobStatusFailed, message, now, now, models.JobStatusRunning)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *SyncJobRepository) scanOne(row *sql.Row) (*models.SyncJob, error) {
	var job models.SyncJob
	err := row.Scan(
		&job.ID, &job.RepositoryID, &job.JobType, &job.Status, &job.Backfill, &job.ErrorMessage,
		&job.PRsProcessed, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *SyncJobRepository) scanRow(rows *sql.Rows) (*models.SyncJob, error) {
	var job models.SyncJob
	err := rows.Scan(
		&job.ID, &job.RepositoryID, &job.JobType, &job.Status, &job.Backfill, &job.ErrorMessage,
		&job.PRsProcessed, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
