package repositories

import (
	"database/sql"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
)

type RepositoryRepository struct {
	db DBTX
}

func NewRepositoryRepository(db DBTX) *RepositoryRepository {
	return &RepositoryRepository{db: db}
}

func (r *RepositoryRepository) Create(repo *models.Repository) error {
	query := `
		INSERT INTO repositories (id, owner, name, full_name, added_at, last_synced_at, sync_cursor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		repo.ID, repo.Owner, repo.Name, repo.FullName, repo.AddedAt, repo.LastSyncedAt, repo.SyncCursor,
	)

	return err
}

func (r *RepositoryRepository) GetByID(id string) (*models.Repository, error) {
	query := `SELECT id, owner, name, full_name, added_at, last_synced_at, sync_cursor FROM repositories WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

func (r *RepositoryRepository) GetByFullName(fullName string) (*models.Repository, error) {
	query := `SELECT id, owner, name, full_name, added_at, last_synced_at, sync_cursor FROM repositories WHERE full_name = ?`
	return r.scanOne(r.db.QueryRow(query, fullName))
}

func (r *RepositoryRepository) GetAll() ([]*models.Repository, error) {
	query := `SELECT id, owner, name, full_name, added_at, last_synced_at, sync_cursor FROM repositories ORDER BY full_name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repositories []*models.Repository
	for rows.Next() {
		var repo models.Repository
		err := rows.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.FullName, &repo.AddedAt, &repo.LastSyncedAt, &repo.SyncCursor)
		if err != nil {
			return nil, err
		}
		repositories = append(repositories, &repo)
	}

	return repositories, rows.Err()
}

// UpdateLastSynced stamps a successful sync. The cursor is stored
// opaquely and never read back by the engine.
func (r *RepositoryRepository) UpdateLastSynced(id string, lastSyncedAt time.Time, cursor *string) error {
	query := `UPDATE repositories SET last_synced_at = ?, sync_cursor = ? WHERE id = ?`
	_, err := r.db.Exec(query, lastSyncedAt, cursor, id)
	return err
}

// ClearLastSynced resets the sync marker so the next sync is treated as initial
func (r *RepositoryRepository) ClearLastSynced(id string) error {
	query := `UPDATE repositories SET last_synced_at = NULL WHERE id = ?`
	_, err := r.db.Exec(query, id)
	return err
}

// Delete removes a repository; PRs, files and reviews cascade
func (r *RepositoryRepository) Delete(id string) error {
	query := `DELETE FROM repositories WHERE id = ?`
	_, err := r.db.Exec(query, id)
	return err
}

func (r *RepositoryRepository) scanOne(row *sql.Row) (*models.Repository, error) {
	var repo models.Repository
	err := row.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.FullName, &repo.AddedAt, &repo.LastSyncedAt, &repo.SyncCursor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}
