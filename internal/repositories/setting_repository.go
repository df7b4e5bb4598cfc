package repositories

import (
	"database/sql"
)

type SettingRepository struct {
	db DBTX
}

func NewSettingRepository(db DBTX) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the value for a key, nil when the key is absent
func (r *SettingRepository) Get(key string) (*string, error) {
	query := `SELECT value FROM settings WHERE key = ?`

	var value sql.NullString
	err := r.db.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !value.Valid {
		return nil, nil
	}
	return &value.String, nil
}

func (r *SettingRepository) Set(key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := r.db.Exec(query, key, value)
	return err
}

func (r *SettingRepository) Delete(key string) error {
	query := `DELETE FROM settings WHERE key = ?`
	_, err := r.db.Exec(query, key)
	return err
}
