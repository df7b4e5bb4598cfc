package repositories

import (
	"database/sql"

	"github.com/alimgiray/prpulse/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	query := `
		INSERT INTO users (id, github_login, github_id, avatar_url, email, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		user.ID, user.GithubLogin, user.GithubID, user.AvatarURL, user.Email, user.FirstSeenAt,
	)

	return err
}

func (r *UserRepository) GetByID(id string) (*models.User, error) {
	query := `SELECT id, github_login, github_id, avatar_url, email, first_seen_at FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

func (r *UserRepository) GetByLogin(githubLogin string) (*models.User, error) {
	query := `SELECT id, github_login, github_id, avatar_url, email, first_seen_at FROM users WHERE github_login = ?`
	return r.scanOne(r.db.QueryRow(query, githubLogin))
}

func (r *UserRepository) GetAll() ([]*models.User, error) {
	query := `SELECT id, github_login, github_id, avatar_url, email, first_seen_at FROM users ORDER BY github_login`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(&user.ID, &user.GithubLogin, &user.GithubID, &user.AvatarURL, &user.Email, &user.FirstSeenAt)
		if err != nil {
			return nil, err
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// UpdateAvatar refreshes the avatar URL on a later sighting
func (r *UserRepository) UpdateAvatar(id string, avatarURL string) error {
	query := `UPDATE users SET avatar_url = ? WHERE id = ?`
	_, err := r.db.Exec(query, avatarURL, id)
	return err
}

// UpdateEmail associates an email used to join usage-metering data
func (r *UserRepository) UpdateEmail(id string, email string) error {
	query := `UPDATE users SET email = ? WHERE id = ?`
	_, err := r.db.Exec(query, email, id)
	return err
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.GithubLogin, &user.GithubID, &user.AvatarURL, &user.Email, &user.FirstSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
