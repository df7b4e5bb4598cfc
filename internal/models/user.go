package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a GitHub account observed as a PR author or reviewer.
// Users are created lazily on first sighting and never deleted by sync.
type User struct {
	ID          string     `json:"id"`
	GithubLogin string     `json:"github_login"`
	GithubID    *int64     `json:"github_id"`
	AvatarURL   *string    `json:"avatar_url"`
	Email       *string    `json:"email"` // joins usage-metering records
	FirstSeenAt time.Time  `json:"first_seen_at"`
}

// NewUser creates a new User with a generated UUID
func NewUser(githubLogin string) *User {
	return &User{
		ID:          uuid.New().String(),
		GithubLogin: githubLogin,
		FirstSeenAt: time.Now(),
	}
}
