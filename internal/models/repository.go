package models

import (
	"time"

	"github.com/google/uuid"
)

// Repository represents a tracked GitHub repository
type Repository struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner"`
	Name         string     `json:"name"`
	FullName     string     `json:"full_name"`
	AddedAt      time.Time  `json:"added_at"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	// SyncCursor is written at the end of a sync but never read back;
	// reserved for resumable pagination.
	SyncCursor *string `json:"sync_cursor"`
}

// NewRepository creates a new Repository with a generated UUID
func NewRepository(owner, name string) *Repository {
	return &Repository{
		ID:       uuid.New().String(),
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
		AddedAt:  time.Now(),
	}
}
