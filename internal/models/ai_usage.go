package models

import (
	"github.com/google/uuid"
)

// AIUsage is one daily per-actor usage-metering record, keyed by
// (email, date). Joined to users via their email.
type AIUsage struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Date              string `json:"date"` // YYYY-MM-DD
	NumSessions       int    `json:"num_sessions"`
	LinesAdded        int    `json:"lines_added"`
	LinesRemoved      int    `json:"lines_removed"`
	Commits           int    `json:"commits"`
	PullRequests      int    `json:"pull_requests"`
	EditAccepted      int    `json:"edit_accepted"`
	EditRejected      int    `json:"edit_rejected"`
	WriteAccepted     int    `json:"write_accepted"`
	WriteRejected     int    `json:"write_rejected"`
	MultiEditAccepted int    `json:"multi_edit_accepted"`
	MultiEditRejected int    `json:"multi_edit_rejected"`
}

// NewAIUsage creates a new AIUsage with a generated UUID
func NewAIUsage(email, date string) *AIUsage {
	return &AIUsage{
		ID:    uuid.New().String(),
		Email: email,
		Date:  date,
	}
}
