package models

import (
	"github.com/google/uuid"
)

// PRFile represents one file touched by a pull request. The file set of
// a PR is replaced wholesale whenever it is re-fetched.
type PRFile struct {
	ID            string  `json:"id"`
	PullRequestID string  `json:"pull_request_id"`
	Filename      string  `json:"filename"`
	Status        *string `json:"status"`
	Additions     int     `json:"additions"`
	Deletions     int     `json:"deletions"`
	IsExcluded    bool    `json:"is_excluded"`
	Patch         *string `json:"patch"`
}

// NewPRFile creates a new PRFile with a generated UUID
func NewPRFile(pullRequestID, filename string) *PRFile {
	return &PRFile{
		ID:            uuid.New().String(),
		PullRequestID: pullRequestID,
		Filename:      filename,
	}
}
