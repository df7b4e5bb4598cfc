package models

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of background job
type JobType string

const (
	JobTypeSync      JobType = "sync"
	JobTypeRecompute JobType = "recompute"
	JobTypeUsageSync JobType = "usage_sync"
)

// JobStatus represents the status of a job. COMPLETED and FAILED are
// terminal; a job transitions only RUNNING -> {COMPLETED, FAILED}.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// SyncJob is the durable record of one background job invocation.
// PRsProcessed is updated incrementally and can be polled.
type SyncJob struct {
	ID           string     `json:"id"`
	RepositoryID *string    `json:"repository_id"` // nil for "sync all"
	JobType      JobType    `json:"job_type"`
	Status       JobStatus  `json:"status"`
	Backfill     bool       `json:"backfill"`
	ErrorMessage *string    `json:"error_message"`
	PRsProcessed int        `json:"prs_processed"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewSyncJob creates a new pending job with a generated UUID
func NewSyncJob(jobType JobType, repositoryID *string) *SyncJob {
	now := time.Now()
	return &SyncJob{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		JobType:      jobType,
		Status:       JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkStarted marks the job as running
func (j *SyncJob) MarkStarted() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *SyncJob) MarkCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed
func (j *SyncJob) MarkFailed() {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// SetError sets a human-readable error message on the job
func (j *SyncJob) SetError(message string) {
	j.ErrorMessage = &message
}

// IsActive checks whether the job is pending or running
func (j *SyncJob) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// IsTerminal checks whether the job reached a final state
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
