package services

import (
	"errors"
	"fmt"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
)

// ErrJobAlreadyQueued signals that an equivalent job is pending or running
var ErrJobAlreadyQueued = errors.New("an equivalent job is already pending or running")

// JobService enqueues background jobs and rejects duplicates
type JobService struct {
	jobRepo *repositories.SyncJobRepository
}

func NewJobService(jobRepo *repositories.SyncJobRepository) *JobService {
	return &JobService{jobRepo: jobRepo}
}

// EnqueueSync queues a sync for one repository, or for the whole fleet
// when repositoryID is nil. Conflicts with any active sync job that
// overlaps the scope.
func (s *JobService) EnqueueSync(repositoryID *string, backfill bool) (*models.SyncJob, error) {
	hasActive, err := s.jobRepo.HasActive(models.JobTypeSync, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	if hasActive {
		return nil, ErrJobAlreadyQueued
	}

	job := models.NewSyncJob(models.JobTypeSync, repositoryID)
	job.Backfill = backfill

	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	return job, nil
}

// EnqueueRecompute queues a filtered-stats recompute pass
func (s *JobService) EnqueueRecompute() (*models.SyncJob, error) {
	return s.enqueue(models.JobTypeRecompute)
}

// EnqueueUsageSync queues a usage-metering sync
func (s *JobService) EnqueueUsageSync() (*models.SyncJob, error) {
	return s.enqueue(models.JobTypeUsageSync)
}

func (s *JobService) enqueue(jobType models.JobType) (*models.SyncJob, error) {
	hasActive, err := s.jobRepo.HasActive(jobType, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	if hasActive {
		return nil, ErrJobAlreadyQueued
	}

	job := models.NewSyncJob(jobType, nil)
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	return job, nil
}
