package workers

import (
	"context"
	"errors"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// SyncWorker polls for pending sync jobs and runs them through the
// sync engine
type SyncWorker struct {
	*BaseWorker
	jobRepo     *repositories.SyncJobRepository
	syncService *services.SyncService
}

func NewSyncWorker(workerID string, jobRepo *repositories.SyncJobRepository, syncService *services.SyncService) *SyncWorker {
	return &SyncWorker{
		BaseWorker:  NewBaseWorker(workerID, models.JobTypeSync),
		jobRepo:     jobRepo,
		syncService: syncService,
	}
}

// Start begins the sync worker's polling loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.Running = true
	log := logger.WithField("worker", w.WorkerID)
	log.Info("Sync worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Sync worker stopping due to context cancellation")
			return ctx.Err()
		case <-w.StopChan:
			log.Info("Sync worker stopping")
			return nil
		default:
			job, err := w.jobRepo.GetNextPending(models.JobTypeSync)
			if err != nil {
				log.WithError(err).Error("Failed to fetch next sync job")
				time.Sleep(5 * time.Second)
				continue
			}

			if job == nil {
				time.Sleep(10 * time.Second)
				continue
			}

			log.WithField("job_id", job.ID).Info("Processing sync job")
			if err := w.syncService.Run(ctx, job); err != nil {
				if errors.Is(err, services.ErrSyncInProgress) {
					log.WithField("job_id", job.ID).Warn("Sync job rejected, another sync holds the lock")
				} else {
					log.WithError(err).WithField("job_id", job.ID).Error("Sync job failed")
				}
				continue
			}
			log.WithField("job_id", job.ID).Info("Sync job completed")
		}
	}
}
