package workers

import (
	"context"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// UsageWorker polls for pending usage-metering sync jobs
type UsageWorker struct {
	*BaseWorker
	jobRepo      *repositories.SyncJobRepository
	usageService *services.UsageService
}

func NewUsageWorker(workerID string, jobRepo *repositories.SyncJobRepository, usageService *services.UsageService) *UsageWorker {
	return &UsageWorker{
		BaseWorker:   NewBaseWorker(workerID, models.JobTypeUsageSync),
		jobRepo:      jobRepo,
		usageService: usageService,
	}
}

// Start begins the usage worker's polling loop
func (w *UsageWorker) Start(ctx context.Context) error {
	w.Running = true
	log := logger.WithField("worker", w.WorkerID)
	log.Info("Usage worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Usage worker stopping due to context cancellation")
			return ctx.Err()
		case <-w.StopChan:
			log.Info("Usage worker stopping")
			return nil
		default:
			job, err := w.jobRepo.GetNextPending(models.JobTypeUsageSync)
			if err != nil {
				log.WithError(err).Error("Failed to fetch next usage job")
				time.Sleep(5 * time.Second)
				continue
			}

			if job == nil {
				time.Sleep(10 * time.Second)
				continue
			}

			log.WithField("job_id", job.ID).Info("Processing usage job")
			if err := w.usageService.Run(ctx, job); err != nil {
				log.WithError(err).WithField("job_id", job.ID).Error("Usage job failed")
				continue
			}
			log.WithField("job_id", job.ID).Info("Usage job completed")
		}
	}
}
