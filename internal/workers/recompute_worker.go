package workers

import (
	"context"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/sirupsen/logrus"
)

// RecomputeWorker polls for pending filtered-stats recompute jobs.
// Recomputes are idempotent over current file rows, so racing with an
// in-progress sync is tolerated.
type RecomputeWorker struct {
	*BaseWorker
	jobRepo          *repositories.SyncJobRepository
	exclusionService *services.ExclusionService
}

func NewRecomputeWorker(workerID string, jobRepo *repositories.SyncJobRepository, exclusionService *services.ExclusionService) *RecomputeWorker {
	return &RecomputeWorker{
		BaseWorker:       NewBaseWorker(workerID, models.JobTypeRecompute),
		jobRepo:          jobRepo,
		exclusionService: exclusionService,
	}
}

// Start begins the recompute worker's polling loop
func (w *RecomputeWorker) Start(ctx context.Context) error {
	w.Running = true
	log := logger.WithField("worker", w.WorkerID)
	log.Info("Recompute worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Recompute worker stopping due to context cancellation")
			return ctx.Err()
		case <-w.StopChan:
			log.Info("Recompute worker stopping")
			return nil
		default:
			job, err := w.jobRepo.GetNextPending(models.JobTypeRecompute)
			if err != nil {
				log.WithError(err).Error("Failed to fetch next recompute job")
				time.Sleep(5 * time.Second)
				continue
			}

			if job == nil {
				time.Sleep(10 * time.Second)
				continue
			}

			w.processJob(job, log)
		}
	}
}

func (w *RecomputeWorker) processJob(job *models.SyncJob, log *logrus.Entry) {
	log = log.WithField("job_id", job.ID)
	log.Info("Processing recompute job")

	job.MarkStarted()
	if err := w.jobRepo.Update(job); err != nil {
		log.WithError(err).Error("Failed to update recompute job")
		return
	}

	if err := w.exclusionService.RecomputeAll(); err != nil {
		log.WithError(err).Error("Recompute job failed")
		job.SetError(err.Error())
		job.MarkFailed()
		if uerr := w.jobRepo.Update(job); uerr != nil {
			log.WithError(uerr).Error("Failed to mark recompute job as failed")
		}
		return
	}

	job.MarkCompleted()
	if err := w.jobRepo.Update(job); err != nil {
		log.WithError(err).Error("Failed to mark recompute job as completed")
		return
	}
	log.Info("Recompute job completed")
}
