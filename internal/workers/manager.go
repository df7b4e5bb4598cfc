package workers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// WorkerManager manages multiple workers of different types
type WorkerManager struct {
	workers          []Worker
	jobRepo          *repositories.SyncJobRepository
	syncService      *services.SyncService
	exclusionService *services.ExclusionService
	usageService     *services.UsageService
	wg               sync.WaitGroup
	ctx              context.Context
	cancel           context.CancelFunc
}

func NewWorkerManager(
	jobRepo *repositories.SyncJobRepository,
	syncService *services.SyncService,
	exclusionService *services.ExclusionService,
	usageService *services.UsageService,
) *WorkerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerManager{
		workers:          make([]Worker, 0),
		jobRepo:          jobRepo,
		syncService:      syncService,
		exclusionService: exclusionService,
		usageService:     usageService,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// StartAll starts all workers based on environment configuration.
// Sync workers default to 1: the scope lock serializes sync runs, so
// extra sync workers only help drain rejected duplicates faster.
func (wm *WorkerManager) StartAll() error {
	syncWorkers := wm.getWorkerCount("SYNC_WORKERS", 1)
	recomputeWorkers := wm.getWorkerCount("RECOMPUTE_WORKERS", 1)
	usageWorkers := wm.getWorkerCount("USAGE_WORKERS", 1)

	logger.Infof("Starting workers - Sync: %d, Recompute: %d, Usage: %d",
		syncWorkers, recomputeWorkers, usageWorkers)

	for i := 0; i < syncWorkers; i++ {
		worker := NewSyncWorker(fmt.Sprintf("sync-%d", i+1), wm.jobRepo, wm.syncService)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	for i := 0; i < recomputeWorkers; i++ {
		worker := NewRecomputeWorker(fmt.Sprintf("recompute-%d", i+1), wm.jobRepo, wm.exclusionService)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	for i := 0; i < usageWorkers; i++ {
		worker := NewUsageWorker(fmt.Sprintf("usage-%d", i+1), wm.jobRepo, wm.usageService)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	logger.Infof("Started %d total workers", len(wm.workers))
	return nil
}

// StopAll gracefully stops all workers
func (wm *WorkerManager) StopAll() error {
	logger.Info("Stopping all workers...")

	wm.cancel()

	for _, worker := range wm.workers {
		if err := worker.Stop(); err != nil {
			logger.WithError(err).Errorf("Error stopping worker %s", worker.GetWorkerID())
		}
	}

	wm.wg.Wait()

	logger.Info("All workers stopped")
	return nil
}

func (wm *WorkerManager) getWorkerCount(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if count, err := strconv.Atoi(value); err == nil && count > 0 {
			return count
		}
		logger.Warnf("Invalid value for %s, using default: %d", envVar, defaultValue)
	}
	return defaultValue
}

func (wm *WorkerManager) startWorker(worker Worker) {
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		if err := worker.Start(wm.ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Errorf("Worker %s stopped with error", worker.GetWorkerID())
		}
	}()
}
