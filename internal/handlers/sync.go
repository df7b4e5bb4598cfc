package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	jobService *services.JobService
	jobRepo    *repositories.SyncJobRepository
	repoRepo   *repositories.RepositoryRepository
	lock       *services.SyncLockService
}

func NewSyncHandler(
	jobService *services.JobService,
	jobRepo *repositories.SyncJobRepository,
	repoRepo *repositories.RepositoryRepository,
	lock *services.SyncLockService,
) *SyncHandler {
	return &SyncHandler{
		jobService: jobService,
		jobRepo:    jobRepo,
		repoRepo:   repoRepo,
		lock:       lock,
	}
}

// TriggerSync queues a sync for one repository. A second sync request
// while one is active is rejected with a conflict, not queued behind it.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	id := c.Param("id")

	repo, err := h.repoRepo.GetByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get repository: " + err.Error()})
		return
	}
	if repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Repository not found"})
		return
	}

	h.enqueue(c, &id)
}

// TriggerSyncAll queues a whole-fleet sync
func (h *SyncHandler) TriggerSyncAll(c *gin.Context) {
	h.enqueue(c, nil)
}

func (h *SyncHandler) enqueue(c *gin.Context, repositoryID *string) {
	backfill := c.Query("backfill") == "1" || c.Query("backfill") == "true"

	if h.lock.ActiveScope() != "" {
		c.JSON(http.StatusConflict, gin.H{"error": services.ErrSyncInProgress.Error()})
		return
	}

	job, err := h.jobService.EnqueueSync(repositoryID, backfill)
	if err != nil {
		if errors.Is(err, services.ErrJobAlreadyQueued) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue sync: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// GetJob returns one job row for progress polling
func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.jobRepo.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job: " + err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs returns the most recent jobs, newest first
func (h *SyncHandler) ListJobs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	jobs, err := h.jobRepo.GetRecent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
