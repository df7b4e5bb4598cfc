package handlers

import (
	"net/http"
	"strings"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/gin-gonic/gin"
)

type RepositoryHandler struct {
	repoRepo *repositories.RepositoryRepository
}

func NewRepositoryHandler(repoRepo *repositories.RepositoryRepository) *RepositoryHandler {
	return &RepositoryHandler{repoRepo: repoRepo}
}

type addRepositoryRequest struct {
	FullName string `json:"full_name" binding:"required"`
}

// AddRepository registers an owner/name pair for tracking
func (h *RepositoryHandler) AddRepository(c *gin.Context) {
	var req addRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name is required"})
		return
	}

	parts := strings.Split(req.FullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name must be owner/name"})
		return
	}

	existing, err := h.repoRepo.GetByFullName(req.FullName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check repository: " + err.Error()})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Repository is already tracked"})
		return
	}

	repo := models.NewRepository(parts[0], parts[1])
	if err := h.repoRepo.Create(repo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add repository: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, repo)
}

// ListRepositories returns every tracked repository
func (h *RepositoryHandler) ListRepositories(c *gin.Context) {
	repos, err := h.repoRepo.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list repositories: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}

// DeleteRepository removes a repository; its PRs, files and reviews
// cascade away with it
func (h *RepositoryHandler) DeleteRepository(c *gin.Context) {
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

	if err := h.repoRepo.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete repository: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": repo.FullName})
}
