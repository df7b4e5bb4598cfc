package handlers

import (
	"errors"
	"net/http"

	"github.com/alimgiray/prpulse/internal/services"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings     *services.SettingsService
	jobService   *services.JobService
	usageService *services.UsageService
	newClient    func(token string) *services.GitHubService
}

func NewSettingsHandler(
	settings *services.SettingsService,
	jobService *services.JobService,
	usageService *services.UsageService,
) *SettingsHandler {
	return &SettingsHandler{
		settings:     settings,
		jobService:   jobService,
		usageService: usageService,
		newClient:    services.NewGitHubService,
	}
}

// GetSettings returns the typed settings view. Secrets are reported as
// configured/not-configured, never echoed back.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	loaded, err := h.settings.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exclude_globs":     loaded.ExcludeGlobs,
		"churn_window_days": loaded.ChurnWindowDays,
		"github_connected":  loaded.GithubToken != "",
		"usage_connected":   loaded.UsageAPIKey != "",
	})
}

type updateGlobsRequest struct {
	ExcludeGlobs []string `json:"exclude_globs"`
}

// UpdateExcludeGlobs stores a new glob set and queues the recompute
// pass. The caller does not wait on the recompute.
func (h *SettingsHandler) UpdateExcludeGlobs(c *gin.Context) {
	var req updateGlobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exclude_globs must be a string array"})
		return
	}

	if err := h.settings.SetExcludeGlobs(req.ExcludeGlobs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save globs: " + err.Error()})
		return
	}

	job, err := h.jobService.EnqueueRecompute()
	if err != nil && !errors.Is(err, services.ErrJobAlreadyQueued) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue recompute: " + err.Error()})
		return
	}

	resp := gin.H{"exclude_globs": req.ExcludeGlobs}
	if job != nil {
		resp["recompute_job_id"] = job.ID
	}
	c.JSON(http.StatusOK, resp)
}

type updateChurnWindowRequest struct {
	ChurnWindowDays int `json:"churn_window_days" binding:"required"`
}

// UpdateChurnWindow stores the churn window size
func (h *SettingsHandler) UpdateChurnWindow(c *gin.Context) {
	var req updateChurnWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChurnWindowDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "churn_window_days must be a positive integer"})
		return
	}

	if err := h.settings.SetChurnWindowDays(req.ChurnWindowDays); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save churn window: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"churn_window_days": req.ChurnWindowDays})
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdateGithubToken validates and stores the GitHub access token
func (h *SettingsHandler) UpdateGithubToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if _, err := h.newClient(req.Token).TestConnection(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token rejected by GitHub: " + err.Error()})
		return
	}

	if err := h.settings.SetGithubToken(req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save token: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"github_connected": true})
}

// TestGithubConnection checks the stored token against the API
func (h *SettingsHandler) TestGithubConnection(c *gin.Context) {
	token, err := h.settings.GithubToken()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	login, err := h.newClient(token).TestConnection(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "login": login})
}

type apiKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// UpdateUsageAPIKey validates and stores the usage-metering admin key
func (h *SettingsHandler) UpdateUsageAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	if err := h.usageService.TestConnection(c.Request.Context(), req.APIKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key rejected: " + err.Error()})
		return
	}

	if err := h.settings.SetUsageAPIKey(req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save API key: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"usage_connected": true})
}

// TestUsageConnection checks the stored usage key against the API
func (h *SettingsHandler) TestUsageConnection(c *gin.Context) {
	key, err := h.settings.UsageAPIKey()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if err := h.usageService.TestConnection(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// TriggerUsageSync queues a usage-metering sync job
func (h *SettingsHandler) TriggerUsageSync(c *gin.Context) {
	job, err := h.jobService.EnqueueUsageSync()
	if err != nil {
		if errors.Is(err, services.ErrJobAlreadyQueued) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue usage sync: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}
