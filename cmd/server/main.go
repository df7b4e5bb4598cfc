package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alimgiray/prpulse/internal/handlers"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/internal/services"
	"github.com/alimgiray/prpulse/internal/workers"
	"github.com/alimgiray/prpulse/pkg/config"
	"github.com/alimgiray/prpulse/pkg/database"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init()
	gin.SetMode(config.AppConfig.Server.Mode)

	// Initialize database
	if err := database.Init(config.AppConfig.Database.Path, config.AppConfig.Database.MigrationsDir); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Repositories
	repoRepo := repositories.NewRepositoryRepository(database.DB)
	userRepo := repositories.NewUserRepository(database.DB)
	prRepo := repositories.NewPullRequestRepository(database.DB)
	fileRepo := repositories.NewPRFileRepository(database.DB)
	reviewRepo := repositories.NewPRReviewRepository(database.DB)
	jobRepo := repositories.NewSyncJobRepository(database.DB)
	settingRepo := repositories.NewSettingRepository(database.DB)
	usageRepo := repositories.NewAIUsageRepository(database.DB)

	// A process that died mid-sync leaves RUNNING job rows behind
	failed, err := jobRepo.FailOrphanedRunning("Interrupted by process shutdown")
	if err != nil {
		log.Fatalf("Failed to sweep orphaned jobs: %v", err)
	}
	if failed > 0 {
		logger.Warnf("Failed %d orphaned running jobs from a previous run", failed)
	}

	// Services
	settingsService := services.NewSettingsService(settingRepo)
	syncLock := services.NewSyncLockService()
	jobService := services.NewJobService(jobRepo)
	syncService := services.NewSyncService(database.DB, repoRepo, prRepo, jobRepo, settingsService, syncLock)
	exclusionService := services.NewExclusionService(prRepo, fileRepo, settingsService)
	churnService := services.NewChurnService(prRepo, fileRepo, settingsService)
	outlierService := services.NewOutlierService(prRepo, reviewRepo, usageRepo, services.DefaultServiceAccounts)
	usageService := services.NewUsageService(usageRepo, userRepo, jobRepo, settingsService, settingRepo)

	// Workers
	workerManager := workers.NewWorkerManager(jobRepo, syncService, exclusionService, usageService)
	if err := workerManager.StartAll(); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}
	defer workerManager.StopAll()

	// Router
	router := gin.Default()
	setupRoutes(router,
		handlers.NewRepositoryHandler(repoRepo),
		handlers.NewSyncHandler(jobService, jobRepo, repoRepo, syncLock),
		handlers.NewSettingsHandler(settingsService, jobService, usageService),
		handlers.NewMetricsHandler(churnService, outlierService),
		handlers.NewExportHandler(prRepo, repoRepo, userRepo),
		handlers.NewUserHandler(userRepo),
	)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(config.AppConfig.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(config.AppConfig.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Infof("Server starting on :%s", config.AppConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}

	logger.Info("Server stopped")
}

func setupRoutes(
	router *gin.Engine,
	repositoryHandler *handlers.RepositoryHandler,
	syncHandler *handlers.SyncHandler,
	settingsHandler *handlers.SettingsHandler,
	metricsHandler *handlers.MetricsHandler,
	exportHandler *handlers.ExportHandler,
	userHandler *handlers.UserHandler,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/repositories", repositoryHandler.AddRepository)
		api.GET("/repositories", repositoryHandler.ListRepositories)
		api.DELETE("/repositories/:id", repositoryHandler.DeleteRepository)
		api.POST("/repositories/:id/sync", syncHandler.TriggerSync)

		api.GET("/users", userHandler.ListUsers)
		api.PUT("/users/:id/email", userHandler.UpdateEmail)

		api.POST("/sync", syncHandler.TriggerSyncAll)
		api.GET("/jobs", syncHandler.ListJobs)
		api.GET("/jobs/:id", syncHandler.GetJob)

		api.GET("/settings", settingsHandler.GetSettings)
		api.PUT("/settings/exclude-globs", settingsHandler.UpdateExcludeGlobs)
		api.PUT("/settings/churn-window", settingsHandler.UpdateChurnWindow)
		api.PUT("/settings/github-token", settingsHandler.UpdateGithubToken)
		api.POST("/settings/github-token/test", settingsHandler.TestGithubConnection)
		api.PUT("/settings/usage-key", settingsHandler.UpdateUsageAPIKey)
		api.POST("/settings/usage-key/test", settingsHandler.TestUsageConnection)
		api.POST("/usage/sync", settingsHandler.TriggerUsageSync)

		api.GET("/metrics/churn", metricsHandler.GetChurn)
		api.GET("/metrics/outliers", metricsHandler.GetOutliers)
		api.GET("/export/pull-requests", exportHandler.ExportPullRequests)
	}
}
