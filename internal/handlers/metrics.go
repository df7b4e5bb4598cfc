package handlers

import (
	"net/http"
	"time"

	"github.com/alimgiray/prpulse/internal/services"
	"github.com/gin-gonic/gin"
)

// defaultMetricsWindow is used when the caller omits a start date
const defaultMetricsWindow = 30 * 24 * time.Hour

type MetricsHandler struct {
	churnService   *services.ChurnService
	outlierService *services.OutlierService
}

func NewMetricsHandler(churnService *services.ChurnService, outlierService *services.OutlierService) *MetricsHandler {
	return &MetricsHandler{
		churnService:   churnService,
		outlierService: outlierService,
	}
}

// GetChurn returns weekly churn buckets for ?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *MetricsHandler) GetChurn(c *gin.Context) {
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	weeks, err := h.churnService.Compute(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute churn: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"weeks": weeks})
}

// GetOutliers returns period anomalies plus trend-decline findings
// anchored at the end of the range
func (h *MetricsHandler) GetOutliers(c *gin.Context) {
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	outliers, err := h.outlierService.Detect(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to detect outliers: " + err.Error()})
		return
	}

	trends, err := h.outlierService.TrendDecline(end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to detect trend declines: " + err.Error()})
		return
	}
	outliers = append(outliers, trends...)

	c.JSON(http.StatusOK, gin.H{"outliers": outliers})
}

// parseRange reads start/end query params. End defaults to now, start
// to 30 days before end. The end date is inclusive through end of day.
func (h *MetricsHandler) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now()
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		end = parsed.Add(24*time.Hour - time.Second)
	}

	start := end.Add(-defaultMetricsWindow)
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}

	if start.After(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must not be after end"})
		return time.Time{}, time.Time{}, false
	}

	return start, end, true
}
