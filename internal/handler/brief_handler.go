package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/internal/repository"
	"briefd/internal/scheduler"
	"briefd/internal/service"
)

type BriefHandler struct {
	briefService   *service.BriefService
	briefScheduler *scheduler.BriefScheduler
	briefs         *repository.BriefRepository
	sources        *repository.SourceRepository
	reports        *repository.ReportRepository
	logger         *zap.Logger
}

func NewBriefHandler(
	briefService *service.BriefService,
	briefScheduler *scheduler.BriefScheduler,
	briefs *repository.BriefRepository,
	sources *repository.SourceRepository,
	reports *repository.ReportRepository,
	logger *zap.Logger,
) *BriefHandler {
	return &BriefHandler{
		briefService:   briefService,
		briefScheduler: briefScheduler,
		briefs:         briefs,
		sources:        sources,
		reports:        reports,
		logger:         logger,
	}
}

// Create handles POST /briefs
func (h *BriefHandler) Create(c *gin.Context) {
	var req struct {
		OwnerID      string `json:"owner_id"`
		Criteria     string `json:"criteria"`
		Frequency    string `json:"frequency"`
		ScheduleTime string `json:"schedule_time"`
		ScheduleDay  *int   `json:"schedule_day_of_week"`
		Timezone     string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var day *time.Weekday
	if req.ScheduleDay != nil {
		d := time.Weekday(*req.ScheduleDay)
		day = &d
	}

	brief, err := h.briefService.CreateBrief(c.Request.Context(), service.CreateBriefInput{
		OwnerID:      req.OwnerID,
		Criteria:     req.Criteria,
		Frequency:    model.BriefFrequency(req.Frequency),
		ScheduleTime: req.ScheduleTime,
		ScheduleDay:  day,
		Timezone:     req.Timezone,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, brief)
}

// Get handles GET /briefs/:id
func (h *BriefHandler) Get(c *gin.Context) {
	brief, err := h.briefs.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "brief not found"})
		return
	}
	c.JSON(http.StatusOK, brief)
}

// ExecuteNow handles POST /briefs/:id/execute. It takes the same
// claim-and-enqueue path the brief scheduler takes when a brief comes due.
func (h *BriefHandler) ExecuteNow(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.briefs.FindByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "brief not found"})
		return
	}

	if err := h.briefScheduler.QueueBrief(c.Request.Context(), id, time.Now().UTC()); err != nil {
		h.logger.Error("Execute-now failed", zap.String("brief_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue brief"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"brief_id": id, "status": "queued"})
}

// AddSource handles POST /briefs/:id/sources
func (h *BriefHandler) AddSource(c *gin.Context) {
	var req struct {
		Type                   string `json:"type"`
		Name                   string `json:"name"`
		URL                    string `json:"url"`
		RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	src, err := h.briefService.AddSource(c.Request.Context(), c.Param("id"), service.AddSourceInput{
		Type:                   model.SourceType(req.Type),
		Name:                   req.Name,
		URL:                    req.URL,
		RefreshIntervalMinutes: req.RefreshIntervalMinutes,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, src)
}

// ListSources handles GET /briefs/:id/sources
func (h *BriefHandler) ListSources(c *gin.Context) {
	sources, err := h.sources.ListByBrief(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sources"})
		return
	}
	c.JSON(http.StatusOK, sources)
}

// ListReports handles GET /briefs/:id/reports
func (h *BriefHandler) ListReports(c *gin.Context) {
	reports, err := h.reports.ListByBrief(c.Request.Context(), c.Param("id"), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, reports)
}
