package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog/middlewares"
	"nutrilog/models"
	"nutrilog/services"
)

type AnalyticsController struct {
	Svc *services.AnalyticsService
}

func NewAnalyticsController(svc *services.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{Svc: svc}
}

// POST /analytics/summary
func (h *AnalyticsController) Summary(c *gin.Context) {
	var req services.SummaryRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Svc.Summary(c.Request.Context(), middlewares.UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /analytics/weekly  {"weekStart": "YYYY-MM-DD", "mode": "chart|detailed", "targets": {...}}
func (h *AnalyticsController) WeeklyOverview(c *gin.Context) {
	var req struct {
		WeekStart string         `json:"weekStart" binding:"omitempty,isodate"`
		Mode      string         `json:"mode"`
		Targets   models.Targets `json:"targets"`
	}
	if !bindJSON(c, &req) {
		return
	}
	weekStart := time.Now()
	if req.WeekStart != "" {
		weekStart, _ = time.Parse(models.DateLayout, req.WeekStart)
	}
	if req.Mode == "" {
		req.Mode = "detailed"
	}

	out, err := h.Svc.WeeklyOverview(c.Request.Context(), middlewares.UserID(c), weekStart, req.Mode, req.Targets)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
