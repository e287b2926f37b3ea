package handlers

import (
	"net/http"
	"strconv"

	"CERT-PDF/internal/services"

	"github.com/gin-gonic/gin"
)

type LogsHandler struct {
	activityLogService *services.ActivityLogService
}

func NewLogsHandler(activityLogService *services.ActivityLogService) *LogsHandler {
	return &LogsHandler{activityLogService: activityLogService}
}

type LogsResponse struct {
	Logs       interface{} `json:"logs"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

func pagination(c *gin.Context) (limit, page int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return limit, page
}

// GetAllLogs returns activity logs, filtered by method, path, courseId or
// batchId query parameters.
func (h *LogsHandler) GetAllLogs(c *gin.Context) {
	limit, page := pagination(c)
	filter := services.LogFilter{
		Method:   c.Query("method"),
		Path:     c.Query("path"),
		CourseID: c.Query("courseId"),
		BatchID:  c.Query("batchId"),
	}

	logs, total, err := h.activityLogService.ListLogs(filter, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	c.JSON(http.StatusOK, LogsResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	})
}

// GetLogStats counts requests by method, path and status.
func (h *LogsHandler) GetLogStats(c *gin.Context) {
	stats, err := h.activityLogService.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch log stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
