package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLoggedBody = 10000

// ActivityLogService audits API requests into activity_logs.
type ActivityLogService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewActivityLogService(db *gorm.DB, logger *zap.Logger) *ActivityLogService {
	logger = applog.OrNop(logger)
	return &ActivityLogService{db: db, logger: logger}
}

// LogFilter narrows a log query. Empty fields match everything.
type LogFilter struct {
	Method   string
	Path     string
	CourseID string
	BatchID  string
}

// Entry builds the audit row for a finished request.
func (s *ActivityLogService) Entry(c *gin.Context, statusCode int, responseTime time.Duration) *models.ActivityLog {
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = c.Request.RemoteAddr
	}

	queryParams := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0]
		}
	}
	queryParamsJSON, _ := json.Marshal(queryParams)

	var requestBody string
	if body, ok := c.Get("request_body"); ok {
		requestBody, _ = body.(string)
	}

	batchID := c.Param("batchId")
	if v, ok := c.Get("batch_id"); ok && batchID == "" {
		batchID, _ = v.(string)
	}

	now := time.Now()
	return &models.ActivityLog{
		ID:           uuid.New().String(),
		Method:       c.Request.Method,
		Path:         c.Request.URL.Path,
		UserAgent:    c.Request.UserAgent(),
		IPAddress:    clientIP,
		RequestBody:  requestBody,
		QueryParams:  string(queryParamsJSON),
		CourseID:     c.Param("courseId"),
		BatchID:      batchID,
		StatusCode:   statusCode,
		ResponseTime: responseTime.Milliseconds(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *ActivityLogService) Record(entry *models.ActivityLog) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save activity log: %w", err)
	}
	return nil
}

// ListLogs returns matching logs, newest first, with the total match count.
func (s *ActivityLogService) ListLogs(filter LogFilter, limit, offset int) ([]models.ActivityLog, int64, error) {
	var logs []models.ActivityLog
	var total int64

	query := s.db.Model(&models.ActivityLog{})
	if filter.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filter.Method))
	}
	if filter.Path != "" {
		query = query.Where("path LIKE ?", "%"+filter.Path+"%")
	}
	if filter.CourseID != "" {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id = ?", filter.BatchID)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch logs: %w", err)
	}
	return logs, total, nil
}

// LogStats aggregates the audit table by method, path and status code.
type LogStats struct {
	Total       int64            `json:"total_requests"`
	Methods     map[string]int64 `json:"methods"`
	Paths       map[string]int64 `json:"paths"`
	StatusCodes map[int]int64    `json:"status_codes"`
	Failures    int64            `json:"failures"`
}

type groupCount struct {
	Key   string
	Count int64
}

func (s *ActivityLogService) countBy(column string) ([]groupCount, error) {
	var rows []groupCount
	err := s.db.Model(&models.ActivityLog{}).
		Select(column + " AS `key`, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	return rows, err
}

// Stats counts requests per method, path and status without loading rows.
func (s *ActivityLogService) Stats() (*LogStats, error) {
	stats := &LogStats{
		Methods:     make(map[string]int64),
		Paths:       make(map[string]int64),
		StatusCodes: make(map[int]int64),
	}
	if err := s.db.Model(&models.ActivityLog{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count logs: %w", err)
	}
	if err := s.db.Model(&models.ActivityLog{}).Where("status_code >= ?", 400).Count(&stats.Failures).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed requests: %w", err)
	}

	methods, err := s.countBy("method")
	if err != nil {
		return nil, fmt.Errorf("failed to group logs by method: %w", err)
	}
	for _, r := range methods {
		stats.Methods[r.Key] = r.Count
	}
	paths, err := s.countBy("path")
	if err != nil {
		return nil, fmt.Errorf("failed to group logs by path: %w", err)
	}
	for _, r := range paths {
		stats.Paths[r.Key] = r.Count
	}
	codes, err := s.countBy("status_code")
	if err != nil {
		return nil, fmt.Errorf("failed to group logs by status: %w", err)
	}
	for _, r := range codes {
		if code, err := strconv.Atoi(r.Key); err == nil {
			stats.StatusCodes[code] = r.Count
		}
	}
	return stats, nil
}

// LoggingMiddleware audits every request after it is served. JSON bodies are
// kept, truncated; multipart uploads are not.
func (s *ActivityLogService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if c.Request.Method == http.MethodPost && c.Request.Body != nil &&
			strings.HasPrefix(c.ContentType(), "application/json") {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
				if len(bodyBytes) > maxLoggedBody {
					c.Set("request_body", fmt.Sprintf("[Large body: %d bytes] %s...", len(bodyBytes), string(bodyBytes[:100])))
				} else if len(bodyBytes) > 0 {
					c.Set("request_body", string(bodyBytes))
				}
			}
		}

		c.Next()

		entry := s.Entry(c, c.Writer.Status(), time.Since(start))
		go func() {
			if err := s.Record(entry); err != nil {
				s.logger.Warn("Activity log not saved", zap.String("path", entry.Path), zap.Error(err))
			}
		}()
	}
}
