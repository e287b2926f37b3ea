package handlers

import (
	"fmt"
	"net/http"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type BatchHandler struct {
	certificateService *services.CertificateService
	jobs               *services.JobManager
	emails             *services.EmailDispatcher
	delivery           *services.DeliveryService
	uploadDefault      bool
	generatedBy        string
	logger             *zap.Logger
}

func NewBatchHandler(
	certificateService *services.CertificateService,
	jobs *services.JobManager,
	emails *services.EmailDispatcher,
	delivery *services.DeliveryService,
	uploadDefault bool,
	generatedBy string,
	logger *zap.Logger,
) *BatchHandler {
	logger = applog.OrNop(logger)
	return &BatchHandler{
		certificateService: certificateService,
		jobs:               jobs,
		emails:             emails,
		delivery:           delivery,
		uploadDefault:      uploadDefault,
		generatedBy:        generatedBy,
		logger:             logger,
	}
}

type StartBatchRequest struct {
	Recipients  []processor.Recipient `json:"recipients"`
	Course      *processor.Course     `json:"course"`
	Teams       []processor.Team      `json:"teams"`
	Upload      *bool                 `json:"upload"`
	GeneratedBy string                `json:"generatedBy"`
}

// StartBatch queues generation for the course's saved configuration.
func (h *BatchHandler) StartBatch(c *gin.Context) {
	var req StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if len(req.Recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one recipient is required"})
		return
	}

	courseID := c.Param("courseId")
	cfg, err := h.certificateService.GetConfig(courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := h.certificateService.TemplateBytes(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", processor.ErrBatchAborted, err))
		return
	}

	teams := make(map[string]processor.Team, len(req.Teams))
	for _, t := range req.Teams {
		teams[t.Name] = t
	}
	upload := h.uploadDefault
	if req.Upload != nil {
		upload = *req.Upload
	}
	generatedBy := req.GeneratedBy
	if generatedBy == "" {
		generatedBy = h.generatedBy
	}

	job, err := h.jobs.Submit(services.JobRequest{
		CourseID:    courseID,
		GeneratedBy: generatedBy,
		Upload:      upload,
		Input: services.BatchInput{
			Template:   data,
			Fields:     h.certificateService.Fields(cfg),
			Recipients: req.Recipients,
			Course:     req.Course,
			Teams:      teams,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set("batch_id", job.ID)
	c.JSON(http.StatusAccepted, job.Snapshot())
}

func (h *BatchHandler) GetBatch(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (h *BatchHandler) CancelBatch(c *gin.Context) {
	if err := h.jobs.Cancel(c.Param("batchId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Cancellation requested"})
}

func (h *BatchHandler) RetryRecipient(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if err := h.jobs.Retry(c.Param("batchId"), index); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Retry queued"})
}

// DownloadArchive returns every finished certificate of the batch as a ZIP.
func (h *BatchHandler) DownloadArchive(c *gin.Context) {
	batchID := c.Param("batchId")
	job, err := h.jobs.Get(batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	certs := job.Certificates()
	if len(certs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch has no certificates yet"})
		return
	}
	archive, err := processor.ZipAll(certs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=constancias_%s.zip", batchID))
	c.Data(http.StatusOK, "application/zip", archive)
}

func (h *BatchHandler) DownloadPDF(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	cert, err := job.Certificate(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", cert.Filename))
	c.Data(http.StatusOK, "application/pdf", cert.Bytes)
}

// Stream pushes batch events over a websocket until the batch finishes or
// the client goes away. The first message is a full snapshot.
func (h *BatchHandler) Stream(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v) == nil
	}

	if !send(gin.H{"type": "snapshot", "batch": job.Snapshot()}) || job.Done() {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev := <-events:
			if !send(ev) || ev.Type == "done" {
				return
			}
		}
	}
}

type EmailRequest struct {
	Role string `json:"role"`
}

// SendEmails mails every certificate of a finished batch and returns the
// per-recipient report.
func (h *BatchHandler) SendEmails(c *gin.Context) {
	var req EmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
	}
	job, err := h.jobs.Get(c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !job.Done() {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch is still running"})
		return
	}

	report := h.emails.SendAll(c.Request.Context(), job.ID, job.EmailItems(req.Role))
	c.JSON(http.StatusOK, report)
}

func (h *BatchHandler) GetEmailReport(c *gin.Context) {
	report, ok := h.emails.Report(c.Param("batchId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No emails sent for this batch"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *BatchHandler) RetryEmail(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req EmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
	}
	job, err := h.jobs.Get(c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	item, err := job.EmailItem(index, req.Role)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	report, err := h.emails.Retry(c.Request.Context(), job.ID, item)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// DownloadFallback serves a locally kept certificate.
func (h *BatchHandler) DownloadFallback(c *gin.Context) {
	name := c.Param("file")
	path, err := h.delivery.FallbackPath(name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

func (h *BatchHandler) ListCertificates(c *gin.Context) {
	certs, err := h.delivery.ListCertificates(c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs, "total": len(certs)})
}
