package handlers

import (
	"net/http"
	"time"

	"CERT-PDF/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Templates    *TemplateHandler
	Certificates *CertificateHandler
	Batches      *BatchHandler
	Logs         *LogsHandler
	ActivityLog  *services.ActivityLogService
	Fetcher      *services.TemplateFetcher
}

// NewRouter builds the gin engine. allowOrigins of ["*"] allows any origin.
func NewRouter(h Handlers, allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !(len(allowOrigins) == 1 && allowOrigins[0] == "*"),
		MaxAge:           12 * time.Hour,
	}))
	if h.ActivityLog != nil {
		r.Use(h.ActivityLog.LoggingMiddleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Fetcher != nil {
		r.GET("/proxy-pdf", ProxyPDF(h.Fetcher))
	}

	v1 := r.Group("/api/v1")
	{
		if h.Templates != nil {
			v1.POST("/templates", h.Templates.UploadTemplate)
			v1.GET("/templates/:templateId", h.Templates.GetTemplate)
			v1.DELETE("/templates/:templateId", h.Templates.DeleteTemplate)
		}

		if h.Certificates != nil {
			v1.GET("/courses/:courseId/certificate-config", h.Certificates.GetConfig)
			v1.PUT("/courses/:courseId/certificate-config", h.Certificates.SaveConfig)
			v1.POST("/courses/:courseId/certificate-preview", h.Certificates.Preview)
		}

		if h.Batches != nil {
			v1.POST("/courses/:courseId/certificate-batches", h.Batches.StartBatch)
			v1.GET("/courses/:courseId/certificates", h.Batches.ListCertificates)
			v1.GET("/batches/:batchId", h.Batches.GetBatch)
			v1.POST("/batches/:batchId/cancel", h.Batches.CancelBatch)
			v1.POST("/batches/:batchId/results/:index/retry", h.Batches.RetryRecipient)
			v1.GET("/batches/:batchId/results/:index/pdf", h.Batches.DownloadPDF)
			v1.GET("/batches/:batchId/archive", h.Batches.DownloadArchive)
			v1.GET("/batches/:batchId/stream", h.Batches.Stream)
			v1.POST("/batches/:batchId/emails", h.Batches.SendEmails)
			v1.GET("/batches/:batchId/emails", h.Batches.GetEmailReport)
			v1.POST("/batches/:batchId/emails/:index/retry", h.Batches.RetryEmail)
			v1.GET("/fallback/:file", h.Batches.DownloadFallback)
		}

		if h.Logs != nil {
			v1.GET("/logs", h.Logs.GetAllLogs)
			v1.GET("/logs/stats", h.Logs.GetLogStats)
		}
	}

	return r
}
