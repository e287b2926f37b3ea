package handlers

import (
	"net/http"

	"CERT-PDF/internal/services"

	"github.com/gin-gonic/gin"
)

// ProxyPDF returns an allowed external template to the browser, which cannot
// read third-party storage directly.
func ProxyPDF(fetcher *services.TemplateFetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawURL := c.Query("url")
		if rawURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		data, err := fetcher.Fetch(c.Request.Context(), rawURL)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Cache-Control", "private, max-age=300")
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
