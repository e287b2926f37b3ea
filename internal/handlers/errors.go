package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors onto HTTP status codes. The most specific
// cause wins: an aborted batch reports why it aborted.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrURLNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, processor.ErrMalformedTemplate),
		errors.Is(err, processor.ErrInvalidRecipient),
		errors.Is(err, processor.ErrPageIndexOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrConfigNotFound),
		errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, services.ErrFallbackNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTemplateInUse),
		errors.Is(err, services.ErrJobBusy):
		return http.StatusConflict
	case errors.Is(err, processor.ErrTemplateFetchFailed),
		errors.Is(err, processor.ErrUploadFailed),
		errors.Is(err, processor.ErrEmailSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidConfig),
		errors.Is(err, services.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrBatchAborted):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipient index"})
		return 0, false
	}
	return index, true
}
