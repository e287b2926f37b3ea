package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"

	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/services"

	"github.com/gin-gonic/gin"
	_ "golang.org/x/image/webp"
)

type CertificateHandler struct {
	certificateService *services.CertificateService
	fonts              *processor.StandardFonts
}

func NewCertificateHandler(certificateService *services.CertificateService, fonts *processor.StandardFonts) *CertificateHandler {
	if fonts == nil {
		fonts = processor.NewStandardFonts()
	}
	return &CertificateHandler{certificateService: certificateService, fonts: fonts}
}

func (h *CertificateHandler) GetConfig(c *gin.Context) {
	cfg, err := h.certificateService.GetConfig(c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *CertificateHandler) SaveConfig(c *gin.Context) {
	var req services.SaveConfigInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	cfg, err := h.certificateService.SaveConfig(c.Request.Context(), c.Param("courseId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PreviewRequest carries the editor's unsaved state. Fields and Appearance
// replace the saved ones when present.
type PreviewRequest struct {
	ContainerWidth float64               `json:"containerWidth"`
	Fields         []processor.Field     `json:"fields"`
	Appearance     *processor.Appearance `json:"appearance"`
	Recipient      *processor.Recipient  `json:"recipient"`
	Course         *processor.Course     `json:"course"`
	Team           *processor.Team       `json:"team"`
	Background     string                `json:"background"` // base64 PNG, JPEG or WebP of page 0
}

// Preview returns the page-0 overlay as JSON, or as a PNG with ?format=png.
func (h *CertificateHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	cfg, err := h.certificateService.GetConfig(c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Fields != nil {
		for i, f := range req.Fields {
			if err := f.Validate(); err != nil {
				respondError(c, fmt.Errorf("%w: field %d: %v", services.ErrInvalidConfig, i, err))
				return
			}
		}
		cfg.Fields = req.Fields
	}
	if req.Appearance != nil {
		cfg.Appearance = models.AppearanceJSON(*req.Appearance)
	}

	page, err := h.certificateService.FirstPage(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	pv := processor.BuildPreview(processor.PreviewInput{
		Page:           page,
		ContainerWidth: req.ContainerWidth,
		Fields:         h.certificateService.Fields(cfg),
		Recipient:      req.Recipient,
		Context:        &processor.Context{Course: req.Course, Team: req.Team},
		Fonts:          h.fonts,
	})

	if c.Query("format") != "png" {
		c.JSON(http.StatusOK, pv)
		return
	}

	var background image.Image
	if req.Background != "" {
		background, err = decodeBackground(req.Background)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	img, err := processor.RenderOverlay(pv, background)
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		respondError(c, fmt.Errorf("failed to encode preview: %w", err))
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func decodeBackground(encoded string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("background is not valid base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode background: %w", err)
	}
	return img, nil
}
