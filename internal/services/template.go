package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInUse    = errors.New("template is referenced by a certificate config")
	ErrUnsupportedType  = errors.New("unsupported template type")
)

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

type TemplateService struct {
	db        *gorm.DB
	store     storage.Store
	converter DocxConverter
	logger    *zap.Logger
}

// NewTemplateService wires the template registry. converter may be nil, in
// which case only PDF uploads are accepted.
func NewTemplateService(db *gorm.DB, store storage.Store, converter DocxConverter, logger *zap.Logger) *TemplateService {
	logger = applog.OrNop(logger)
	return &TemplateService{db: db, store: store, converter: converter, logger: logger}
}

// UploadTemplate validates and stores a template. DOCX sources are converted
// to PDF first, with their {{KEY}} markers recorded and blanked.
func (s *TemplateService) UploadTemplate(ctx context.Context, r io.Reader, filename string) (*models.PDFTemplate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	sourceType := "pdf"
	var placeholders []string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
	case ".docx":
		if s.converter == nil {
			return nil, fmt.Errorf("%w: DOCX conversion is not configured", ErrUnsupportedType)
		}
		data, placeholders, err = s.convertDocx(ctx, data, filename)
		if err != nil {
			return nil, err
		}
		sourceType = "docx"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}

	doc, err := processor.Load(data)
	if err != nil {
		return nil, err
	}

	templateID := uuid.New().String()
	pdfName := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)) + ".pdf"
	objectName := storage.TemplateObjectName(templateID, pdfName)

	result, err := s.store.UploadFile(ctx, bytes.NewReader(data), objectName, mimePDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrUploadFailed, err)
	}

	template := &models.PDFTemplate{
		ID:           templateID,
		Filename:     pdfName,
		OriginalName: filepath.Base(filename),
		StoragePath:  objectName,
		PublicURL:    result.PublicURL,
		FileSize:     result.Size,
		MimeType:     mimePDF,
		SourceType:   sourceType,
		PageCount:    doc.PageCount(),
		PageSizes:    models.PageSizeList(doc.PageSizes()),
		Encrypted:    doc.Encrypted(),
		Placeholders: models.StringList(placeholders),
	}
	if err := s.db.Create(template).Error; err != nil {
		if delErr := s.store.DeleteFile(ctx, objectName); delErr != nil {
			s.logger.Warn("Failed to remove orphaned template object", zap.String("object", objectName), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save template metadata: %w", err)
	}

	s.logger.Info("Template uploaded",
		zap.String("templateId", templateID),
		zap.String("source", sourceType),
		zap.Int("pages", template.PageCount),
		zap.Bool("encrypted", template.Encrypted))
	return template, nil
}

func (s *TemplateService) convertDocx(ctx context.Context, data []byte, filename string) ([]byte, []string, error) {
	docx, err := processor.OpenDocx(data)
	if err != nil {
		return nil, nil, err
	}
	placeholders := docx.Placeholders()
	docx.ClearPlaceholders()
	cleaned, err := docx.Bytes()
	if err != nil {
		return nil, nil, err
	}

	pdf, err := s.converter.ConvertDocxToPDF(ctx, cleaned, filepath.Base(filename), docx.Landscape())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert DOCX template: %w", err)
	}
	return pdf, placeholders, nil
}

func (s *TemplateService) GetTemplate(templateID string) (*models.PDFTemplate, error) {
	var template models.PDFTemplate
	if err := s.db.First(&template, "id = ?", templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &template, nil
}

// ReadTemplate returns the stored PDF bytes of a template.
func (s *TemplateService) ReadTemplate(ctx context.Context, template *models.PDFTemplate) ([]byte, error) {
	return s.readObject(ctx, template.StoragePath)
}

func (s *TemplateService) readObject(ctx context.Context, objectName string) ([]byte, error) {
	rc, err := s.store.ReadFile(ctx, objectName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrTemplateFetchFailed, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrTemplateFetchFailed, err)
	}
	return data, nil
}

// DeleteTemplate removes a template that no certificate config references.
func (s *TemplateService) DeleteTemplate(ctx context.Context, templateID string) error {
	template, err := s.GetTemplate(templateID)
	if err != nil {
		return err
	}

	var refs int64
	if err := s.db.Model(&models.CertificateConfig{}).
		Where("template_id = ? OR template_storage_path = ?", template.ID, template.StoragePath).
		Count(&refs).Error; err != nil {
		return fmt.Errorf("failed to check template references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d course(s)", ErrTemplateInUse, refs)
	}

	if err := s.store.DeleteFile(ctx, template.StoragePath); err != nil {
		s.logger.Warn("Failed to delete template object", zap.String("object", template.StoragePath), zap.Error(err))
	}
	return s.db.Delete(template).Error
}
