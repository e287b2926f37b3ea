package services

import (
	"context"
	"errors"
	"fmt"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrConfigNotFound = errors.New("certificate config not found")
	ErrInvalidConfig  = errors.New("invalid certificate config")
)

// SaveConfigInput is what the field editor submits for a course.
type SaveConfigInput struct {
	TemplateID  string               `json:"templateId"`
	TemplateURL string               `json:"templateUrl"`
	Fields      []processor.Field    `json:"fields"`
	Appearance  processor.Appearance `json:"appearance"`
	UpdatedBy   string               `json:"updatedBy"`
}

type CertificateService struct {
	db        *gorm.DB
	templates *TemplateService
	fetcher   *TemplateFetcher
	defaults  processor.Appearance
	logger    *zap.Logger
}

func NewCertificateService(db *gorm.DB, templates *TemplateService, fetcher *TemplateFetcher, defaults processor.Appearance, logger *zap.Logger) *CertificateService {
	logger = applog.OrNop(logger)
	return &CertificateService{db: db, templates: templates, fetcher: fetcher, defaults: defaults, logger: logger}
}

func (s *CertificateService) GetConfig(courseID string) (*models.CertificateConfig, error) {
	var cfg models.CertificateConfig
	if err := s.db.First(&cfg, "course_id = ?", courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: course %s", ErrConfigNotFound, courseID)
		}
		return nil, fmt.Errorf("failed to get certificate config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig creates or replaces the course's configuration. The template must
// be a registered template or an external URL the fetcher accepts.
func (s *CertificateService) SaveConfig(ctx context.Context, courseID string, in SaveConfigInput) (*models.CertificateConfig, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidConfig)
	}
	for i, f := range in.Fields {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidConfig, i, err)
		}
	}
	if in.Appearance.Color != "" {
		if err := (processor.Field{Key: "appearance", Color: in.Appearance.Color}).Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	var templateID, templateURL, storagePath string
	switch {
	case in.TemplateID != "":
		t, err := s.templates.GetTemplate(in.TemplateID)
		if err != nil {
			return nil, err
		}
		templateID, templateURL, storagePath = t.ID, t.PublicURL, t.StoragePath
	case in.TemplateURL != "":
		if _, err := s.fetcher.CheckURL(in.TemplateURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		templateURL = in.TemplateURL
	default:
		return nil, fmt.Errorf("%w: templateId or templateUrl is required", ErrInvalidConfig)
	}

	var cfg models.CertificateConfig
	err := s.db.Unscoped().Where("course_id = ?", courseID).First(&cfg).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cfg = models.CertificateConfig{ID: uuid.New().String(), CourseID: courseID}
	case err != nil:
		return nil, fmt.Errorf("failed to load certificate config: %w", err)
	}

	cfg.TemplateID = templateID
	cfg.TemplateURL = templateURL
	cfg.TemplateStoragePath = storagePath
	cfg.Fields = models.FieldList(append([]processor.Field(nil), in.Fields...))
	cfg.Appearance = models.AppearanceJSON(in.Appearance)
	cfg.UpdatedBy = in.UpdatedBy
	cfg.DeletedAt = gorm.DeletedAt{}

	if err := s.db.Unscoped().Save(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to save certificate config: %w", err)
	}
	s.logger.Info("Certificate config saved",
		zap.String("courseId", courseID),
		zap.String("templateId", templateID),
		zap.Int("fields", len(in.Fields)))
	return &cfg, nil
}

// Appearance merges the system defaults with the course's own.
func (s *CertificateService) Appearance(cfg *models.CertificateConfig) processor.Appearance {
	return processor.MergeAppearance(s.defaults, processor.Appearance(cfg.Appearance))
}

// Fields returns the configuration's fields with appearance defaults applied.
func (s *CertificateService) Fields(cfg *models.CertificateConfig) []processor.Field {
	return processor.ApplyAppearance(cfg.Fields, s.Appearance(cfg))
}

// TemplateBytes returns the configuration's template from storage when it is
// registered, otherwise from its URL.
func (s *CertificateService) TemplateBytes(ctx context.Context, cfg *models.CertificateConfig) ([]byte, error) {
	if cfg.TemplateStoragePath != "" {
		return s.templates.readObject(ctx, cfg.TemplateStoragePath)
	}
	if cfg.TemplateURL == "" {
		return nil, fmt.Errorf("%w: config has no template", processor.ErrTemplateFetchFailed)
	}
	return s.fetcher.Fetch(ctx, cfg.TemplateURL)
}

// LoadTemplate fetches and parses the configuration's template.
func (s *CertificateService) LoadTemplate(ctx context.Context, cfg *models.CertificateConfig) (*processor.Document, error) {
	data, err := s.TemplateBytes(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return processor.Load(data)
}

// FirstPage returns the size of the template's first page, from the registry
// when the template is registered there.
func (s *CertificateService) FirstPage(ctx context.Context, cfg *models.CertificateConfig) (processor.PageSize, error) {
	if cfg.TemplateID != "" {
		if t, err := s.templates.GetTemplate(cfg.TemplateID); err == nil && len(t.PageSizes) > 0 {
			return t.PageSizes[0], nil
		}
	}
	doc, err := s.LoadTemplate(ctx, cfg)
	if err != nil {
		return processor.PageSize{}, err
	}
	return doc.PageSize(0)
}
