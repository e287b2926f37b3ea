package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrFallbackNotFound = errors.New("fallback file not found")

// DeliveryService stores finished certificates and registers them. Every
// certificate is also written to a local fallback directory so it can be
// downloaded even when the upload fails.
type DeliveryService struct {
	db          *gorm.DB
	store       storage.Store
	fallbackDir string
	baseURL     string
	logger      *zap.Logger
}

func NewDeliveryService(db *gorm.DB, store storage.Store, fallbackDir, baseURL string, logger *zap.Logger) *DeliveryService {
	logger = applog.OrNop(logger)
	return &DeliveryService{
		db:          db,
		store:       store,
		fallbackDir: fallbackDir,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
	}
}

// Upload stores cert under certificates/<courseID>/<folio>_<file> and records
// it. cert gains its URL and storage path on success and its local URL
// whenever the fallback copy was written. Failures match
// processor.ErrUploadFailed.
func (s *DeliveryService) Upload(ctx context.Context, courseID, batchID, generatedBy string, cert *processor.GeneratedCertificate) error {
	folio := cert.Recipient.Folio
	if err := s.writeFallback(cert); err != nil {
		s.logger.Warn("Failed to write fallback copy", zap.String("folio", folio), zap.Error(err))
	}

	objectName := storage.CertificateObjectName(courseID, folio, cert.Filename)
	result, err := s.store.UploadFile(ctx, bytes.NewReader(cert.Bytes), objectName, mimePDF)
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrUploadFailed, err)
	}

	entry := &models.GeneratedCertificate{
		ID:             uuid.New().String(),
		BatchID:        batchID,
		CourseID:       courseID,
		RecipientName:  cert.Recipient.Name,
		RecipientEmail: cert.Recipient.Email,
		Folio:          folio,
		URL:            result.PublicURL,
		StoragePath:    result.ObjectName,
		FileSize:       result.Size,
		GeneratedBy:    generatedBy,
		CreatedAt:      time.Now(),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folio"}},
		DoUpdates: clause.AssignmentColumns([]string{"batch_id", "url", "storage_path", "file_size", "generated_by", "created_at"}),
	}).Create(entry).Error
	if err != nil {
		if delErr := s.store.DeleteFile(ctx, objectName); delErr != nil {
			s.logger.Warn("Failed to remove unregistered certificate", zap.String("object", objectName), zap.Error(delErr))
		}
		return fmt.Errorf("%w: failed to register certificate: %v", processor.ErrUploadFailed, err)
	}

	cert.URL = result.PublicURL
	cert.StoragePath = result.ObjectName
	return nil
}

func fallbackName(cert *processor.GeneratedCertificate) string {
	return processor.SanitizeName(cert.Recipient.Folio) + "_" + cert.Filename
}

func (s *DeliveryService) writeFallback(cert *processor.GeneratedCertificate) error {
	if s.fallbackDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.fallbackDir, 0755); err != nil {
		return fmt.Errorf("failed to create fallback directory: %w", err)
	}
	name := fallbackName(cert)
	if err := os.WriteFile(filepath.Join(s.fallbackDir, name), cert.Bytes, 0644); err != nil {
		return fmt.Errorf("failed to write fallback file: %w", err)
	}
	cert.LocalURL = s.baseURL + "/api/v1/fallback/" + name
	return nil
}

// FallbackPath resolves a fallback file name to its path, refusing anything
// that is not a plain file name inside the directory.
func (s *DeliveryService) FallbackPath(name string) (string, error) {
	if s.fallbackDir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %s", ErrFallbackNotFound, name)
	}
	path := filepath.Join(s.fallbackDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrFallbackNotFound, name)
	}
	return path, nil
}

// ListCertificates returns registry entries for a course, newest first.
func (s *DeliveryService) ListCertificates(courseID string) ([]models.GeneratedCertificate, error) {
	var out []models.GeneratedCertificate
	if err := s.db.Where("course_id = ?", courseID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return out, nil
}
