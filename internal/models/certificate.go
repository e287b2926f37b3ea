package models

import (
	"time"

	"gorm.io/gorm"
)

// CertificateConfig is a course's single active certificate layout.
type CertificateConfig struct {
	ID                  string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CourseID            string         `gorm:"type:varchar(191);uniqueIndex;not null" json:"course_id"`
	TemplateID          string         `gorm:"type:varchar(36);index" json:"template_id"`
	TemplateURL         string         `json:"template_url"`
	TemplateStoragePath string         `json:"template_storage_path"`
	Fields              FieldList      `gorm:"type:json" json:"fields"`
	Appearance          AppearanceJSON `gorm:"type:json" json:"appearance"`
	UpdatedBy           string         `json:"updated_by"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CertificateConfig) TableName() string {
	return "certificate_configs"
}

// GeneratedCertificate registers one uploaded certificate.
type GeneratedCertificate struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	BatchID        string    `gorm:"type:varchar(36);index" json:"batch_id"`
	CourseID       string    `gorm:"type:varchar(191);index" json:"course_id"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	Folio          string    `gorm:"type:varchar(64);uniqueIndex" json:"folio"`
	URL            string    `json:"url"`
	StoragePath    string    `json:"storage_path"`
	FileSize       int64     `json:"file_size"`
	GeneratedBy    string    `json:"generated_by"`
	CreatedAt      time.Time `json:"created_at"`
}

func (GeneratedCertificate) TableName() string {
	return "generated_certificates"
}
