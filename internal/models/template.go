package models

import (
	"time"

	"gorm.io/gorm"
)

// PDFTemplate is an uploaded certificate background. The file itself lives in
// object storage; the row keeps what the editor needs without reparsing it.
type PDFTemplate struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Filename     string         `gorm:"not null" json:"filename"`
	OriginalName string         `json:"original_name"`
	StoragePath  string         `gorm:"not null" json:"storage_path"`
	PublicURL    string         `json:"public_url"`
	FileSize     int64          `json:"file_size"`
	MimeType     string         `json:"mime_type"`
	SourceType   string         `gorm:"type:varchar(10);default:'pdf'" json:"source_type"` // pdf or docx
	PageCount    int            `json:"page_count"`
	PageSizes    PageSizeList   `gorm:"type:json" json:"page_sizes"`
	Encrypted    bool           `json:"encrypted"`
	Placeholders StringList     `gorm:"type:json" json:"placeholders"` // {{KEY}} markers found in a DOCX source
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PDFTemplate) TableName() string {
	return "pdf_templates"
}
