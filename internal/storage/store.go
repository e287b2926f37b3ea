package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

// Store is an object storage backend for templates and generated certificates.
type Store interface {
	UploadFile(ctx context.Context, reader io.Reader, objectName, contentType string) (*UploadResult, error)
	ReadFile(ctx context.Context, objectName string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, objectName string) error
	Close() error
}

type UploadResult struct {
	ObjectName string `json:"object_name"`
	PublicURL  string `json:"public_url"`
	Size       int64  `json:"size"`
}

func TemplateObjectName(templateID, filename string) string {
	return fmt.Sprintf("templates/%s/%d_%s", templateID, time.Now().Unix(), path.Base(filename))
}

func CertificateObjectName(courseID, folio, filename string) string {
	return fmt.Sprintf("certificates/%s/%s_%s", courseID, folio, path.Base(filename))
}
