package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSClient stores templates and certificates in a Google Cloud Storage bucket.
type GCSClient struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func NewGCSClient(ctx context.Context, bucketName, projectID, credentialsPath string) (*GCSClient, error) {
	if bucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}

	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	if projectID != "" {
		opts = append(opts, option.WithQuotaProject(projectID))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSClient{client: client, bucket: client.Bucket(bucketName), name: bucketName}, nil
}

// UploadFile writes the object. Generated certificates are immutable once
// written, so they get a long cache lifetime and an inline disposition.
func (g *GCSClient) UploadFile(ctx context.Context, reader io.Reader, objectName, contentType string) (*UploadResult, error) {
	w := g.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if strings.HasPrefix(objectName, "certificates/") {
		w.CacheControl = "public, max-age=86400"
		w.ContentDisposition = fmt.Sprintf("inline; filename=%q", path.Base(objectName))
	}

	size, err := io.Copy(w, reader)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write %s to GCS: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize %s in GCS: %w", objectName, err)
	}

	return &UploadResult{
		ObjectName: objectName,
		PublicURL:  g.publicURL(objectName),
		Size:       size,
	}, nil
}

func (g *GCSClient) ReadFile(ctx context.Context, objectName string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, gcsError(objectName, err)
	}
	return r, nil
}

func (g *GCSClient) DeleteFile(ctx context.Context, objectName string) error {
	if err := g.bucket.Object(objectName).Delete(ctx); err != nil {
		return gcsError(objectName, err)
	}
	return nil
}

func (g *GCSClient) publicURL(objectName string) string {
	return (&url.URL{
		Scheme: "https",
		Host:   "storage.googleapis.com",
		Path:   "/" + g.name + "/" + objectName,
	}).String()
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}

func gcsError(objectName string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("object %s: %w", objectName, os.ErrNotExist)
	}
	return fmt.Errorf("object %s: %w", objectName, err)
}

