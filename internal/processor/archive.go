package processor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// GeneratedCertificate is one finished certificate. URL and StoragePath are
// set only after a successful upload.
type GeneratedCertificate struct {
	Index       int       `json:"index"`
	Recipient   Recipient `json:"recipient"`
	Bytes       []byte    `json:"-"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url,omitempty"`
	StoragePath string    `json:"storagePath,omitempty"`
	LocalURL    string    `json:"localUrl,omitempty"`
}

// GenerationResult is the outcome for one recipient: a certificate or an error.
type GenerationResult struct {
	Index       int                   `json:"index"`
	Recipient   Recipient             `json:"recipient"`
	Certificate *GeneratedCertificate `json:"certificate,omitempty"`
	Err         error                 `json:"-"`
}

// OK reports whether the recipient's certificate was produced.
func (r GenerationResult) OK() bool {
	return r.Err == nil && r.Certificate != nil
}

// Error returns the failure message, or "" on success.
func (r GenerationResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ZipAll packs every certificate into one archive named by recipient.
// Repeated names get a numeric suffix: _2, _3 and so on.
func ZipAll(certs []GeneratedCertificate) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]int)
	now := time.Now()

	for _, c := range certs {
		if len(c.Bytes) == 0 {
			continue
		}
		name := uniqueName(CertificateFilename(c.Recipient.Name), seen)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(c.Bytes); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(name string, seen map[string]int) string {
	key := strings.ToLower(name)
	seen[key]++
	if seen[key] == 1 {
		return name
	}
	base := strings.TrimSuffix(name, ".pdf")
	for n := seen[key]; ; n++ {
		candidate := fmt.Sprintf("%s_%d.pdf", base, n)
		if _, taken := seen[strings.ToLower(candidate)]; !taken {
			seen[strings.ToLower(candidate)] = 1
			seen[key] = n
			return candidate
		}
	}
}
