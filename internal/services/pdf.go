package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	applog "CERT-PDF/internal/logger"

	"github.com/starwalkn/gotenberg-go-client/v8"
	"github.com/starwalkn/gotenberg-go-client/v8/document"
	"go.uber.org/zap"
)

// DocxConverter turns a Word document into PDF bytes.
type DocxConverter interface {
	ConvertDocxToPDF(ctx context.Context, docx []byte, filename string, landscape bool) ([]byte, error)
}

type PDFService struct {
	client     *gotenberg.Client
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

func NewPDFService(gotenbergURL string, timeoutStr string, logger *zap.Logger) (*PDFService, error) {
	logger = applog.OrNop(logger)
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second
		logger.Warn("Invalid Gotenberg timeout, using default",
			zap.String("timeout", timeoutStr),
			zap.Duration("default", timeout),
			zap.Error(err))
	}

	client, err := gotenberg.NewClient(gotenbergURL, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gotenberg client: %w", err)
	}

	return &PDFService{
		client:     client,
		timeout:    timeout,
		maxRetries: 3,
		logger:     logger,
	}, nil
}

// ConvertDocxToPDF sends the document to Gotenberg's LibreOffice route,
// retrying with a linear backoff.
func (s *PDFService) ConvertDocxToPDF(ctx context.Context, docx []byte, filename string, landscape bool) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		out, err := s.convertOnce(ctx, docx, filename, landscape)
		if err == nil {
			return out, nil
		}
		lastErr = err
		s.logger.Warn("PDF conversion attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", s.maxRetries),
			zap.Error(err))

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("failed to convert document after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *PDFService) convertOnce(ctx context.Context, docx []byte, filename string, landscape bool) ([]byte, error) {
	convertCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := document.FromReader(filename, bytes.NewReader(docx))
	if err != nil {
		return nil, fmt.Errorf("failed to create document from reader: %w", err)
	}

	req := gotenberg.NewLibreOfficeRequest(doc)
	if landscape {
		req.Landscape()
	}

	resp, err := s.client.Send(convertCtx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gotenberg returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted document: %w", err)
	}
	return out, nil
}
