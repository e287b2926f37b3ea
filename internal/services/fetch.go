package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrURLNotAllowed = errors.New("url not allowed")

// TemplateFetcher downloads templates kept in third-party object storage.
// Concurrent requests for one URL share a single download.
type TemplateFetcher struct {
	client       *http.Client
	allowedHosts []string
	maxBytes     int64
	group        singleflight.Group
	logger       *zap.Logger
}

func NewTemplateFetcher(allowedHosts []string, timeout time.Duration, maxBytes int64, logger *zap.Logger) *TemplateFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &TemplateFetcher{
		allowedHosts: allowedHosts,
		maxBytes:     maxBytes,
		logger:       applog.OrNop(logger),
	}
	f.client = &http.Client{Timeout: timeout, CheckRedirect: f.checkRedirect}
	return f
}

// checkRedirect applies the allow-list to every hop.
func (f *TemplateFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	_, err := f.CheckURL(req.URL.String())
	return err
}

// CheckURL validates rawURL against the allowed hosts. With no hosts
// configured any https URL is accepted.
func (f *TemplateFetcher) CheckURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrURLNotAllowed, rawURL)
	}
	host := strings.ToLower(u.Hostname())

	if len(f.allowedHosts) == 0 {
		if u.Scheme != "https" {
			return nil, fmt.Errorf("%w: only https URLs are accepted", ErrURLNotAllowed)
		}
		return u, nil
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: scheme %q", ErrURLNotAllowed, u.Scheme)
	}
	for _, allowed := range f.allowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: host %s", ErrURLNotAllowed, host)
}

// Fetch returns the body of rawURL. Every failure matches
// processor.ErrTemplateFetchFailed. The shared download is bounded by the
// client timeout, not by any one caller; ctx only stops this caller waiting.
func (f *TemplateFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := f.CheckURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processor.ErrTemplateFetchFailed, err)
	}

	ch := f.group.DoChan(u.String(), func() (any, error) {
		return f.download(context.WithoutCancel(ctx), u.String())
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", processor.ErrTemplateFetchFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			f.logger.Warn("Template fetch failed", zap.String("url", u.Redacted()), zap.Error(res.Err))
			return nil, fmt.Errorf("%w: %w", processor.ErrTemplateFetchFailed, res.Err)
		}
		if res.Shared {
			f.logger.Debug("Template fetch shared", zap.String("url", u.Redacted()))
		}
		return res.Val.([]byte), nil
	}
}

func (f *TemplateFetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("template is %d bytes, limit is %d", resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("template exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
