package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender delivers one certificate by email.
type Sender interface {
	Send(ctx context.Context, to string, pdf []byte, recipientName, role string) error
}

// EmailClient posts certificates to the mail gateway's
// /send-certificate-email endpoint.
type EmailClient struct {
	baseURL       string
	client        *http.Client
	maxAttachment int64
}

func NewEmailClient(baseURL string, timeout time.Duration, maxAttachment int64) *EmailClient {
	return &EmailClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		maxAttachment: maxAttachment,
	}
}

type sendCertificateRequest struct {
	To            string `json:"to"`
	RecipientName string `json:"recipientName"`
	Role          string `json:"role"`
	PDFBase64     string `json:"pdfBase64"`
}

// Send fails with processor.ErrEmailSendFailed on any rejection, including an
// attachment over the configured size.
func (c *EmailClient) Send(ctx context.Context, to string, pdf []byte, recipientName, role string) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: email service is not configured", processor.ErrEmailSendFailed)
	}
	if c.maxAttachment > 0 && int64(len(pdf)) > c.maxAttachment {
		return fmt.Errorf("%w: attachment is %d bytes, limit is %d", processor.ErrEmailSendFailed, len(pdf), c.maxAttachment)
	}

	body, err := json.Marshal(sendCertificateRequest{
		To:            to,
		RecipientName: recipientName,
		Role:          role,
		PDFBase64:     base64.StdEncoding.EncodeToString(pdf),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrEmailSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-certificate-email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrEmailSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrEmailSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return fmt.Errorf("%w: %s", processor.ErrEmailSendFailed, gatewayMessage(resp))
}

func gatewayMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return resp.Status
}

type EmailStatus string

const (
	EmailSent    EmailStatus = "enviado"
	EmailNoEmail EmailStatus = "sin correo"
	EmailFailed  EmailStatus = "fallido"
	EmailPending EmailStatus = "pendiente"
)

// EmailItem is one certificate waiting to be mailed.
type EmailItem struct {
	Index int
	Name  string
	Email string
	Role  string
	PDF   []byte
}

type EmailRow struct {
	Index  int         `json:"index"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Status EmailStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// EmailReport has one row per certificate of a batch.
type EmailReport struct {
	BatchID string     `json:"batchId"`
	Rows    []EmailRow `json:"rows"`
	Sent    int        `json:"sent"`
	NoEmail int        `json:"noEmail"`
	Failed  int        `json:"failed"`
	Pending int        `json:"pending"`
	Tally   string     `json:"tally"`
}

func (r *EmailReport) recount() {
	r.Sent, r.NoEmail, r.Failed, r.Pending = 0, 0, 0, 0
	for _, row := range r.Rows {
		switch row.Status {
		case EmailSent:
			r.Sent++
		case EmailNoEmail:
			r.NoEmail++
		case EmailFailed:
			r.Failed++
		default:
			r.Pending++
		}
	}
	r.Tally = fmt.Sprintf("%d enviados / %d sin correo / %d fallidos / %d pendientes", r.Sent, r.NoEmail, r.Failed, r.Pending)
}

func (r *EmailReport) clone() *EmailReport {
	c := *r
	c.Rows = append([]EmailRow(nil), r.Rows...)
	return &c
}

// EmailDispatcher sends a batch's certificates one at a time and keeps the
// latest report per batch for row retries.
type EmailDispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	reports map[string]*EmailReport
}

func NewEmailDispatcher(sender Sender, interval time.Duration, logger *zap.Logger) *EmailDispatcher {
	logger = applog.OrNop(logger)
	d := &EmailDispatcher{sender: sender, logger: logger, reports: make(map[string]*EmailReport)}
	if interval > 0 {
		d.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return d
}

// SendAll mails every item in order. Items without an address are reported as
// "sin correo" without a send; items without a PDF stay "pendiente", as do
// all rows left when ctx is cancelled.
func (d *EmailDispatcher) SendAll(ctx context.Context, batchID string, items []EmailItem) *EmailReport {
	report := &EmailReport{BatchID: batchID, Rows: make([]EmailRow, len(items))}
	for i, it := range items {
		report.Rows[i] = EmailRow{Index: it.Index, Name: it.Name, Email: it.Email, Status: EmailPending}
	}

	sent := 0
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(it.Email) == "" {
			report.Rows[i].Status = EmailNoEmail
			continue
		}
		if len(it.PDF) == 0 {
			continue
		}
		if d.limiter != nil && sent > 0 {
			if err := d.limiter.Wait(ctx); err != nil {
				break
			}
		}
		sent++
		d.deliver(ctx, it, &report.Rows[i])
	}

	report.recount()
	d.mu.Lock()
	d.reports[batchID] = report
	d.mu.Unlock()

	d.logger.Info("Email batch finished", zap.String("batchId", batchID), zap.String("tally", report.Tally))
	return report.clone()
}

// Retry re-sends one item and updates its row in the stored report.
func (d *EmailDispatcher) Retry(ctx context.Context, batchID string, item EmailItem) (*EmailReport, error) {
	d.mu.Lock()
	report, ok := d.reports[batchID]
	pos := -1
	if ok {
		for i := range report.Rows {
			if report.Rows[i].Index == item.Index {
				pos = i
				break
			}
		}
	}
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no email report for batch %s", batchID)
	}
	if pos < 0 {
		return nil, fmt.Errorf("batch %s has no email row %d", batchID, item.Index)
	}

	row := EmailRow{Index: item.Index, Name: item.Name, Email: item.Email, Status: EmailPending}
	switch {
	case strings.TrimSpace(item.Email) == "":
		row.Status = EmailNoEmail
	case len(item.PDF) > 0:
		d.deliver(ctx, item, &row)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	report.Rows[pos] = row
	report.recount()
	return report.clone(), nil
}

// Report returns the stored report for a batch.
func (d *EmailDispatcher) Report(batchID string) (*EmailReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reports[batchID]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

func (d *EmailDispatcher) deliver(ctx context.Context, it EmailItem, row *EmailRow) {
	if err := d.sender.Send(ctx, it.Email, it.PDF, it.Name, it.Role); err != nil {
		row.Status = EmailFailed
		row.Error = err.Error()
		d.logger.Warn("Certificate email failed", zap.Int("index", it.Index), zap.String("to", it.Email), zap.Error(err))
		return
	}
	row.Status = EmailSent
	row.Error = ""
}
