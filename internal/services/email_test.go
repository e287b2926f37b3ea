package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"CERT-PDF/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailClientSend(t *testing.T) {
	var got sendCertificateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send-certificate-email", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "bounce@example.com" {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"smtp unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewEmailClient(srv.URL+"/", 5*time.Second, 1024)
	pdf := []byte("%PDF-1.4 data")

	require.NoError(t, client.Send(context.Background(), "ana@example.com", pdf, "Ana", "Participante"))
	assert.Equal(t, "ana@example.com", got.To)
	assert.Equal(t, "Ana", got.RecipientName)
	assert.Equal(t, "Participante", got.Role)
	decoded, err := base64.StdEncoding.DecodeString(got.PDFBase64)
	require.NoError(t, err)
	assert.Equal(t, pdf, decoded)

	err = client.Send(context.Background(), "bounce@example.com", pdf, "B", "")
	assert.ErrorIs(t, err, processor.ErrEmailSendFailed)
	assert.Contains(t, err.Error(), "smtp unavailable")

	err = client.Send(context.Background(), "ana@example.com", make([]byte, 2048), "Ana", "")
	assert.ErrorIs(t, err, processor.ErrEmailSendFailed)

	err = NewEmailClient("", time.Second, 1024).Send(context.Background(), "a@b.c", pdf, "A", "")
	assert.ErrorIs(t, err, processor.ErrEmailSendFailed)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeSender) Send(_ context.Context, to string, _ []byte, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to] {
		return errors.Join(processor.ErrEmailSendFailed, errors.New("rejected"))
	}
	f.sent = append(f.sent, to)
	return nil
}

func TestEmailDispatcher(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"bad@example.com": true}}
	d := NewEmailDispatcher(sender, 0, nil)
	pdf := []byte("pdf")

	items := []EmailItem{
		{Index: 0, Name: "Ana", Email: "ana@example.com", PDF: pdf},
		{Index: 1, Name: "Sin", Email: "", PDF: pdf},
		{Index: 2, Name: "Bad", Email: "bad@example.com", PDF: pdf},
		{Index: 3, Name: "Failed render", Email: "x@example.com"},
	}
	report := d.SendAll(context.Background(), "b1", items)
	require.Len(t, report.Rows, 4)
	assert.Equal(t, EmailSent, report.Rows[0].Status)
	assert.Equal(t, EmailNoEmail, report.Rows[1].Status)
	assert.Equal(t, EmailFailed, report.Rows[2].Status)
	assert.Contains(t, report.Rows[2].Error, "rejected")
	assert.Equal(t, EmailPending, report.Rows[3].Status)
	assert.Equal(t, "1 enviados / 1 sin correo / 1 fallidos / 1 pendientes", report.Tally)
	assert.Equal(t, []string{"ana@example.com"}, sender.sent)

	sender.fail = nil
	report, err := d.Retry(context.Background(), "b1", items[2])
	require.NoError(t, err)
	assert.Equal(t, EmailSent, report.Rows[2].Status)
	assert.Empty(t, report.Rows[2].Error)
	assert.Equal(t, "2 enviados / 1 sin correo / 0 fallidos / 1 pendientes", report.Tally)

	stored, ok := d.Report("b1")
	require.True(t, ok)
	assert.Equal(t, report.Tally, stored.Tally)

	_, err = d.Retry(context.Background(), "missing", items[0])
	assert.Error(t, err)
	_, err = d.Retry(context.Background(), "b1", EmailItem{Index: 42, Email: "z@example.com", PDF: pdf})
	assert.Error(t, err)
	assert.Len(t, sender.sent, 2)
}

func TestEmailDispatcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewEmailDispatcher(&fakeSender{}, 0, nil)
	report := d.SendAll(ctx, "b", []EmailItem{{Index: 0, Name: "A", Email: "a@example.com", PDF: []byte("x")}})
	assert.Equal(t, 1, report.Pending)
}
