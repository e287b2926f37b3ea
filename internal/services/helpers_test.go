package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"CERT-PDF/internal"
	"CERT-PDF/internal/processor"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory database with every table migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, internal.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// templatePDF builds a landscape-letter template with the given page count.
func templatePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("L", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.SetFont("Times", "", 14)
		pdf.Text(60, 60, "Constancia")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func nameField() processor.Field {
	return processor.Field{Key: "NOMBRE", Page: 0, XPct: 0.1, YPct: 0.4, WPct: 0.8, HPct: 0.1, FontSize: 24, Bold: true, Align: processor.AlignCenter}
}

func recipients(names ...string) []processor.Recipient {
	out := make([]processor.Recipient, len(names))
	for i, n := range names {
		out[i] = processor.Recipient{Name: n, Email: strings.ToLower(strings.ReplaceAll(n, " ", ".")) + "@example.com"}
	}
	return out
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	require.Eventually(t, job.Done, 10*time.Second, 10*time.Millisecond)
}
