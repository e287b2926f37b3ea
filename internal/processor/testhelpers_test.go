package processor

import (
	"bytes"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"
)

// templatePDF builds a template with the given number of pages, each w×h points.
func templatePDF(t *testing.T, pages int, w, h float64) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	for i := 0; i < pages; i++ {
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		pdf.SetFont("Times", "", 12)
		pdf.Text(40, 40, "Constancia de participación")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// pageContent returns the decoded content stream of page n (1-based).
func pageContent(t *testing.T, data []byte, n int) []byte {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(data), newConfiguration())
	require.NoError(t, err)
	require.NoError(t, api.ValidateContext(ctx))
	dict, _, _, err := ctx.PageDict(n, false)
	require.NoError(t, err)
	content, err := ctx.PageContent(dict, n)
	require.NoError(t, err)
	return content
}

// fixedFont measures every rune as perEm × size.
type fixedFont struct{ perEm float64 }

func (f fixedFont) Width(text string, size float64) float64 {
	return float64(len([]rune(text))) * f.perEm * size
}
