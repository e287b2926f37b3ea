package processor

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config directory under the user's home.
	api.DisableConfigDir()
}

// Document is a parsed, immutable template. Rendering never mutates it: every
// Render call imports the pages again into a new output document.
type Document struct {
	data      []byte
	pages     []PageSize
	encrypted bool
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load parses template bytes. Owner-protected templates (no user password) are
// decrypted in memory so their pages can be imported.
func Load(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedTemplate)
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), newConfiguration())
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, fmt.Errorf("%w: template requires a user password", ErrMalformedTemplate)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("%w: template has no pages", ErrMalformedTemplate)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: reading page sizes: %v", ErrMalformedTemplate, err)
	}
	pages := make([]PageSize, len(dims))
	for i, d := range dims {
		pages[i] = PageSize{Width: d.Width, Height: d.Height}
	}

	doc := &Document{data: data, pages: pages}
	if ctx.Encrypt != nil {
		var buf bytes.Buffer
		if err := api.Decrypt(bytes.NewReader(data), &buf, newConfiguration()); err != nil {
			return nil, fmt.Errorf("%w: removing owner protection: %v", ErrMalformedTemplate, err)
		}
		doc.data = buf.Bytes()
		doc.encrypted = true
	}
	return doc, nil
}

// PageCount returns the number of template pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// PageSize returns the size of page i (zero-based) in points.
func (d *Document) PageSize(i int) (PageSize, error) {
	if i < 0 || i >= len(d.pages) {
		return PageSize{}, fmt.Errorf("%w: page %d of %d", ErrPageIndexOutOfRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// PageSizes returns a copy of every page size.
func (d *Document) PageSizes() []PageSize {
	out := make([]PageSize, len(d.pages))
	copy(out, d.pages)
	return out
}

// ClampPage maps i into the valid page range, reporting whether it changed.
func (d *Document) ClampPage(i int) (int, bool) {
	switch {
	case i < 0:
		return 0, true
	case i >= len(d.pages):
		return len(d.pages) - 1, true
	}
	return i, false
}

// Encrypted reports whether the template carried owner protection.
func (d *Document) Encrypted() bool {
	return d.encrypted
}

// DrawFunc draws onto one template page during Render.
type DrawFunc func(pageIndex int, p *Page) error

// Page is the drawing surface of one rendered page.
type Page struct {
	Size PageSize
	pdf  *gofpdf.Fpdf
	tr   func(string) string
}

// DrawText draws text with its left edge at x and its baseline at baseline,
// both in PDF space (origin bottom-left).
func (p *Page) DrawText(x, baseline float64, text string, bold bool, size float64, color string) {
	style := styleRegular
	if bold {
		style = styleBold
	}
	r, g, b, ok := parseHexColor(color)
	if !ok {
		r, g, b = 0, 0, 0
	}
	p.pdf.SetFont(fontFamily, style, size)
	p.pdf.SetTextColor(r, g, b)
	// gofpdf measures y from the top of the page.
	p.pdf.Text(x, p.Size.Height-baseline, p.tr(text))
}

// Render builds a new PDF from the template pages, calling draw for each page
// after its template content is placed, and returns the serialized bytes.
func (d *Document) Render(draw DrawFunc) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("rendering template: %v", r)
		}
	}()

	pdf := gofpdf.New("P", measureUnitPt, "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	// Register both faces up front so each output embeds exactly these two.
	pdf.SetFont(fontFamily, styleBold, DefaultFontSize)
	pdf.SetFont(fontFamily, styleRegular, DefaultFontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor(fontCodepage)

	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(d.data))

	for i, size := range d.pages {
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: size.Width, Ht: size.Height})
		tpl := imp.ImportPageFromStream(pdf, &rs, i+1, "/MediaBox")
		imp.UseImportedTemplate(pdf, tpl, 0, 0, size.Width, size.Height)

		if draw != nil {
			if err := draw(i, &Page{Size: size, pdf: pdf, tr: tr}); err != nil {
				return nil, err
			}
		}
	}

	if pdf.Err() {
		return nil, fmt.Errorf("building document: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}
	return buf.Bytes(), nil
}
