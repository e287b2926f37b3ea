package processor

import (
	"sync"

	"github.com/jung-kurt/gofpdf"
)

const (
	fontFamily    = "Helvetica"
	styleRegular  = ""
	styleBold     = "B"
	fontCodepage  = "" // cp1252
	measureUnitPt = "pt"
)

// Font measures text at a given size in points.
type Font interface {
	Width(text string, size float64) float64
}

// StandardFonts measures text with the metrics of the two standard fonts the
// renderer embeds (Helvetica and Helvetica-Bold). Preview and generation share
// it so both fit text identically.
type StandardFonts struct {
	mu  sync.Mutex
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

// NewStandardFonts builds a metrics source backed by a scratch document.
func NewStandardFonts() *StandardFonts {
	pdf := gofpdf.New("P", measureUnitPt, "A4", "")
	return &StandardFonts{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(fontCodepage),
	}
}

// Face returns the bold or regular face.
func (s *StandardFonts) Face(bold bool) Font {
	style := styleRegular
	if bold {
		style = styleBold
	}
	return standardFace{fonts: s, style: style}
}

func (s *StandardFonts) width(style, text string, size float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pdf.SetFont(fontFamily, style, size)
	return s.pdf.GetStringWidth(s.tr(text))
}

type standardFace struct {
	fonts *StandardFonts
	style string
}

func (f standardFace) Width(text string, size float64) float64 {
	return f.fonts.width(f.style, text, size)
}
