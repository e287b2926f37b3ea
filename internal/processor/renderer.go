package processor

import (
	"errors"
	"fmt"

	applog "CERT-PDF/internal/logger"

	"go.uber.org/zap"
)

// Placement is where and how one field's text lands on its page, in points.
type Placement struct {
	Key      string  `json:"key"`
	Text     string  `json:"text"`
	Page     int     `json:"page"`
	Clamped  bool    `json:"clamped,omitempty"`
	Rect     Rect    `json:"rect"`
	Size     float64 `json:"size"`
	Width    float64 `json:"width"`
	X        float64 `json:"x"`
	Baseline float64 `json:"baseline"`
	Bold     bool    `json:"bold"`
	Color    string  `json:"color,omitempty"`
	Overflow bool    `json:"overflow,omitempty"`
}

// Rendered is one filled certificate.
type Rendered struct {
	Bytes      []byte
	Placements []Placement
}

// Layout fits text into field on a page of the given size. Preview and
// generation both go through it.
func Layout(fonts *StandardFonts, field Field, page PageSize, text string) Placement {
	rect := field.RectPoints(page)
	size := field.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	fit := FitText(fonts.Face(field.Bold), text, size, rect.Width)
	return Placement{
		Key:      field.Key,
		Text:     text,
		Page:     field.Page,
		Rect:     rect,
		Size:     fit.Size,
		Width:    fit.Width,
		X:        Place(rect, field.Align, fit.Width),
		Baseline: Baseline(page.Height, rect.Top, rect.Height, fit.Size),
		Bold:     field.Bold,
		Color:    field.Color,
		Overflow: fit.Overflow,
	}
}

// Renderer fills templates for single recipients.
type Renderer struct {
	fonts  *StandardFonts
	logger *zap.Logger
}

func NewRenderer(fonts *StandardFonts, logger *zap.Logger) *Renderer {
	if fonts == nil {
		fonts = NewStandardFonts()
	}
	logger = applog.OrNop(logger)
	return &Renderer{fonts: fonts, logger: logger}
}

// Fonts exposes the metrics source so callers can share it with previews.
func (r *Renderer) Fonts() *StandardFonts {
	return r.fonts
}

// Render draws every field for recipient onto a fresh copy of doc. Fields
// pointing past the last page are clamped onto it; empty values are skipped.
func (r *Renderer) Render(doc *Document, fields []Field, recipient *Recipient, ctx *Context) (*Rendered, error) {
	if doc == nil {
		return nil, &RenderError{Op: "load", Index: -1, Err: ErrMalformedTemplate}
	}
	if recipient == nil {
		return nil, &RenderError{Op: "validate", Index: -1, Err: fmt.Errorf("%w: no recipient", ErrInvalidRecipient)}
	}
	if err := recipient.Validate(); err != nil {
		return nil, &RenderError{Op: "validate", Index: -1, Err: err}
	}

	byPage := make(map[int][]Placement)
	var placements []Placement
	for _, f := range fields {
		text, err := Lookup(f.Key, recipient, ctx)
		if err != nil {
			if errors.Is(err, ErrFieldResolutionMiss) {
				r.logger.Debug("Field resolved empty", zap.String("key", f.Key))
			}
			continue
		}

		page, clamped := doc.ClampPage(f.Page)
		if clamped {
			r.logger.Warn("Field page out of range, clamped",
				zap.String("key", f.Key),
				zap.Int("page", f.Page),
				zap.Int("clampedTo", page),
				zap.Int("pageCount", doc.PageCount()))
		}
		size, _ := doc.PageSize(page)

		f.Page = page
		p := Layout(r.fonts, f, size, text)
		p.Clamped = clamped
		if p.Overflow {
			r.logger.Debug("Field text clipped",
				zap.String("key", f.Key),
				zap.Error(ErrTextOverflow),
				zap.Float64("width", p.Width),
				zap.Float64("maxWidth", p.Rect.Width))
		}
		byPage[page] = append(byPage[page], p)
		placements = append(placements, p)
	}

	out, err := doc.Render(func(pageIndex int, page *Page) error {
		for _, p := range byPage[pageIndex] {
			page.DrawText(p.X, p.Baseline, p.Text, p.Bold, p.Size, p.Color)
		}
		return nil
	})
	if err != nil {
		return nil, &RenderError{Op: "draw", Index: -1, Err: err}
	}
	return &Rendered{Bytes: out, Placements: placements}, nil
}
