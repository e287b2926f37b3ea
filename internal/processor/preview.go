package processor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// MaxPreviewWidth caps the canvas width in pixels.
const MaxPreviewWidth = 4096

// maxBackgroundSide bounds the source images RenderOverlay will resample.
// Larger or unbounded images, such as image.Uniform, are painted unscaled.
const maxBackgroundSide = 1 << 14

// PreviewInput describes the first page of a template as shown in an editor
// container of ContainerWidth pixels.
type PreviewInput struct {
	Page           PageSize
	ContainerWidth float64
	Fields         []Field
	Recipient      *Recipient
	Context        *Context
	Fonts          *StandardFonts
}

// OverlayNode is one field as an absolutely positioned box on the canvas.
// TextLeft and BaselineY are canvas pixels from the top-left corner.
type OverlayNode struct {
	Key       string  `json:"key"`
	Text      string  `json:"text"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	FontSize  float64 `json:"fontSize"`
	PointSize float64 `json:"pointSize"`
	TextLeft  float64 `json:"textLeft"`
	BaselineY float64 `json:"baselineY"`
	Bold      bool    `json:"bold"`
	Align     Align   `json:"align"`
	Color     string  `json:"color,omitempty"`
	Overflow  bool    `json:"overflow,omitempty"`
}

// Preview is the overlay for page 0 of a template.
type Preview struct {
	Width      float64       `json:"width"`
	Height     float64       `json:"height"`
	Scale      float64       `json:"scale"`
	PageWidth  float64       `json:"pageWidth"`
	PageHeight float64       `json:"pageHeight"`
	Nodes      []OverlayNode `json:"nodes"`
}

// BuildPreview scales page 0 to the container width and lays out every page-0
// field through the same fit engine the generator uses. Fields on other pages
// are not shown.
func BuildPreview(in PreviewInput) Preview {
	if in.Page.Width <= 0 || in.Page.Height <= 0 {
		return Preview{Nodes: []OverlayNode{}}
	}
	fonts := in.Fonts
	if fonts == nil {
		fonts = NewStandardFonts()
	}

	w := in.ContainerWidth
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		w = in.Page.Width
	}
	w = math.Min(w, MaxPreviewWidth)
	h := w * in.Page.Height / in.Page.Width
	scale := w / in.Page.Width

	pv := Preview{
		Width:      w,
		Height:     h,
		Scale:      scale,
		PageWidth:  in.Page.Width,
		PageHeight: in.Page.Height,
		Nodes:      make([]OverlayNode, 0, len(in.Fields)),
	}
	for _, f := range in.Fields {
		if f.Page != 0 {
			continue
		}
		text := Resolve(f.Key, in.Recipient, in.Context)
		p := Layout(fonts, f, in.Page, text)
		pv.Nodes = append(pv.Nodes, OverlayNode{
			Key:       f.Key,
			Text:      text,
			Left:      finite(f.XPct) * w,
			Top:       finite(f.YPct) * h,
			Width:     finite(f.WPct) * w,
			Height:    finite(f.HPct) * h,
			FontSize:  p.Size * scale,
			PointSize: p.Size,
			TextLeft:  p.X * scale,
			BaselineY: (in.Page.Height - p.Baseline) * scale,
			Bold:      f.Bold,
			Align:     f.Align.Normalize(),
			Color:     f.Color,
			Overflow:  p.Overflow,
		})
	}
	return pv
}

var (
	goFontsOnce sync.Once
	goRegular   *opentype.Font
	goBold      *opentype.Font
	goFontsErr  error
)

func loadGoFonts() error {
	goFontsOnce.Do(func() {
		if goRegular, goFontsErr = opentype.Parse(goregular.TTF); goFontsErr != nil {
			return
		}
		goBold, goFontsErr = opentype.Parse(gobold.TTF)
	})
	return goFontsErr
}

var outlineColor = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}

// RenderOverlay rasterizes a preview. background, usually page 0 rendered by
// the client, is scaled to the canvas; without it the canvas is white.
func RenderOverlay(pv Preview, background image.Image) (*image.RGBA, error) {
	if err := loadGoFonts(); err != nil {
		return nil, fmt.Errorf("failed to load preview fonts: %w", err)
	}
	w, h := int(math.Ceil(pv.Width)), int(math.Ceil(pv.Height))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("preview has no area")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	if background != nil {
		b := background.Bounds()
		if b.Empty() || b.Dx() > maxBackgroundSide || b.Dy() > maxBackgroundSide {
			xdraw.Draw(dst, dst.Bounds(), background, b.Min, xdraw.Over)
		} else {
			xdraw.CatmullRom.Scale(dst, dst.Bounds(), background, b, xdraw.Over, nil)
		}
	}

	for _, n := range pv.Nodes {
		strokeRect(dst, n, outlineColor)
		if n.Text == "" || n.FontSize < 1 {
			continue
		}
		f := goRegular
		if n.Bold {
			f = goBold
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: n.FontSize, DPI: 72, Hinting: font.HintingNone})
		if err != nil {
			return nil, fmt.Errorf("failed to build face for %s: %w", n.Key, err)
		}
		r, g, b, ok := parseHexColor(n.Color)
		if !ok {
			r, g, b = 0, 0, 0
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 0xff}),
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.Int26_6(n.TextLeft * 64), Y: fixed.Int26_6(n.BaselineY * 64)},
		}
		d.DrawString(n.Text)
		face.Close()
	}
	return dst, nil
}

// strokeRect outlines n, clipped to the canvas.
func strokeRect(dst *image.RGBA, n OverlayNode, c color.RGBA) {
	b := dst.Bounds()
	clip := func(v float64, lo, hi int) int {
		v = math.Round(finite(v))
		return int(math.Max(float64(lo-1), math.Min(v, float64(hi))))
	}
	x0, x1 := clip(n.Left, b.Min.X, b.Max.X), clip(n.Left+n.Width, b.Min.X, b.Max.X)
	y0, y1 := clip(n.Top, b.Min.Y, b.Max.Y), clip(n.Top+n.Height, b.Min.Y, b.Max.Y)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for x := max(x0, b.Min.X); x <= min(x1, b.Max.X-1); x++ {
		dst.SetRGBA(x, y0, c)
		dst.SetRGBA(x, y1, c)
	}
	for y := max(y0, b.Min.Y); y <= min(y1, b.Max.Y-1); y++ {
		dst.SetRGBA(x0, y, c)
		dst.SetRGBA(x1, y, c)
	}
}
