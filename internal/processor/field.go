package processor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldKey is the closed set of symbolic keys a field can carry. Keys outside
// the set resolve through KeyUnknown, which falls back to a recipient property
// lookup by name.
type FieldKey int

const (
	KeyUnknown FieldKey = iota
	KeyNombre
	KeyCurso
	KeyFecha
	KeyMensaje
	KeyEquipo
	KeyCategoria
	KeyCorreo
	KeyFolio
)

var fieldKeyNames = map[FieldKey]string{
	KeyNombre:    "NOMBRE",
	KeyCurso:     "CURSO",
	KeyFecha:     "FECHA",
	KeyMensaje:   "MENSAJE",
	KeyEquipo:    "EQUIPO",
	KeyCategoria: "CATEGORIA",
	KeyCorreo:    "CORREO",
	KeyFolio:     "FOLIO",
}

// ParseFieldKey maps a stored key to its enum value. Matching ignores case and
// surrounding whitespace; anything else is KeyUnknown.
func ParseFieldKey(s string) FieldKey {
	s = strings.ToUpper(strings.TrimSpace(s))
	for k, name := range fieldKeyNames {
		if name == s {
			return k
		}
	}
	return KeyUnknown
}

func (k FieldKey) String() string {
	if name, ok := fieldKeyNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// KnownFieldKeys lists the symbolic keys offered by the editor.
func KnownFieldKeys() []string {
	return []string{"NOMBRE", "CURSO", "FECHA", "MENSAJE", "EQUIPO", "CATEGORIA", "CORREO", "FOLIO"}
}

// Align is the horizontal alignment of a field's text inside its rectangle.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Normalize maps empty or unrecognized values to AlignLeft.
func (a Align) Normalize() Align {
	switch Align(strings.ToLower(strings.TrimSpace(string(a)))) {
	case AlignCenter:
		return AlignCenter
	case AlignRight:
		return AlignRight
	default:
		return AlignLeft
	}
}

const DefaultFontSize = 16.0

// Field is one positioned text slot of a certificate template. Position and
// size are fractions of the page, measured from the top-left corner; they are
// the only persisted geometry.
type Field struct {
	Key      string  `json:"key" yaml:"key"`
	Page     int     `json:"page" yaml:"page"`
	XPct     float64 `json:"xPct" yaml:"xPct"`
	YPct     float64 `json:"yPct" yaml:"yPct"`
	WPct     float64 `json:"wPct" yaml:"wPct"`
	HPct     float64 `json:"hPct" yaml:"hPct"`
	FontSize float64 `json:"fontSize" yaml:"fontSize"`
	Bold     bool    `json:"bold" yaml:"bold"`
	Align    Align   `json:"align" yaml:"align"`
	Color    string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// Validate rejects fields the editor should never persist. Out-of-page
// rectangles are allowed; they are the author's responsibility.
func (f Field) Validate() error {
	if strings.TrimSpace(f.Key) == "" {
		return fmt.Errorf("field key is required")
	}
	if f.Page < 0 {
		return fmt.Errorf("field %s: page must be >= 0", f.Key)
	}
	for name, v := range map[string]float64{"xPct": f.XPct, "yPct": f.YPct, "wPct": f.WPct, "hPct": f.HPct, "fontSize": f.FontSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("field %s: %s is not a finite number", f.Key, name)
		}
	}
	if f.FontSize < 0 {
		return fmt.Errorf("field %s: fontSize must be positive", f.Key)
	}
	if f.FontSize > MaxFontSize {
		return fmt.Errorf("field %s: fontSize %.1f exceeds %.0fpt", f.Key, f.FontSize, MaxFontSize)
	}
	if f.Color != "" {
		if _, _, _, ok := parseHexColor(f.Color); !ok {
			return fmt.Errorf("field %s: color %q is not #RRGGBB", f.Key, f.Color)
		}
	}
	return nil
}

// PageSize is a page's dimensions in PDF points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is a rectangle in points with a top-left origin.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// RectPoints scales the field's percentage rectangle to the given page.
// Non-finite percentages collapse to zero so the renderer never sees NaN.
func (f Field) RectPoints(page PageSize) Rect {
	return Rect{
		Left:   finite(f.XPct) * page.Width,
		Top:    finite(f.YPct) * page.Height,
		Width:  finite(f.WPct) * page.Width,
		Height: finite(f.HPct) * page.Height,
	}
}

// PercentRect is the inverse of RectPoints for the same page size.
func PercentRect(r Rect, page PageSize) (xPct, yPct, wPct, hPct float64) {
	if page.Width == 0 || page.Height == 0 {
		return 0, 0, 0, 0
	}
	return r.Left / page.Width, r.Top / page.Height, r.Width / page.Width, r.Height / page.Height
}

// Scale returns the rectangle multiplied by s, used to move from points to
// canvas pixels.
func (r Rect) Scale(s float64) Rect {
	return Rect{Left: r.Left * s, Top: r.Top * s, Width: r.Width * s, Height: r.Height * s}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseHexColor accepts "#RRGGBB" or "RRGGBB".
func parseHexColor(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
