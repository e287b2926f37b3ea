package processor

import "strings"

// Appearance carries the default styling applied to fields that leave a value
// unset. Zero values mean "not set at this layer".
type Appearance struct {
	FontSize float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	Align    Align   `json:"align,omitempty" yaml:"align,omitempty"`
	Color    string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// MergeAppearance folds layers in order; a later layer overrides an earlier one
// only where it sets a value. Typical order: system defaults, course config.
func MergeAppearance(layers ...Appearance) Appearance {
	var out Appearance
	for _, l := range layers {
		if l.FontSize > 0 {
			out.FontSize = l.FontSize
		}
		if strings.TrimSpace(string(l.Align)) != "" {
			out.Align = l.Align.Normalize()
		}
		if strings.TrimSpace(l.Color) != "" {
			out.Color = l.Color
		}
	}
	return out
}

// ApplyAppearance returns a copy of fields with unset values filled from app.
// Font sizes still unset afterwards get DefaultFontSize and alignment is
// normalized, so the result is ready for rendering.
func ApplyAppearance(fields []Field, app Appearance) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if f.FontSize <= 0 {
			f.FontSize = app.FontSize
		}
		if f.FontSize <= 0 {
			f.FontSize = DefaultFontSize
		}
		if strings.TrimSpace(string(f.Align)) == "" {
			f.Align = app.Align
		}
		f.Align = f.Align.Normalize()
		if f.Color == "" {
			f.Color = app.Color
		}
		out[i] = f
	}
	return out
}
