package processor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitNeverExceedsRequested(t *testing.T) {
	font := fixedFont{perEm: 0.5}
	for _, requested := range []float64{8, 12, 16, 24, 48} {
		for _, max := range []float64{0, 10, 50, 100, 400, 1000} {
			size := Fit(font, "Constancia de participación", requested, max)
			assert.LessOrEqual(t, size, requested)
			assert.GreaterOrEqual(t, size, MinFontSize)
		}
	}
}

func TestFitMonotonicInWidth(t *testing.T) {
	fonts := NewStandardFonts()
	text := "María José Hernández Ochoa"
	for _, bold := range []bool{false, true} {
		face := fonts.Face(bold)
		prev := Fit(face, text, 30, 1000)
		for max := 1000.0; max >= 0; max -= 7 {
			size := Fit(face, text, 30, max)
			assert.LessOrEqual(t, size, prev, "max=%v", max)
			prev = size
		}
	}
}

func TestFitFloor(t *testing.T) {
	res := FitText(fixedFont{perEm: 0.6}, "a very long name that cannot possibly fit", 24, 5)
	assert.Equal(t, MinFontSize, res.Size)
	assert.True(t, res.Overflow)
	assert.Greater(t, res.Width, 5.0)
}

func TestFitRaisesTinyRequest(t *testing.T) {
	assert.Equal(t, MinFontSize, Fit(fixedFont{perEm: 0.5}, "x", 4, 100))
}

func TestFitSteps(t *testing.T) {
	// 10 runes at 0.5em: width = 5*size, so a 100pt box fits at exactly 20pt.
	res := FitText(fixedFont{perEm: 0.5}, "abcdefghij", 24, 100)
	assert.Equal(t, 20.0, res.Size)
	assert.False(t, res.Overflow)

	res = FitText(fixedFont{perEm: 0.5}, "abcdefghij", 24, 99)
	assert.Equal(t, 19.5, res.Size)
}

func stepFit(font Font, text string, requested, maxWidth float64) float64 {
	size := requested
	for font.Width(text, size) > maxWidth && size > MinFontSize {
		size = math.Max(size-FitStep, MinFontSize)
	}
	return size
}

func TestFitMatchesStepping(t *testing.T) {
	fonts := NewStandardFonts()
	text := "José Ángel Domínguez"
	for _, requested := range []float64{8, 9.5, 12, 24, 36, 72, 200} {
		for max := 0.0; max <= 900; max += 13 {
			assert.Equal(t, stepFit(fonts.Face(true), text, requested, max),
				Fit(fonts.Face(true), text, requested, max), "requested=%v max=%v", requested, max)
		}
	}
}

func TestFitHugeRequestIsBounded(t *testing.T) {
	start := time.Now()
	res := FitText(fixedFont{perEm: 0.5}, "abcdefghij", 1e9, 100)
	assert.Equal(t, 20.0, res.Size)
	assert.False(t, res.Overflow)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, MaxFontSize, Fit(fixedFont{perEm: 0.5}, "a", 1e9, 1e6))
}

func TestPlace(t *testing.T) {
	rect := Rect{Left: 50, Top: 10, Width: 200, Height: 30}

	assert.Equal(t, 50.0, Place(rect, AlignLeft, 80))
	assert.Equal(t, 110.0, Place(rect, AlignCenter, 80))
	assert.Equal(t, 170.0, Place(rect, AlignRight, 80))
	assert.Equal(t, 50.0, Place(rect, Align("bogus"), 80))
}

func TestPlaceClampsWideText(t *testing.T) {
	rect := Rect{Left: 50, Width: 100}
	for _, a := range []Align{AlignLeft, AlignCenter, AlignRight} {
		x := Place(rect, a, 300)
		assert.Equal(t, rect.Left, x, a)
	}

	negative := Rect{Left: 20, Width: -40}
	for _, a := range []Align{AlignLeft, AlignCenter, AlignRight} {
		assert.GreaterOrEqual(t, Place(negative, a, 10), negative.Left)
	}
}

func TestBaseline(t *testing.T) {
	// Size-bound: 0.9*20 = 18 < 40.
	assert.InDelta(t, 842-100-18, Baseline(842, 100, 40, 20), 1e-9)
	// Height-bound: 10 < 0.9*20.
	assert.InDelta(t, 842-100-10, Baseline(842, 100, 10, 20), 1e-9)
}

func TestStandardFontsMetrics(t *testing.T) {
	fonts := NewStandardFonts()
	regular := fonts.Face(false).Width("Ana Pérez", 24)
	bold := fonts.Face(true).Width("Ana Pérez", 24)
	require.Greater(t, regular, 0.0)
	assert.Greater(t, bold, regular)
	assert.InDelta(t, regular*2, fonts.Face(false).Width("Ana Pérez", 48), 1e-6)
}
