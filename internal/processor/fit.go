package processor

import "math"

const (
	// MinFontSize is the floor of shrink-to-fit; text still too wide at this
	// size is drawn anyway and may clip.
	MinFontSize = 8.0
	// MaxFontSize bounds what a field may request.
	MaxFontSize = 500.0
	// FitStep is the decrement applied while shrinking.
	FitStep = 0.5
	// BaselineFactor places the baseline this fraction of the font size below
	// the rectangle's top, capped at the rectangle height.
	BaselineFactor = 0.9
)

// FitResult is the outcome of fitting one string into a width.
type FitResult struct {
	Size     float64
	Width    float64
	Overflow bool
}

// Fit returns the largest size not above requested, in FitStep decrements,
// at which text fits maxWidth, bounded below by MinFontSize. A request under
// MinFontSize is raised to MinFontSize, so only then can the result exceed it.
func Fit(font Font, text string, requested, maxWidth float64) float64 {
	return FitText(font, text, requested, maxWidth).Size
}

// FitText is Fit plus the measured width at the chosen size and whether the
// text still overflows at the floor.
func FitText(font Font, text string, requested, maxWidth float64) FitResult {
	size := requested
	switch {
	case math.IsNaN(size) || size < MinFontSize:
		size = MinFontSize
	case size > MaxFontSize:
		size = MaxFontSize
	}
	width := font.Width(text, size)
	if width > maxWidth && size > MinFontSize {
		size = fitStart(size, width, maxWidth)
		width = font.Width(text, size)
	}
	for width > maxWidth && size > MinFontSize {
		size -= FitStep
		if size < MinFontSize {
			size = MinFontSize
		}
		width = font.Width(text, size)
	}
	return FitResult{Size: size, Width: width, Overflow: width > maxWidth}
}

// fitStart jumps to one step above the size at which the text would just fit,
// staying on the FitStep grid below size. Width is linear in size.
func fitStart(size, width, maxWidth float64) float64 {
	if maxWidth <= 0 || width <= 0 {
		return MinFontSize
	}
	target := size * maxWidth / width
	steps := math.Ceil((size-target)/FitStep) - 1
	if steps <= 0 {
		return size
	}
	start := size - steps*FitStep
	if start < MinFontSize {
		return MinFontSize
	}
	return start
}

// Place returns the x offset of text of textWidth inside rect for align. The
// result never precedes the rectangle's left edge.
func Place(rect Rect, align Align, textWidth float64) float64 {
	x := rect.Left
	switch align.Normalize() {
	case AlignCenter:
		x = rect.Left + (rect.Width-textWidth)/2
	case AlignRight:
		x = rect.Left + rect.Width - textWidth
	}
	if x < rect.Left {
		x = rect.Left
	}
	return x
}

// Baseline returns the text baseline in PDF space (bottom-left origin) for a
// rectangle given in top-left space.
func Baseline(pageHeight, rectTop, rectHeight, size float64) float64 {
	return pageHeight - rectTop - math.Min(rectHeight, size*BaselineFactor)
}
