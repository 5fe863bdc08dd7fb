package render

import "image"

// charAdvance is the badge growth per additional label character, in
// logical pixels.
const charAdvance = 6

// GeometryOptions carries the configurable badge size in logical pixels.
type GeometryOptions struct {
	Width  int
	Height int
}

// BadgeGeometry is the device-pixel layout of a badge on a surface of
// Size x Size pixels. Right and Bottom are the surface edges.
type BadgeGeometry struct {
	Size   int
	Width  int
	Height int
	Left   int
	Top    int
	Right  int
	Bottom int
	Radius int

	// TextX is the right edge of the label; TextY is the top of its em box.
	TextX int
	TextY int
	Bold  bool
}

// Bounds returns the badge rectangle.
func (g BadgeGeometry) Bounds() image.Rectangle {
	return image.Rect(g.Left, g.Top, g.Right, g.Bottom)
}

// ComputeBadgeGeometry lays out a badge for a label of labelLen characters
// at the given integer scale. It never fails; a non-positive scale is the
// caller's problem.
func ComputeBadgeGeometry(labelLen, scale int, opts GeometryOptions, variant Variant) BadgeGeometry {
	extra := labelLen - 1
	if extra < 0 {
		extra = 0
	}
	size := BaseSize * scale
	width := opts.Width*scale + charAdvance*scale*extra
	height := opts.Height * scale

	textX := size - scale
	if scale == 2 {
		textX--
	}
	textY := 6 * scale
	if variant == VariantGecko {
		textY = 7 * scale
	}

	return BadgeGeometry{
		Size:   size,
		Width:  width,
		Height: height,
		Left:   size - width - scale,
		Top:    size - height,
		Right:  size,
		Bottom: size,
		Radius: 2 * scale,
		TextX:  textX,
		TextY:  textY,
		Bold:   variant == VariantWebKit,
	}
}
