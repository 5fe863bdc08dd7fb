package render

import "image/color"

// BaseSize is the logical edge length of a favicon in CSS pixels.
const BaseSize = 16

// Defaults used when the caller supplies no (or an unparseable) color.
var (
	DefaultBackground = color.NRGBA{R: 0xF0, G: 0x3D, B: 0x25, A: 0xFF} // #F03D25
	DefaultText       = color.NRGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xFF} // #000000

	// ShadowColor is rgba(0,0,0,0.3).
	ShadowColor = color.NRGBA{A: 77}
)

// Default badge size in logical pixels before scaling.
const (
	DefaultBadgeWidth  = 7
	DefaultBadgeHeight = 9
)
