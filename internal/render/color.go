package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

var namedColors = map[string]color.NRGBA{
	"black":       {A: 0xFF},
	"white":       {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	"red":         {R: 0xFF, A: 0xFF},
	"green":       {G: 0x80, A: 0xFF},
	"lime":        {G: 0xFF, A: 0xFF},
	"blue":        {B: 0xFF, A: 0xFF},
	"yellow":      {R: 0xFF, G: 0xFF, A: 0xFF},
	"orange":      {R: 0xFF, G: 0xA5, A: 0xFF},
	"gray":        {R: 0x80, G: 0x80, B: 0x80, A: 0xFF},
	"grey":        {R: 0x80, G: 0x80, B: 0x80, A: 0xFF},
	"transparent": {},
}

// ParseColor understands #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(), rgba() and
// a handful of CSS color names.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.NRGBA{}, fmt.Errorf("empty color")
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if strings.HasPrefix(s, "rgb") {
		return parseFunctional(s)
	}
	return color.NRGBA{}, fmt.Errorf("unsupported color %q", s)
}

// ColorOr parses s and falls back to def when it is empty or invalid.
func ColorOr(s string, def color.NRGBA) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}

func parseHex(h string) (color.NRGBA, error) {
	switch len(h) {
	case 3, 4:
		expanded := make([]byte, 0, len(h)*2)
		for i := 0; i < len(h); i++ {
			expanded = append(expanded, h[i], h[i])
		}
		h = string(expanded)
	case 6, 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color #%s", h)
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color #%s: %w", h, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunctional(s string) (color.NRGBA, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	parts := strings.Split(s[open+1:len(s)-1], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}

	var ch [4]uint8
	ch[3] = 0xFF
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == 3 {
			a, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return color.NRGBA{}, fmt.Errorf("invalid alpha in %q: %w", s, err)
			}
			ch[3] = uint8(math.Round(clamp(a, 0, 1) * 255))
			continue
		}
		if pct, ok := strings.CutSuffix(p, "%"); ok {
			f, err := strconv.ParseFloat(pct, 64)
			if err != nil {
				return color.NRGBA{}, fmt.Errorf("invalid channel in %q: %w", s, err)
			}
			ch[i] = uint8(math.Round(clamp(f, 0, 100) * 255 / 100))
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid channel in %q: %w", s, err)
		}
		ch[i] = uint8(math.Round(clamp(f, 0, 255)))
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
