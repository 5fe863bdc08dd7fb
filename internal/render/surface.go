package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/rook-computer/favicount/internal/ico"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// ErrTaintedSurface is returned by Encode after a cross-origin image was
// drawn without cross-origin authorization.
var ErrTaintedSurface = errors.New("render: surface tainted by cross-origin image")

// OutputFormat selects the container Encode produces.
type OutputFormat int

const (
	FormatPNG OutputFormat = iota
	FormatICO
)

func (f OutputFormat) String() string {
	if f == FormatICO {
		return "ico"
	}
	return "png"
}

// MediaType is the MIME type of encoded output.
func (f OutputFormat) MediaType() string {
	if f == FormatICO {
		return "image/x-icon"
	}
	return "image/png"
}

func ParseOutputFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return FormatPNG, nil
	case "ico", "x-icon":
		return FormatICO, nil
	}
	return FormatPNG, fmt.Errorf("unknown output format %q", name)
}

// Style is everything DrawBadge needs besides the label.
type Style struct {
	Font       string
	Background color.Color
	Text       color.Color
	Geometry   GeometryOptions
}

// Surface is a reusable square raster of BaseSize*scale pixels. It is
// cleared and redrawn for every render and never resized.
//
// A Surface is not safe for concurrent use.
type Surface struct {
	scale   int
	size    int
	variant Variant
	format  OutputFormat
	faces   *FaceCache

	canvas  *image.RGBA
	raster  vector.Rasterizer
	tainted bool
}

// NewSurface allocates the canvas. A nil faces gets a private cache.
func NewSurface(scale int, variant Variant, format OutputFormat, faces *FaceCache) *Surface {
	if scale < 1 {
		scale = 1
	}
	if faces == nil {
		faces = NewFaceCache()
	}
	size := BaseSize * scale
	return &Surface{
		scale:   scale,
		size:    size,
		variant: variant,
		format:  format,
		faces:   faces,
		canvas:  image.NewRGBA(image.Rect(0, 0, size, size)),
	}
}

func (s *Surface) Scale() int              { return s.scale }
func (s *Surface) Size() int               { return s.size }
func (s *Surface) Variant() Variant        { return s.variant }
func (s *Surface) Format() OutputFormat    { return s.format }
func (s *Surface) Tainted() bool           { return s.tainted }
func (s *Surface) Bounds() image.Rectangle { return s.canvas.Bounds() }
func (s *Surface) At(x, y int) color.Color { return s.canvas.At(x, y) }
func (s *Surface) ColorModel() color.Model { return s.canvas.ColorModel() }

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.canvas.Bounds())
	copy(out.Pix, s.canvas.Pix)
	return out
}

// Clear resets every pixel to transparent and forgets any taint.
func (s *Surface) Clear() {
	draw.Draw(s.canvas, s.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)
	s.tainted = false
}

// DrawBase scales img over the whole surface.
func (s *Surface) DrawBase(img image.Image, tainted bool) {
	if img == nil {
		return
	}
	xdraw.CatmullRom.Scale(s.canvas, s.canvas.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	s.tainted = s.tainted || tainted
}

// DrawBadge paints the rounded badge, its bottom shadow and the
// right-aligned label.
func (s *Surface) DrawBadge(label string, style Style) {
	g := ComputeBadgeGeometry(utf8.RuneCountInString(label), s.scale, style.Geometry, s.variant)

	bg := style.Background
	if bg == nil {
		bg = DefaultBackground
	}
	fg := style.Text
	if fg == nil {
		fg = DefaultText
	}

	left, top := float32(g.Left), float32(g.Top)
	right, bottom := float32(g.Right), float32(g.Bottom)
	radius := float32(g.Radius)
	half := float32(s.scale) / 2

	s.fill(bg, func(p *pen) {
		roundedRect(p, left, top, right, bottom, radius)
	})

	// The shadow is a line of width scale centered on the bottom edge, so
	// half of it falls outside the surface.

	s.fill(ShadowColor, func(p *pen) {
		x0, x1 := left+radius/2, right-radius/2
		p.MoveTo(x0, bottom-half)
		p.LineTo(x1, bottom-half)
		p.LineTo(x1, bottom+half)
		p.LineTo(x0, bottom+half)
		p.Close()
	})

	spec, err := ParseFontSpec(style.Font)
	if err != nil {
		spec = FontSpec{SizePx: float64(10 * s.scale), Family: "arial"}
	}
	spec.Bold = spec.Bold || g.Bold
	face := s.faces.Face(spec)

	d := font.Drawer{Dst: s.canvas, Src: image.NewUniform(fg), Face: face}
	advance := d.MeasureString(label)
	d.Dot = fixed.Point26_6{
		X: fixed.I(g.TextX) - advance,
		Y: fixed.I(g.TextY) + face.Metrics().Ascent,
	}
	d.DrawString(label)
}

// Render runs the whole compositing pass and returns the encoded surface.
func (s *Surface) Render(base image.Image, tainted bool, label string, style Style) (string, error) {
	s.Clear()
	s.DrawBase(base, tainted)
	if label != "" {
		s.DrawBadge(label, style)
	}
	return s.Encode()
}

// Bytes encodes the surface in its output format.
func (s *Surface) Bytes() ([]byte, error) {
	if s.tainted {
		return nil, ErrTaintedSurface
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if s.format == FormatICO {
		return ico.Wrap(buf.Bytes(), s.size, s.size), nil
	}
	return buf.Bytes(), nil
}

// Encode returns the surface as a base64 data URL.
func (s *Surface) Encode() (string, error) {
	data, err := s.Bytes()
	if err != nil {
		return "", err
	}
	return DataURL(s.format.MediaType(), data), nil
}

// DataURL builds a base64 data URL.
func DataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (s *Surface) fill(c color.Color, build func(p *pen)) {
	s.raster.Reset(s.size, s.size)
	build(&pen{r: &s.raster, max: float32(s.size)})
	s.raster.Draw(s.canvas, s.canvas.Bounds(), image.NewUniform(c), image.Point{})
}

// roundedRect traces the badge outline. Corners are quadratic curves with
// the rectangle corner as control point, which is not a circular arc.
func roundedRect(p *pen, left, top, right, bottom, radius float32) {
	p.MoveTo(left+radius, top)
	p.QuadTo(left, top, left, top+radius)
	p.LineTo(left, bottom-radius)
	p.QuadTo(left, bottom, left+radius, bottom)
	p.LineTo(right-radius, bottom)
	p.QuadTo(right, bottom, right, bottom-radius)
	p.LineTo(right, top+radius)
	p.QuadTo(right, top, right-radius, top)
	p.Close()
}

// pen keeps every point inside the rasterizer bounds.
type pen struct {
	r   *vector.Rasterizer
	max float32
}

func (p *pen) c(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > p.max {
		return p.max
	}
	return v
}

func (p *pen) MoveTo(x, y float32) { p.r.MoveTo(p.c(x), p.c(y)) }
func (p *pen) LineTo(x, y float32) { p.r.LineTo(p.c(x), p.c(y)) }
func (p *pen) Close()              { p.r.ClosePath() }

func (p *pen) QuadTo(cx, cy, x, y float32) {
	p.r.QuadTo(p.c(cx), p.c(cy), p.c(x), p.c(y))
}
