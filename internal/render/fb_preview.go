package render

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	fb "github.com/gonutz/framebuffer"
	"github.com/rook-computer/favicount/internal/render/layout"
	xdraw "golang.org/x/image/draw"
)

// Background of the framebuffer preview around the icon.
var PreviewBackground = color.RGBA{R: 0x20, G: 0x22, B: 0x25, A: 0xFF}

// Target is the part of a framebuffer device the preview writes to.
type Target interface {
	Bounds() image.Rectangle
	Set(x, y int, c color.Color)
}

// FBPreview shows the current favicon centered on a Linux framebuffer,
// scaled up with nearest-neighbor sampling so single pixels stay visible.
type FBPreview struct {
	mu     sync.Mutex
	target Target
	close  func()
	frame  *image.RGBA

	// MarginPx is kept free around the icon on the shorter axis.
	MarginPx int
}

// OpenFBPreview opens a framebuffer device such as /dev/fb0.
func OpenFBPreview(path string) (*FBPreview, error) {
	dev, err := fb.Open(path)
	if err != nil {
		return nil, err
	}
	return NewFBPreview(dev, func() { dev.Close() }), nil
}

// NewFBPreview wraps any pixel target. closeFn may be nil.
func NewFBPreview(target Target, closeFn func()) *FBPreview {
	return &FBPreview{target: target, close: closeFn, MarginPx: 32}
}

// Show composes icon into an offscreen frame and blits it.
func (p *FBPreview) Show(icon image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target == nil {
		return nil
	}

	bounds := p.target.Bounds()
	if p.frame == nil || p.frame.Bounds() != bounds {
		p.frame = image.NewRGBA(bounds)
	}
	draw.Draw(p.frame, bounds, &image.Uniform{C: PreviewBackground}, image.Point{}, draw.Src)

	if icon != nil && !icon.Bounds().Empty() {
		area := layout.FitSquare(layout.Inset(bounds, p.MarginPx))
		side := area.Dx()
		// Whole multiples of the icon size keep the pixels square.
		if n := icon.Bounds().Dx(); n > 0 && side >= n {
			side -= side % n
		}
		dst := layout.Center(bounds, side, side)
		xdraw.NearestNeighbor.Scale(p.frame, dst, icon, icon.Bounds(), xdraw.Over, nil)
	}

	blit(p.target, p.frame)
	return nil
}

func (p *FBPreview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.close != nil {
		p.close()
		p.close = nil
	}
	p.target = nil
	return nil
}

// blit copies frame into the device with full alpha.
func blit(dev Target, frame *image.RGBA) {
	bounds := dev.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := frame.RGBAAt(x, y)
			dev.Set(x, y, color.RGBA{R: px.R, G: px.G, B: px.B, A: 0xFF})
		}
	}
}
