package assets

import (
	"bytes"
	"embed"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/rook-computer/favicount/internal/ico"
	"golang.org/x/image/vector"
)

// DefaultIconName is the path, relative to a document root, that browsers
// fall back to when a page declares no icon.
const DefaultIconName = "favicon.ico"

const (
	iconSize    = 32
	iconCorner  = 6
	iconBorder  = 4
	defaultPage = "index.html"
)

var iconColor = color.NRGBA{R: 0x25, G: 0x63, B: 0xEB, A: 0xFF} // #2563EB

//go:embed web
var webFS embed.FS

// WebUI is an embedded filesystem rooted at internal/assets/web. It holds
// the built-in page and the script that keeps preview tabs in sync.
var WebUI fs.FS

func init() {
	// Embed paths include the leading directory; strip it for serving.
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	WebUI = sub
}

// ScriptName is the sync script inside WebUI.
const ScriptName = "app.js"

// DefaultPage is the HTML served when no document is configured.
func DefaultPage() []byte {
	data, err := fs.ReadFile(WebUI, defaultPage)
	if err != nil {
		panic(err)
	}
	return data
}

// DefaultIcon returns the fallback favicon as an ICO file.
var DefaultIcon = sync.OnceValue(func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, drawDefaultIcon()); err != nil {
		panic(err)
	}
	return ico.Wrap(buf.Bytes(), iconSize, iconSize)
})

// drawDefaultIcon paints a blue rounded square with a white inner ring.
func drawDefaultIcon() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	var r vector.Rasterizer

	r.Reset(iconSize, iconSize)
	roundedSquare(&r, 0, iconSize, iconCorner)
	r.Draw(img, img.Bounds(), image.NewUniform(iconColor), image.Point{})

	r.Reset(iconSize, iconSize)
	roundedSquare(&r, iconBorder, iconSize-iconBorder, iconCorner/2)
	roundedSquare(&r, 2*iconBorder, iconSize-2*iconBorder, 0)
	r.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{})
	return img
}

// roundedSquare adds a closed path. Two nested paths rasterize as a ring
// because the inner one winds the other way.
func roundedSquare(r *vector.Rasterizer, lo, hi, c float32) {
	if c == 0 {
		r.MoveTo(lo, lo)
		r.LineTo(lo, hi)
		r.LineTo(hi, hi)
		r.LineTo(hi, lo)
		r.ClosePath()
		return
	}
	r.MoveTo(lo+c, lo)
	r.LineTo(hi-c, lo)
	r.QuadTo(hi, lo, hi, lo+c)
	r.LineTo(hi, hi-c)
	r.QuadTo(hi, hi, hi-c, hi)
	r.LineTo(lo+c, hi)
	r.QuadTo(lo, hi, lo, hi-c)
	r.LineTo(lo, lo+c)
	r.QuadTo(lo, lo, lo+c, lo)
	r.ClosePath()
}

// WithDefaultIcon serves DefaultIcon as DefaultIconName when fsys has no
// such file. A nil fsys holds only the icon.
func WithDefaultIcon(fsys fs.FS) fs.FS {
	return iconFS{fsys}
}

type iconFS struct{ fs.FS }

func (f iconFS) Open(name string) (fs.File, error) {
	if f.FS != nil {
		file, err := f.FS.Open(name)
		if err == nil || name != DefaultIconName || !errors.Is(err, fs.ErrNotExist) {
			return file, err
		}
	} else if name != DefaultIconName {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	data := DefaultIcon()
	return &memFile{Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// memFile is the in-memory default icon.
type memFile struct {
	*bytes.Reader
	size int64
}

func (m *memFile) Stat() (fs.FileInfo, error) { return m, nil }
func (m *memFile) Close() error               { return nil }
func (m *memFile) Name() string               { return DefaultIconName }
func (m *memFile) Size() int64                { return m.size }
func (m *memFile) Mode() fs.FileMode          { return 0o444 }
func (m *memFile) ModTime() time.Time         { return time.Time{} }
func (m *memFile) IsDir() bool                { return false }
func (m *memFile) Sys() any                   { return nil }

var _ io.ReadSeeker = (*memFile)(nil)
