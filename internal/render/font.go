package render

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontSpec is the parsed form of a CSS font shorthand such as "10px arial"
// or "bold 20px monospace".
type FontSpec struct {
	SizePx float64
	Bold   bool
	Family string
}

// ParseFontSpec parses "[style...] <size>px <family>". Tokens before the
// size other than "bold" (or a numeric weight >= 600) are ignored.
func ParseFontSpec(s string) (FontSpec, error) {
	fields := strings.Fields(s)
	var spec FontSpec
	for i, f := range fields {
		lower := strings.ToLower(f)
		if px, ok := strings.CutSuffix(lower, "px"); ok {
			size, err := strconv.ParseFloat(px, 64)
			if err != nil || size <= 0 {
				return FontSpec{}, fmt.Errorf("invalid font size %q", f)
			}
			spec.SizePx = size
			spec.Family = strings.Trim(strings.Join(fields[i+1:], " "), `"'`)
			return spec, nil
		}
		switch {
		case lower == "bold" || lower == "bolder":
			spec.Bold = true
		case len(lower) == 3 && lower[0] >= '6' && lower[0] <= '9' && strings.HasSuffix(lower, "00"):
			spec.Bold = true
		}
	}
	return FontSpec{}, fmt.Errorf("font %q has no pixel size", s)
}

type faceKey struct {
	family string
	bold   bool
	size   float64
}

// FaceCache builds and caches font faces. Built-in families map onto the Go
// fonts; Register adds OpenType or TrueType files under a family name.
type FaceCache struct {
	mu      sync.Mutex
	builtin map[string]*truetype.Font
	custom  map[string]*opentype.Font
	faces   map[faceKey]font.Face
}

func NewFaceCache() *FaceCache {
	return &FaceCache{
		builtin: make(map[string]*truetype.Font),
		custom:  make(map[string]*opentype.Font),
		faces:   make(map[faceKey]font.Face),
	}
}

// Register parses font data and makes it available as family.
func (c *FaceCache) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %q: %w", family, err)
	}
	c.mu.Lock()
	c.custom[strings.ToLower(family)] = f
	for k := range c.faces {
		if k.family == strings.ToLower(family) {
			delete(c.faces, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// RegisterFile reads a font file from disk and registers it.
func (c *FaceCache) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %q: %w", family, err)
	}
	return c.Register(family, data)
}

// Face returns a face for spec. It falls back to basicfont when nothing
// can be parsed, so drawing always has something to use.
func (c *FaceCache) Face(spec FontSpec) font.Face {
	key := faceKey{family: strings.ToLower(spec.Family), bold: spec.Bold, size: spec.SizePx}

	c.mu.Lock()
	defer c.mu.Unlock()
	if face, ok := c.faces[key]; ok {
		return face
	}

	var face font.Face
	if f, ok := c.custom[key.family]; ok {
		ff, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.SizePx, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			face = ff
		}
	}
	if face == nil {
		if f := c.builtinFont(key.family, spec.Bold); f != nil {
			face = truetype.NewFace(f, &truetype.Options{Size: spec.SizePx, DPI: 72, Hinting: font.HintingFull})
		}
	}
	if face == nil {
		face = basicfont.Face7x13
	}
	c.faces[key] = face
	return face
}

func (c *FaceCache) builtinFont(family string, bold bool) *truetype.Font {
	name, data := "regular", goregular.TTF
	mono := strings.Contains(family, "mono") || strings.Contains(family, "courier")
	switch {
	case mono && bold:
		name, data = "monobold", gomonobold.TTF
	case mono:
		name, data = "mono", gomono.TTF
	case bold:
		name, data = "bold", gobold.TTF
	}
	if f, ok := c.builtin[name]; ok {
		return f
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil
	}
	c.builtin[name] = f
	return f
}
