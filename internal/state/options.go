package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Recognized option keys. Anything else is stored but has no effect.
const (
	KeyFont        = "font"
	KeyBackground  = "background"
	KeyCrossOrigin = "crossOrigin"
	KeyColor       = "color"
	KeyHeight      = "height"
	KeyWidth       = "width"
)

// RenderOptions are the badge settings read by every render.
type RenderOptions struct {
	Font        string `json:"font" yaml:"font"`
	Background  string `json:"background" yaml:"background"`
	CrossOrigin bool   `json:"crossOrigin" yaml:"cross_origin"`
	Color       string `json:"color" yaml:"color"`
	Height      int    `json:"height" yaml:"height"`
	Width       int    `json:"width" yaml:"width"`
}

// DefaultRenderOptions returns the defaults for a device scale.
func DefaultRenderOptions(scale int) RenderOptions {
	if scale < 1 {
		scale = 1
	}
	return RenderOptions{
		Font:        fmt.Sprintf("%dpx arial", 10*scale),
		Background:  "#F03D25",
		CrossOrigin: true,
		Color:       "#ffffff",
		Height:      9,
		Width:       7,
	}
}

// Options is the shared, overridable RenderOptions store.
type Options struct {
	mu    sync.RWMutex
	opts  RenderOptions
	extra map[string]any
}

func NewOptions(defaults RenderOptions) *Options {
	return &Options{opts: defaults, extra: make(map[string]any)}
}

// Configure overwrites one option when value is truthy and reports
// whether anything was stored. Falsy values (nil, false, "", 0) leave
// the option unchanged. A truthy value of the wrong type for a known key
// is ignored.
func (o *Options) Configure(key string, value any) bool {
	if !Truthy(value) {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch key {
	case KeyFont, KeyBackground, KeyColor:
		s, ok := value.(string)
		if !ok {
			return false
		}
		switch key {
		case KeyFont:
			o.opts.Font = s
		case KeyBackground:
			o.opts.Background = s
		default:
			o.opts.Color = s
		}
	case KeyWidth, KeyHeight:
		n, ok := toInt(value)
		if !ok {
			return false
		}
		if key == KeyWidth {
			o.opts.Width = n
		} else {
			o.opts.Height = n
		}
	case KeyCrossOrigin:
		o.opts.CrossOrigin = true
	default:
		o.extra[key] = value
	}
	return true
}

// SetCrossOrigin is the only way to turn cross-origin mode off, since
// Configure ignores false.
func (o *Options) SetCrossOrigin(enabled bool) {
	o.mu.Lock()
	o.opts.CrossOrigin = enabled
	o.mu.Unlock()
}

func (o *Options) Snapshot() RenderOptions {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.opts
}

// Extra returns a copy of the unrecognized keys.
func (o *Options) Extra() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Clone(o.extra)
}

// Truthy reports whether v counts as set: not nil, false, empty string,
// zero or NaN.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case float64:
		return x != 0 && !math.IsNaN(x)
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	}
	return true
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		return int(x), true
	case float32:
		return int(math.Round(float64(x))), true
	case float64:
		return int(math.Round(x)), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	return 0, false
}
