// Package config loads favicount settings from a YAML file, the
// environment and flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rook-computer/favicount/internal/logging"
	"github.com/rook-computer/favicount/internal/render"
	"gopkg.in/yaml.v3"
)

const (
	EnvListenAddr = "FAVICOUNT_LISTEN"
	EnvDevMode    = "FAVICOUNT_DEV"
	EnvScale      = "FAVICOUNT_SCALE"
	EnvLogLevel   = "FAVICOUNT_LOG_LEVEL"
	EnvDocument   = "FAVICOUNT_DOCUMENT"
	EnvStdioLog   = "FAVICOUNT_STDIO_LOG"
)

// Race policies decide what happens to a render that is overtaken by a
// newer Set.
const (
	RaceLatest = "latest"
	RaceLegacy = "legacy"
)

// Base sources pick the image a render starts from.
const (
	BaseOriginal = "original"
	BaseCurrent  = "current"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Document DocumentConfig `yaml:"document"`
	Render   RenderConfig   `yaml:"render"`
	Loader   LoaderConfig   `yaml:"loader"`
	Preview  PreviewConfig  `yaml:"preview"`
	Logging  logging.Config `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen"`
	DevMode    bool   `yaml:"dev"`
	// PublicURL is encoded in the QR code; empty derives it from the request.
	PublicURL string `yaml:"public_url"`
	// RateLimit is requests per second per client on mutating endpoints.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type DocumentConfig struct {
	// Path is the HTML page to badge. Empty serves a built-in page.
	Path string `yaml:"path"`
	// Root serves relative assets; it defaults to the directory of Path.
	Root string `yaml:"root"`
	// URL overrides the document URL, e.g. to give it an http origin.
	URL string `yaml:"url"`
	// Save writes the page back to Path after every swap.
	Save bool `yaml:"save"`
}

type RenderConfig struct {
	Scale        int               `yaml:"scale"`
	Variant      string            `yaml:"variant"`
	UserAgent    string            `yaml:"user_agent"`
	OutputFormat string            `yaml:"output_format"`
	RacePolicy   string            `yaml:"race_policy"`
	BaseSource   string            `yaml:"base_source"`
	Fonts        map[string]string `yaml:"fonts"`
	Options      OptionOverrides   `yaml:"options"`
}

// OptionOverrides are applied with Configure semantics: empty and zero
// values leave the defaults alone.
type OptionOverrides struct {
	Font        string `yaml:"font"`
	Background  string `yaml:"background"`
	Color       string `yaml:"color"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	CrossOrigin *bool  `yaml:"cross_origin"`
}

type LoaderConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

type PreviewConfig struct {
	// Framebuffer is a device such as /dev/fb0; empty disables the preview.
	Framebuffer string `yaml:"framebuffer"`
	// Console switches the tty to graphics mode while the preview runs.
	Console bool `yaml:"console"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			RateLimit:  5,
			RateBurst:  10,
		},
		Render: RenderConfig{
			Scale:        1,
			Variant:      "other",
			OutputFormat: "png",
			RacePolicy:   RaceLatest,
			BaseSource:   BaseOriginal,
		},
		Loader:  LoaderConfig{MaxBytes: 4 << 20},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads path when it is non-empty and exists, then applies the
// environment, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if raw := os.Getenv(EnvDevMode); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s must be a boolean (got %q): %w", EnvDevMode, raw, err)
		}
		c.Server.DevMode = parsed
	}
	if raw := os.Getenv(EnvScale); raw != "" {
		scale, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number (got %q): %w", EnvScale, raw, err)
		}
		c.Render.Scale = ScaleFromRatio(scale)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvDocument); v != "" {
		c.Document.Path = v
	}
	return nil
}

// Validate rejects settings no component could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Render.Scale < 1 || c.Render.Scale > 8 {
		errs = append(errs, fmt.Errorf("render.scale must be between 1 and 8, got %d", c.Render.Scale))
	}
	if !strings.EqualFold(c.Render.Variant, "auto") {
		if _, err := render.ParseVariant(c.Render.Variant); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := render.ParseOutputFormat(c.Render.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	switch c.Render.RacePolicy {
	case RaceLatest, RaceLegacy:
	default:
		errs = append(errs, fmt.Errorf("render.race_policy must be %q or %q, got %q", RaceLatest, RaceLegacy, c.Render.RacePolicy))
	}
	switch c.Render.BaseSource {
	case BaseOriginal, BaseCurrent:
	default:
		errs = append(errs, fmt.Errorf("render.base_source must be %q or %q, got %q", BaseOriginal, BaseCurrent, c.Render.BaseSource))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not a level", c.Logging.Level))
	}
	if !logging.ValidFormat(c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Loader.Timeout < 0 {
		errs = append(errs, fmt.Errorf("loader.timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// ResolveVariant parses Variant, sniffing UserAgent when it is "auto".
func (r RenderConfig) ResolveVariant() render.Variant {
	if strings.EqualFold(r.Variant, "auto") {
		return render.DetectVariant(r.UserAgent)
	}
	v, _ := render.ParseVariant(r.Variant)
	return v
}

// ScaleFromRatio turns a device pixel ratio into the integer surface
// scale: rounded up, at least 1.
func ScaleFromRatio(ratio float64) int {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 1
	}
	return max(int(math.Ceil(ratio)), 1)
}
