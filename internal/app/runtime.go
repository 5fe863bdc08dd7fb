package app

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rook-computer/favicount/internal/assets"
	"github.com/rook-computer/favicount/internal/config"
	"github.com/rook-computer/favicount/internal/document"
	"github.com/rook-computer/favicount/internal/event"
	"github.com/rook-computer/favicount/internal/favicon"
	"github.com/rook-computer/favicount/internal/loader"
	"github.com/rook-computer/favicount/internal/metrics"
	"github.com/rook-computer/favicount/internal/render"
	"github.com/rook-computer/favicount/internal/state"
)

// Runtime is an App together with the document and loader it was built
// around.
type Runtime struct {
	App    *App
	Doc    *document.Document
	Files  fs.FS
	Loader *loader.Loader
}

// RuntimeDeps are the shared services a Runtime plugs into. All may be nil.
type RuntimeDeps struct {
	Bus     *event.Bus
	Metrics *metrics.Collector
	Sink    render.Sink
	Logger  *slog.Logger
}

// Build assembles the document, loader, surface and App described by cfg
// and applies the configured option overrides.
func Build(cfg *config.Config, deps RuntimeDeps) (*Runtime, error) {
	doc, err := OpenDocument(cfg.Document)
	if err != nil {
		return nil, err
	}
	return NewRuntime(cfg, doc, DocumentFiles(cfg.Document), deps)
}

// NewRuntime is Build around an already loaded document. files may be nil
// when every icon reference is absolute.
func NewRuntime(cfg *config.Config, doc *document.Document, files fs.FS, deps RuntimeDeps) (*Runtime, error) {
	ld := &loader.Loader{
		Files:    files,
		HTTP:     &http.Client{},
		Timeout:  cfg.Loader.Timeout,
		MaxBytes: cfg.Loader.MaxBytes,
	}
	if u := doc.URL(); u != nil && (u.Scheme == "http" || u.Scheme == "https") {
		ld.Base = u
	}
	if deps.Metrics != nil {
		ld.Observe = func(_ string, err error, d time.Duration) { deps.Metrics.RecordLoad(err, d) }
	}

	faces := render.NewFaceCache()
	for family, path := range cfg.Render.Fonts {
		if err := faces.RegisterFile(family, path); err != nil {
			return nil, fmt.Errorf("font %q: %w", family, err)
		}
	}
	format, err := render.ParseOutputFormat(cfg.Render.OutputFormat)
	if err != nil {
		return nil, err
	}
	surface := render.NewSurface(cfg.Render.Scale, cfg.Render.ResolveVariant(), format, faces)

	a := New(Deps{
		Options:    state.NewOptions(state.DefaultRenderOptions(cfg.Render.Scale)),
		Refs:       state.NewFaviconRefs(doc),
		Swapper:    favicon.NewSwapper(doc),
		Loader:     ld,
		Surface:    surface,
		Bus:        deps.Bus,
		Metrics:    deps.Metrics,
		Sink:       deps.Sink,
		Logger:     deps.Logger,
		RacePolicy: cfg.Render.RacePolicy,
		BaseSource: cfg.Render.BaseSource,
	})
	a.ApplyOverrides(cfg.Render.Options)

	return &Runtime{App: a, Doc: doc, Files: files, Loader: ld}, nil
}

// SaveOnSwap writes the document back to path whenever its favicon
// changes, so a restart resumes from what the page last showed.
func (rt *Runtime) SaveOnSwap(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	rt.App.OnSwap(func(string) {
		if err := rt.Doc.Save(path); err != nil {
			logger.Error("save document failed", slog.String("path", path), slog.Any("error", err))
		}
	})
}

// OpenDocument loads the configured page, or the built-in one when no
// path is set. A configured URL replaces the file URL.
func OpenDocument(c config.DocumentConfig) (*document.Document, error) {
	var u *url.URL
	if c.URL != "" {
		parsed, err := url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("document url: %w", err)
		}
		u = parsed
	}

	if c.Path == "" {
		return document.Parse(bytes.NewReader(assets.DefaultPage()), "text/html; charset=utf-8", u)
	}
	if u == nil {
		return document.Load(c.Path)
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return document.Parse(f, "text/html", u)
}

// DocumentFiles is the asset tree relative paths resolve in, with the
// built-in icon behind /favicon.ico.
func DocumentFiles(c config.DocumentConfig) fs.FS {
	root := c.Root
	if root == "" && c.Path != "" {
		root = filepath.Dir(c.Path)
	}
	if root == "" {
		return assets.WithDefaultIcon(nil)
	}
	return assets.WithDefaultIcon(os.DirFS(root))
}
