// Command badgectl renders one badge without a server: it loads a page or
// a bare icon, applies a label and writes the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rook-computer/favicount/internal/app"
	"github.com/rook-computer/favicount/internal/assets"
	"github.com/rook-computer/favicount/internal/config"
	"github.com/rook-computer/favicount/internal/document"
	"github.com/rook-computer/favicount/internal/loader"
	"github.com/rook-computer/favicount/internal/logging"
)

const (
	emitDocument = "document"
	emitImage    = "image"
	emitURL      = "url"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "badgectl:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fset := flag.NewFlagSet("badgectl", flag.ContinueOnError)
	configPath := fset.String("config", "", "YAML config file for render and loader settings")
	docPath := fset.String("document", "", "HTML page whose favicon is badged")
	imagePath := fset.String("image", "", "badge this icon file or URL instead of a page")
	label := fset.String("label", "", "badge label; empty draws no badge")
	count := fset.Int("count", 0, "numeric label; overrides -label when non-zero")
	color := fset.String("color", "", "label color")
	background := fset.String("background", "", "badge background color")
	fontSpec := fset.String("font", "", `label font, e.g. "bold 10px sans-serif"`)
	ratio := fset.Float64("scale", 0, "device pixel ratio")
	variant := fset.String("variant", "", "text constants: webkit, gecko, other or auto")
	format := fset.String("format", "", "output image format: png or ico")
	emit := fset.String("emit", "", "what to write: document, image or url (default document, or image with -image)")
	out := fset.String("out", "-", "output file, - for stdout")
	timeout := fset.Duration("timeout", 10*time.Second, "render deadline")
	debug := fset.Bool("debug", false, "log to stderr")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *ratio > 0 {
		cfg.Render.Scale = config.ScaleFromRatio(*ratio)
	}
	if *variant != "" {
		cfg.Render.Variant = *variant
	}
	if *format != "" {
		cfg.Render.OutputFormat = *format
	}
	cfg.Render.Options.Color = firstNonEmpty(*color, cfg.Render.Options.Color)
	cfg.Render.Options.Background = firstNonEmpty(*background, cfg.Render.Options.Background)
	cfg.Render.Options.Font = firstNonEmpty(*fontSpec, cfg.Render.Options.Font)
	if *docPath != "" {
		cfg.Document.Path = *docPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Discard()
	if *debug {
		var mgr *logging.Manager
		cfg.Logging.Level = "debug"
		mgr, logger = logging.NewManager(cfg.Logging, os.Stderr)
		defer mgr.Close() //nolint:errcheck
	}

	mode := *emit
	if mode == "" {
		mode = emitDocument
		if *imagePath != "" {
			mode = emitImage
		}
	}
	switch mode {
	case emitDocument, emitImage, emitURL:
	default:
		return fmt.Errorf("-emit must be document, image or url, got %q", mode)
	}

	rt, err := openRuntime(cfg, *imagePath, logger)
	if err != nil {
		return err
	}
	defer rt.App.Close() //nolint:errcheck

	text := *label
	if *count != 0 {
		text = fmt.Sprint(*count)
	}
	res, err := renderOnce(rt.App, text, *timeout)
	if err != nil {
		return err
	}
	logger.Debug("rendered", slog.String("source", res.Source), slog.Duration("took", res.Duration))

	w := stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return write(w, mode, rt.Doc, res.URL)
}

// openRuntime builds around the configured page, or around a one-line page
// pointing at imagePath.
func openRuntime(cfg *config.Config, imagePath string, logger *slog.Logger) (*app.Runtime, error) {
	deps := app.RuntimeDeps{Logger: logger}
	if imagePath == "" {
		return app.Build(cfg, deps)
	}

	href := imagePath
	files := assets.WithDefaultIcon(nil)
	if !strings.Contains(imagePath, "://") && !strings.HasPrefix(imagePath, "data:") {
		abs, err := filepath.Abs(imagePath)
		if err != nil {
			return nil, err
		}
		href = filepath.Base(abs)
		files = os.DirFS(filepath.Dir(abs))
	}
	doc, err := document.ParseString(`<html><head><link rel="icon" href="` + html.EscapeString(href) + `"></head><body></body></html>`)
	if err != nil {
		return nil, err
	}
	return app.NewRuntime(cfg, doc, files, deps)
}

// renderOnce runs a single Set and waits for its result.
func renderOnce(a *app.App, label string, timeout time.Duration) (app.Result, error) {
	results := make(chan app.Result, 1)
	a.OnResult(func(r app.Result) {
		select {
		case results <- r:
		default:
		}
	})
	if !a.Set(label, "") {
		return app.Result{}, errors.New("no render surface")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case r := <-results:
		if r.Err != nil {
			return r, fmt.Errorf("render %s: %w", r.Source, r.Err)
		}
		return r, nil
	case <-ctx.Done():
		return app.Result{}, ctx.Err()
	}
}

func write(w io.Writer, mode string, doc *document.Document, url string) error {
	switch mode {
	case emitURL:
		_, err := fmt.Fprintln(w, url)
		return err
	case emitImage:
		_, data, err := loader.ParseDataURL(url)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return doc.Render(w)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
