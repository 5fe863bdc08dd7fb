package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rook-computer/favicount/internal/app"
	"github.com/rook-computer/favicount/internal/config"
	"github.com/rook-computer/favicount/internal/event"
	"github.com/rook-computer/favicount/internal/logging"
	"github.com/rook-computer/favicount/internal/metrics"
	"github.com/rook-computer/favicount/internal/render"
	"github.com/rook-computer/favicount/internal/system"
	"github.com/rook-computer/favicount/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "favicount:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "favicount.yaml", "YAML config file; missing files are ignored")
	listen := flag.String("listen", "", "HTTP listen address (overrides server.listen)")
	dev := flag.Bool("dev", false, "development mode: permissive CORS and websocket origins")
	docPath := flag.String("document", "", "HTML page to badge (overrides document.path)")
	root := flag.String("root", "", "directory relative assets are served from (overrides document.root)")
	ratio := flag.Float64("scale", 0, "device pixel ratio; rounded up to the surface scale")
	variant := flag.String("variant", "", "text constants: webkit, gecko, other or auto")
	fbPath := flag.String("fb", "", "framebuffer device for the on-device preview, e.g. /dev/fb0")
	stdioLog := flag.String("stdio-log", "", "redirect stdout+stderr (including panics) to this file; also configurable via "+config.EnvStdioLog)
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Capture panics even when the console is left in graphics mode.
	logPath := *stdioLog
	if logPath == "" {
		logPath = os.Getenv(config.EnvStdioLog)
	}
	if err := system.RedirectStdIO(logPath); err != nil {
		fmt.Fprintln(os.Stderr, "stdio log redirect error:", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.ListenAddr = *listen
		case "dev":
			cfg.Server.DevMode = *dev
		case "document":
			cfg.Document.Path = *docPath
		case "root":
			cfg.Document.Root = *root
		case "scale":
			cfg.Render.Scale = config.ScaleFromRatio(*ratio)
		case "variant":
			cfg.Render.Variant = *variant
		case "fb":
			cfg.Preview.Framebuffer = *fbPath
		case "debug":
			if *debug {
				cfg.Logging.Level = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logMgr, logger := logging.NewManager(cfg.Logging, os.Stderr)
	defer logMgr.Close() //nolint:errcheck
	slog.SetDefault(logger)
	logger.Info("favicount starting",
		slog.String("document", orBuiltin(cfg.Document.Path)),
		slog.Int("scale", cfg.Render.Scale),
		slog.String("variant", cfg.Render.ResolveVariant().String()),
		slog.String("race_policy", cfg.Render.RacePolicy),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(logger, 256)
	go bus.Start()
	defer bus.Stop()

	collector := metrics.NewCollector()
	collector.Attach(bus)

	rt, err := app.Build(cfg, app.RuntimeDeps{
		Bus:     bus,
		Metrics: collector,
		Sink:    openPreview(cfg.Preview, logger),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	a := rt.App
	defer a.Close() //nolint:errcheck

	if cfg.Document.Save && cfg.Document.Path != "" {
		rt.SaveOnSwap(cfg.Document.Path, logger)
	}

	if cfg.Preview.Framebuffer != "" {
		system.WatchKeys(ctx, logging.Component(logger, "keys"), keyHandler(a, stop))
	}

	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = system.PublicURL(cfg.Server.ListenAddr)
	}

	hub := web.NewHub(logger, collector, cfg.Server.DevMode)
	hub.Current = a.Current
	hub.Attach(bus)
	defer hub.Close()

	server := web.NewHTTPServer(cfg.Server.ListenAddr, web.NewHandler(web.Deps{
		App:     a,
		Doc:     rt.Doc,
		Files:   rt.Files,
		Hub:     hub,
		Limiter: web.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		Metrics: collector,
		Logger:  logger,
		Server:  cfg.Server,
	}), logger)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop() //nolint:errcheck
	logger.Info("favicount ready", slog.String("url", cfg.Server.PublicURL))

	if _, err := os.Stat(*configPath); err == nil {
		w := &config.Watcher{
			Path:   *configPath,
			Logger: logger,
			OnChange: func(next *config.Config) {
				logMgr.Reconfigure(next.Logging)
				a.ApplyOverrides(next.Render.Options)
			},
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watcher stopped", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("favicount shutting down")
	return nil
}

// openPreview returns the framebuffer sink, or nil when the preview is
// off or the device cannot be opened.
func openPreview(cfg config.PreviewConfig, logger *slog.Logger) render.Sink {
	if cfg.Framebuffer == "" {
		return nil
	}
	preview, err := render.OpenFBPreview(cfg.Framebuffer)
	if err != nil {
		logger.Warn("framebuffer preview disabled", slog.String("device", cfg.Framebuffer), slog.Any("error", err))
		return nil
	}
	if cfg.Console {
		return system.WithConsole(preview, system.NewConsole(logger))
	}
	return preview
}

// keyHandler steps a counter badge with the arrow keys. R resets the
// favicon and F4 quits.
func keyHandler(a *app.App, quit context.CancelFunc) func(system.Key) {
	var count atomic.Int64
	return func(k system.Key) {
		switch k {
		case system.KeyUp:
			a.SetCount(int(count.Add(1)), "")
		case system.KeyDown:
			n := count.Add(-1)
			if n < 0 {
				count.Store(0)
				n = 0
			}
			a.SetCount(int(n), "")
		case system.KeyReset:
			count.Store(0)
			a.Reset()
		case system.KeyExit:
			quit()
		}
	}
}

func orBuiltin(path string) string {
	if strings.TrimSpace(path) == "" {
		return "(built-in)"
	}
	return path
}
