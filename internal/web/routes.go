package web

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/rook-computer/favicount/internal/app"
	"github.com/rook-computer/favicount/internal/config"
	"github.com/rook-computer/favicount/internal/document"
	"github.com/rook-computer/favicount/internal/metrics"
)

// Deps is everything the HTTP surface serves from.
type Deps struct {
	App *app.App
	Doc *document.Document

	// Files holds the document's assets, served under "/".
	Files fs.FS

	Hub     *Hub
	Limiter *RateLimiter
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Server  config.ServerConfig
}

// RegisterAPIV1 registers the public API routes under /api/v1/.
func RegisterAPIV1(mux *http.ServeMux, deps Deps) {
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", apiV1Router(deps)))
}

// RegisterUI serves the live document at "/" and its assets below it.
func RegisterUI(mux *http.ServeMux, deps Deps) {
	mux.Handle(uiPrefix, http.StripPrefix(uiPrefix, uiAssetsHandler()))
	mux.Handle("/", documentHandler(deps))
}

// NewDefaultMux builds the standard mux:
// - /api/v1/* for the API
// - /metrics for Prometheus
// - / for the document and its assets
func NewDefaultMux(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterAPIV1(mux, deps)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}
	RegisterUI(mux, deps)
	return mux
}

// NewHandler is NewDefaultMux wrapped for the configured mode.
func NewHandler(deps Deps) http.Handler {
	var h http.Handler = NewDefaultMux(deps)
	if deps.Server.DevMode {
		h = WithDevCORS(h)
	}
	return h
}
