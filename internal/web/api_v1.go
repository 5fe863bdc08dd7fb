package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rook-computer/favicount/internal/loader"
	"github.com/rook-computer/favicount/internal/render"
	"github.com/rook-computer/favicount/internal/state"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type stateResponse struct {
	State   state.State         `json:"state"`
	Refs    state.Refs          `json:"refs"`
	Options state.RenderOptions `json:"options"`
	Extra   map[string]any      `json:"extra,omitempty"`
}

type configureRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type setRequest struct {
	// Label is a string or a number.
	Label any    `json:"label"`
	Color string `json:"color"`
}

func apiV1Router(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) { handleState(w, r, deps) })
	mux.HandleFunc("/configure", func(w http.ResponseWriter, r *http.Request) { handleConfigure(w, r, deps) })
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) { handleSet(w, r, deps) })
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) { handleReset(w, r, deps) })
	mux.HandleFunc("/favicon", withImageCORS(func(w http.ResponseWriter, r *http.Request) { handleFavicon(w, r, deps) }))
	mux.HandleFunc("/qr.png", func(w http.ResponseWriter, r *http.Request) { handleQRCode(w, r, deps) })
	if deps.Hub != nil {
		mux.Handle("/ws", deps.Hub)
	}
	return deps.Limiter.Middleware(mux)
}

func handleState(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		State:   deps.App.State(),
		Refs:    deps.App.Refs.Snapshot(),
		Options: deps.App.Options.Snapshot(),
		Extra:   deps.App.Options.Extra(),
	})
}

func handleConfigure(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req configureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "key is required")
		return
	}
	deps.App.Configure(req.Key, req.Value)
	writeJSON(w, http.StatusOK, deps.App.Options.Snapshot())
}

func handleSet(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req setRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	label, err := labelString(req.Label)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_label", err.Error())
		return
	}
	if !deps.App.Set(label, req.Color) {
		writeAPIError(w, http.StatusNotImplemented, "not_implemented", "no rendering surface configured")
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func handleReset(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	deps.App.Reset()
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleFavicon serves the favicon the document currently points at.
// Rendered icons are decoded from their data URL; anything else is a
// redirect to the reference.
func handleFavicon(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	current := deps.App.Current()
	if !strings.HasPrefix(strings.ToLower(current), "data:") {
		http.Redirect(w, r, current, http.StatusFound)
		return
	}
	mediaType, data, err := loader.ParseDataURL(current)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "invalid_favicon", err.Error())
		return
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

func handleQRCode(w http.ResponseWriter, r *http.Request, deps Deps) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > 1024 {
			writeAPIError(w, http.StatusBadRequest, "invalid_size", "size must be between 64 and 1024")
			return
		}
		size = n
	}
	png, err := render.QRCodePNG(publicURL(r, deps.Server.PublicURL), size)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "qrcode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func publicURL(r *http.Request, configured string) string {
	if configured != "" {
		return configured
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + "/"
}

// labelString accepts the label as a string or a JSON number.
func labelString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		// Zero clears the badge, as SetCount(0) does.
		if f, err := x.Float64(); err == nil && f == 0 {
			return "", nil
		}
		return x.String(), nil
	}
	return "", fmt.Errorf("label must be a string or a number, got %T", v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}
