package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rook-computer/favicount/internal/app"
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

const testPage = `<html><head><title>inbox</title></head><body><p>hello</p></body></html>`

type testEnv struct {
	srv     *httptest.Server
	app     *app.App
	doc     *document.Document
	hub     *Hub
	results chan app.Result
}

type envOption func(*app.Deps, *Deps)

func withoutSurface() envOption {
	return func(a *app.Deps, _ *Deps) { a.Surface = nil }
}

func withLimit(perSecond float64, burst int) envOption {
	return func(_ *app.Deps, d *Deps) { d.Limiter = NewRateLimiter(perSecond, burst) }
}

func withDevMode() envOption {
	return func(_ *app.Deps, d *Deps) { d.Server.DevMode = true }
}

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func iconPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := solid(color.NRGBA{B: 0xFF, A: 0xFF})
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	doc, err := document.ParseString(testPage)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	files := fstest.MapFS{"favicon.ico": {Data: iconPNG(t)}}

	bus := event.NewBus(nil, 64)
	go bus.Start()
	t.Cleanup(bus.Stop)

	m := metrics.NewCollector()
	appDeps := app.Deps{
		Options: state.NewOptions(state.DefaultRenderOptions(1)),
		Refs:    state.NewFaviconRefs(doc),
		Swapper: favicon.NewSwapper(doc),
		Loader:  &loader.Loader{Files: files},
		Surface: render.NewSurface(1, render.VariantOther, render.FormatPNG, nil),
		Bus:     bus,
		Metrics: m,
	}
	webDeps := Deps{Doc: doc, Files: files, Metrics: m, Server: config.ServerConfig{}}
	for _, opt := range opts {
		opt(&appDeps, &webDeps)
	}

	a := app.New(appDeps)
	results := make(chan app.Result, 16)
	a.OnResult(func(r app.Result) { results <- r })
	t.Cleanup(func() { _ = a.Close() })

	hub := NewHub(nil, m, false)
	hub.Current = a.Current
	hub.Attach(bus)
	t.Cleanup(hub.Close)

	webDeps.App = a
	webDeps.Hub = hub
	srv := httptest.NewServer(NewHandler(webDeps))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, app: a, doc: doc, hub: hub, results: results}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) waitResult(t *testing.T) app.Result {
	t.Helper()
	select {
	case r := <-e.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for render")
		return app.Result{}
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestSetServeAndReset(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/v1/set", `{"label": 3, "color": "#0f0"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("set status = %d", resp.StatusCode)
	}
	res := env.waitResult(t)
	if res.Err != nil || res.Label != "3" {
		t.Fatalf("result = %+v", res)
	}

	resp = env.get(t, "/api/v1/favicon")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("favicon status = %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("favicon allow origin = %q, want *", got)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("favicon is not a PNG: %v", err)
	}

	var st stateResponse
	decodeBody(t, env.get(t, "/api/v1/state"), &st)
	if st.Refs.Original != "/favicon.ico" || st.Refs.Current != res.URL {
		t.Errorf("refs = %+v", st.Refs)
	}
	if st.State.Phase != state.RENDERED {
		t.Errorf("phase = %v", st.State.Phase)
	}

	if resp := env.post(t, "/api/v1/reset", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	resp = env.get(t, "/api/v1/favicon")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/favicon.ico" {
		t.Errorf("after reset: status %d, location %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestConfigure(t *testing.T) {
	env := newTestEnv(t)

	var opts state.RenderOptions
	decodeBody(t, env.post(t, "/api/v1/configure", `{"key": "width", "value": 9}`), &opts)
	if opts.Width != 9 {
		t.Errorf("width = %d, want 9", opts.Width)
	}

	decodeBody(t, env.post(t, "/api/v1/configure", `{"key": "color", "value": null}`), &opts)
	if opts.Color != "#ffffff" {
		t.Errorf("color = %q after null", opts.Color)
	}

	decodeBody(t, env.post(t, "/api/v1/configure", `{"key": "badgeShape", "value": "circle"}`), &opts)
	var st stateResponse
	decodeBody(t, env.get(t, "/api/v1/state"), &st)
	if st.Extra["badgeShape"] != "circle" {
		t.Errorf("extra = %v", st.Extra)
	}
}

func TestAPIRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"configure without key", http.MethodPost, "/api/v1/configure", `{"value": 1}`, http.StatusBadRequest},
		{"configure via GET", http.MethodGet, "/api/v1/configure", ``, http.StatusMethodNotAllowed},
		{"set with bool label", http.MethodPost, "/api/v1/set", `{"label": true}`, http.StatusBadRequest},
		{"set with empty body", http.MethodPost, "/api/v1/set", ``, http.StatusBadRequest},
		{"set with broken JSON", http.MethodPost, "/api/v1/set", `{"label":`, http.StatusBadRequest},
		{"reset via GET", http.MethodGet, "/api/v1/reset", ``, http.StatusMethodNotAllowed},
		{"qr too small", http.MethodGet, "/api/v1/qr.png?size=10", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var apiErr apiError
			if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
				t.Errorf("body is not an API error: %v %+v", err, apiErr)
			}
		})
	}
}

func TestSetWithoutSurface(t *testing.T) {
	env := newTestEnv(t, withoutSurface())
	resp := env.post(t, "/api/v1/set", `{"label": "1"}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestDocumentPage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := string(body)
	if !strings.Contains(page, "<title>inbox</title>") {
		t.Error("document not served")
	}
	headEnd := strings.Index(page, "</head>")
	script := strings.Index(page, uiPrefix+assets.ScriptName)
	if script < 0 || script > headEnd {
		t.Errorf("sync script not in head: %s", page)
	}

	if resp := env.get(t, "/favicon.ico"); resp.StatusCode != http.StatusOK {
		t.Errorf("favicon.ico status = %d", resp.StatusCode)
	}
	if resp := env.get(t, uiPrefix+assets.ScriptName); resp.StatusCode != http.StatusOK {
		t.Errorf("script status = %d", resp.StatusCode)
	}
	if resp := env.get(t, "/nope.png"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status = %d", resp.StatusCode)
	}
}

func TestRateLimitOnlyMutations(t *testing.T) {
	env := newTestEnv(t, withLimit(0.001, 1))

	if resp := env.post(t, "/api/v1/reset", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("first reset = %d", resp.StatusCode)
	}
	if resp := env.post(t, "/api/v1/reset", ""); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second reset = %d, want 429", resp.StatusCode)
	}
	for range 3 {
		if resp := env.get(t, "/api/v1/state"); resp.StatusCode != http.StatusOK {
			t.Errorf("state = %d", resp.StatusCode)
		}
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.2") {
		t.Fatal("first request of each client must pass")
	}
	if rl.allow("10.0.0.1") {
		t.Error("second request within the window passed")
	}
}

func TestLabelString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"", ""},
		{"new", "new"},
		{"0", "0"},
		{json.Number("0"), ""},
		{json.Number("0.0"), ""},
		{json.Number("12"), "12"},
		{json.Number("-3"), "-3"},
	}
	for _, tt := range tests {
		got, err := labelString(tt.in)
		if err != nil {
			t.Errorf("labelString(%#v): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("labelString(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := labelString(true); err == nil {
		t.Error("labelString(true) accepted a bool")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		remote string
		want   string
	}{
		{"remote addr", nil, "192.0.2.1:5000", "192.0.2.1"},
		{"forwarded", http.Header{"X-Forwarded-For": {"203.0.113.9, 10.0.0.1"}}, "10.0.0.1:1", "203.0.113.9"},
		{"real ip", http.Header{"X-Real-Ip": {"198.51.100.7"}}, "10.0.0.1:1", "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header[k] = v
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQRCode(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/api/v1/qr.png?size=128")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Errorf("width = %d, want 128", img.Bounds().Dx())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/metrics")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output misses the Go collector")
	}
}

func TestDevCORSPreflight(t *testing.T) {
	env := newTestEnv(t, withDevMode())
	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/v1/set", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWebSocketPushesFavicon(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first wsEnvelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	var fav faviconMessage
	_ = json.Unmarshal(first.Data, &fav)
	if first.Type != MessageFavicon || fav.URL != "/favicon.ico" {
		t.Fatalf("first message = %s %s", first.Type, first.Data)
	}

	env.app.Set("5", "")
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if msg.Type != MessageFavicon {
			continue
		}
		_ = json.Unmarshal(msg.Data, &fav)
		if !strings.HasPrefix(fav.URL, "data:image/png;base64,") {
			t.Fatalf("pushed url = %.40q", fav.URL)
		}
		break
	}
}
