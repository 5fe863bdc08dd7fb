package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Render.Scale != 1 || cfg.Render.RacePolicy != RaceLatest {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favicount.yaml")
	writeFile(t, path, `
server:
  listen: ":9000"
document:
  path: ./site/index.html
render:
  scale: 2
  variant: gecko
  race_policy: legacy
  options:
    color: "#00ff00"
    cross_origin: false
loader:
  timeout: 3s
logging:
  level: debug
  format: json
`)
	t.Setenv(EnvListenAddr, ":9100")
	t.Setenv(EnvDevMode, "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9100" || !cfg.Server.DevMode {
		t.Errorf("env did not override server: %+v", cfg.Server)
	}
	if cfg.Render.Scale != 2 || cfg.Render.RacePolicy != RaceLegacy || cfg.Render.Options.Color != "#00ff00" {
		t.Errorf("render = %+v", cfg.Render)
	}
	if co := cfg.Render.Options.CrossOrigin; co == nil || *co {
		t.Errorf("cross_origin = %v, want explicit false", co)
	}
	if cfg.Loader.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", cfg.Loader.Timeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "scale", yaml: "render: {scale: 0}", want: "render.scale"},
		{name: "race policy", yaml: "render: {race_policy: fastest}", want: "race_policy"},
		{name: "variant", yaml: "render: {variant: trident}", want: "variant"},
		{name: "format", yaml: "render: {output_format: gif}", want: "output format"},
		{name: "dev env", env: map[string]string{EnvDevMode: "maybe"}, want: EnvDevMode},
		{name: "scale env", env: map[string]string{EnvScale: "big"}, want: EnvScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			writeFile(t, path, tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestScaleFromRatio(t *testing.T) {
	tests := map[float64]int{0: 1, -2: 1, 1: 1, 1.25: 2, 2: 2, 2.625: 3}
	for in, want := range tests {
		if got := ScaleFromRatio(in); got != want {
			t.Errorf("ScaleFromRatio(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestEnvScale(t *testing.T) {
	t.Setenv(EnvScale, "1.5")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Render.Scale != 2 {
		t.Errorf("scale = %d, want 2", cfg.Render.Scale)
	}
}

func TestResolveVariantAuto(t *testing.T) {
	r := RenderConfig{Variant: "auto", UserAgent: "Mozilla/5.0 (X11; rv:121.0) Gecko/20100101 Firefox/121.0"}
	if got := r.ResolveVariant().String(); got != "gecko" {
		t.Errorf("variant = %s", got)
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favicount.yaml")
	writeFile(t, path, "render: {scale: 1}\n")

	got := make(chan *Config, 4)
	w := &Watcher{Path: path, Debounce: 20 * time.Millisecond, OnChange: func(c *Config) { got <- c }}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watch is registered asynchronously; keep writing until a reload lands.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-got:
			if cfg.Render.Scale != 3 {
				t.Errorf("reloaded scale = %d, want 3", cfg.Render.Scale)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run: %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, path, "render: {scale: 3}\n")
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
