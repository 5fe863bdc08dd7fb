package app

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rook-computer/favicount/internal/config"
	"github.com/rook-computer/favicount/internal/event"
	"github.com/rook-computer/favicount/internal/favicon"
	"github.com/rook-computer/favicount/internal/loader"
	"github.com/rook-computer/favicount/internal/logging"
	"github.com/rook-computer/favicount/internal/metrics"
	"github.com/rook-computer/favicount/internal/render"
	"github.com/rook-computer/favicount/internal/state"
)

// ErrSuperseded is the Result error of a render that a later Set or Reset
// overtook.
var ErrSuperseded = errors.New("app: render superseded")

// ImageLoader starts base image loads.
type ImageLoader interface {
	Load(ctx context.Context, src string, crossOrigin bool) *loader.Task
}

// Result describes a finished render.
type Result struct {
	ID        string
	Label     string
	Color     string
	Source    string
	URL       string
	Err       error
	Discarded bool
	Duration  time.Duration
}

// Deps are the collaborators of an App. Options, Refs and Swapper are
// required; the rest may be nil.
type Deps struct {
	Store   *state.Store
	Options *state.Options
	Refs    *state.FaviconRefs
	Swapper *favicon.Swapper
	Loader  ImageLoader

	// Surface is the rasterizing capability. Without one Set reports
	// false and does nothing.
	Surface *render.Surface

	Bus     *event.Bus
	Metrics *metrics.Collector
	Sink    render.Sink
	Logger  *slog.Logger

	RacePolicy string
	BaseSource string
}

// App is the badge facade. Configure, Set and Reset may be called from any
// goroutine; all of their effects and every load completion are applied
// on one loop goroutine.
type App struct {
	Deps

	loop   *loop
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	gen      uint64
	inflight *loader.Task
	pending  int

	mu        sync.Mutex
	listeners []func(Result)
	onSwap    []func(url string)
}

func New(deps Deps) *App {
	if deps.Store == nil {
		deps.Store = state.NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Sink == nil {
		deps.Sink = render.NoopSink{}
	}
	if deps.RacePolicy == "" {
		deps.RacePolicy = config.RaceLatest
	}
	if deps.BaseSource == "" {
		deps.BaseSource = config.BaseOriginal
	}
	deps.Logger = logging.Component(deps.Logger, "app")

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Deps:   deps,
		loop:   newLoop(deps.Logger, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnResult registers fn for every finished render, including failed and
// discarded ones. fn runs on the loop goroutine and must not call back
// into the App synchronously.
func (a *App) OnResult(fn func(Result)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// OnSwap registers fn for every change of the document's favicon, from a
// render or a Reset. It runs on the loop goroutine after the document is
// updated.
func (a *App) OnSwap(fn func(url string)) {
	a.mu.Lock()
	a.onSwap = append(a.onSwap, fn)
	a.mu.Unlock()
}

// Configure overwrites one render option when value is truthy. It returns
// the App for chaining.
func (a *App) Configure(key string, value any) *App {
	a.loop.Do(func() {
		if a.Options.Configure(key, value) {
			a.publish(event.OptionsChanged, map[string]any{"key": key, "value": value})
		}
	})
	return a
}

// SetCrossOrigin sets cross-origin mode, including turning it off.
func (a *App) SetCrossOrigin(enabled bool) *App {
	a.loop.Do(func() {
		a.Options.SetCrossOrigin(enabled)
		a.publish(event.OptionsChanged, map[string]any{"key": state.KeyCrossOrigin, "value": enabled})
	})
	return a
}

// ApplyOverrides feeds configured defaults through Configure.
func (a *App) ApplyOverrides(o config.OptionOverrides) *App {
	a.Configure(state.KeyFont, o.Font).
		Configure(state.KeyBackground, o.Background).
		Configure(state.KeyColor, o.Color).
		Configure(state.KeyWidth, o.Width).
		Configure(state.KeyHeight, o.Height)
	if o.CrossOrigin != nil {
		a.SetCrossOrigin(*o.CrossOrigin)
	}
	return a
}

// Set starts rendering label onto the base favicon and returns true. The
// tag is swapped later, when the base image has loaded. An empty color
// uses the color option.
func (a *App) Set(label, color string) bool {
	if a.Surface == nil {
		return false
	}
	return a.loop.Do(func() { a.start(label, color) })
}

// SetCount is Set with a decimal label; zero clears the badge.
func (a *App) SetCount(n int, color string) bool {
	label := ""
	if n != 0 {
		label = strconv.Itoa(n)
	}
	return a.Set(label, color)
}

// Reset points the favicon back at the original reference. Before any Set
// there is no original and Reset does nothing.
func (a *App) Reset() {
	a.loop.Do(func() {
		original := a.Refs.Original()
		if a.RacePolicy == config.RaceLatest {
			a.gen++
			if a.inflight != nil {
				a.inflight.Cancel()
			}
		}
		if !a.Swapper.Replace(original) {
			return
		}
		a.Refs.SetCurrent(original)
		a.swapped(original)
		a.Store.SetPhase(state.RESET)
		a.Metrics.RecordReset()
		a.publish(event.FaviconReset, map[string]any{"url": original})
		a.Logger.Debug("favicon reset", slog.String("url", original))
	})
}

// Current returns the favicon reference the document points at, reading
// it from the document on first use.
func (a *App) Current() string {
	var current string
	if !a.loop.Do(func() { current = a.Refs.Current() }) {
		return a.Refs.Current()
	}
	return current
}

// State returns the render status.
func (a *App) State() state.State { return a.Store.Snapshot() }

// Close cancels running loads and stops the loop.
func (a *App) Close() error {
	a.cancel()
	a.loop.Close()
	return a.Sink.Close()
}

func (a *App) start(label, color string) {
	a.gen++
	gen := a.gen
	if a.RacePolicy == config.RaceLatest && a.inflight != nil {
		a.inflight.Cancel()
	}

	src := a.Refs.Current()
	if a.BaseSource == config.BaseOriginal {
		src = a.Refs.Original()
	}
	opts := a.Options.Snapshot()

	info := state.RenderInfo{ID: uuid.NewString(), Label: label, Color: color, Source: src}
	task := a.Loader.Load(a.ctx, src, opts.CrossOrigin)
	a.inflight = task
	a.pending++
	a.Store.Started(info)
	a.Metrics.SetPending(a.pending)
	a.publish(event.RenderStarted, map[string]any{"id": info.ID, "label": label, "source": src})

	started := time.Now()
	go func() {
		<-task.Done()
		a.loop.Post(func() { a.finish(gen, task, info, started) })
	}()
}

func (a *App) finish(gen uint64, task *loader.Task, info state.RenderInfo, started time.Time) {
	if a.inflight == task {
		a.inflight = nil
	}
	a.pending--
	a.Metrics.SetPending(a.pending)

	res := Result{ID: info.ID, Label: info.Label, Color: info.Color, Source: info.Source}
	img, err := task.Result()

	outcome := metrics.OutcomeOK
	switch {
	case a.RacePolicy == config.RaceLatest && gen != a.gen:
		outcome = metrics.OutcomeDiscarded
		res.Discarded = true
		res.Err = ErrSuperseded
	case errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeCancelled
		res.Err = err
	case err != nil:
		outcome = metrics.OutcomeLoadError
		res.Err = err
	default:
		res.URL, res.Err = a.Surface.Render(img.Image, img.Tainted, info.Label, a.style(info.Color))
		if res.Err != nil {
			outcome = metrics.OutcomeTainted
		}
	}
	res.Duration = time.Since(started)

	if res.Err == nil {
		a.Swapper.Replace(res.URL)
		a.Refs.SetCurrent(res.URL)
		a.swapped(res.URL)
		if err := a.Sink.Show(a.Surface.Snapshot()); err != nil {
			a.Logger.Warn("preview failed", slog.Any("error", err))
		}
	}

	a.Store.Finished(info, res.Err, res.Discarded)
	a.Metrics.RecordRender(outcome, res.Duration)
	a.report(res)
}

func (a *App) report(res Result) {
	data := map[string]any{"id": res.ID, "label": res.Label, "source": res.Source}
	switch {
	case res.Discarded:
		a.publish(event.RenderDiscarded, data)
	case res.Err != nil:
		data["error"] = res.Err.Error()
		a.publish(event.RenderFailed, data)
		a.Logger.Debug("render failed", slog.String("id", res.ID), slog.String("source", res.Source), slog.Any("error", res.Err))
	default:
		data["url"] = res.URL
		a.publish(event.RenderCompleted, data)
	}

	a.mu.Lock()
	listeners := append([]func(Result){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}

func (a *App) swapped(url string) {
	a.mu.Lock()
	hooks := append([]func(string){}, a.onSwap...)
	a.mu.Unlock()
	for _, fn := range hooks {
		fn(url)
	}
}

// style reads the options at completion time, so a Configure between Set
// and the load completing shows up in that render.
func (a *App) style(color string) render.Style {
	opts := a.Options.Snapshot()
	if color == "" {
		color = opts.Color
	}
	return render.Style{
		Font:       opts.Font,
		Background: render.ColorOr(opts.Background, render.DefaultBackground),
		Text:       render.ColorOr(color, render.DefaultText),
		Geometry:   render.GeometryOptions{Width: opts.Width, Height: opts.Height},
	}
}

func (a *App) publish(t event.Type, data map[string]any) {
	if a.Bus == nil {
		return
	}
	a.Bus.Publish(event.Event{Type: t, Data: data})
}

// Snapshot returns a copy of the last rendered surface, or nil without a
// surface.
func (a *App) Snapshot() image.Image {
	if a.Surface == nil {
		return nil
	}
	var img image.Image
	a.loop.Do(func() { img = a.Surface.Snapshot() })
	return img
}
