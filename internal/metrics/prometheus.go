package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rook-computer/favicount/internal/event"
)

// Render outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeLoadError = "load_error"
	OutcomeTainted   = "tainted"
	OutcomeDiscarded = "discarded"
	OutcomeCancelled = "cancelled"
)

// Collector owns a private registry so several instances (tests, the CLI)
// never collide.
type Collector struct {
	registry *prometheus.Registry

	renderDuration *prometheus.HistogramVec
	renderTotal    *prometheus.CounterVec
	loadDuration   *prometheus.HistogramVec
	loadTotal      *prometheus.CounterVec
	resets         prometheus.Counter
	events         *prometheus.CounterVec
	wsConnections  prometheus.Gauge
	pending        prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		renderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "favicount_render_duration_seconds",
				Help:    "Time from set to finished render, including the base image load",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		renderTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "favicount_renders_total",
				Help: "Renders by outcome",
			},
			[]string{"outcome"},
		),
		loadDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "favicount_load_duration_seconds",
				Help:    "Base image load time",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"status"},
		),
		loadTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "favicount_loads_total",
				Help: "Base image loads by status",
			},
			[]string{"status"},
		),
		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "favicount_resets_total",
			Help: "Favicon resets",
		}),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "favicount_events_total",
				Help: "Events published on the bus by type",
			},
			[]string{"type"},
		),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "favicount_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "favicount_renders_pending",
			Help: "Renders waiting for their base image",
		}),
	}
}

// Every method is safe on a nil Collector, so components can run without
// metrics.

func (c *Collector) RecordRender(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.renderDuration.WithLabelValues(outcome).Observe(d.Seconds())
	c.renderTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLoad(err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	c.loadDuration.WithLabelValues(status).Observe(d.Seconds())
	c.loadTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RecordReset() {
	if c == nil {
		return
	}
	c.resets.Inc()
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	if c == nil {
		return
	}
	c.wsConnections.Add(float64(delta))
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pending.Set(float64(n))
}

// Attach counts every bus event by type.
func (c *Collector) Attach(bus *event.Bus) {
	if c == nil || bus == nil {
		return
	}
	bus.SubscribeAll(func(e event.Event) {
		c.events.WithLabelValues(string(e.Type)).Inc()
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
