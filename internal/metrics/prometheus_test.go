package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rook-computer/favicount/internal/event"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, want := range lines {
		if !strings.Contains(body, want+"\n") {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRecordRender(t *testing.T) {
	c := NewCollector()
	c.RecordRender(OutcomeOK, 10*time.Millisecond)
	c.RecordRender(OutcomeOK, 20*time.Millisecond)
	c.RecordRender(OutcomeTainted, time.Millisecond)

	expectLines(t, scrape(t, c),
		`favicount_renders_total{outcome="ok"} 2`,
		`favicount_renders_total{outcome="tainted"} 1`,
		`favicount_render_duration_seconds_count{outcome="ok"} 2`,
	)
}

func TestRecordLoadStatus(t *testing.T) {
	c := NewCollector()
	c.RecordLoad(nil, time.Millisecond)
	c.RecordLoad(context.Canceled, time.Millisecond)
	c.RecordLoad(context.DeadlineExceeded, time.Millisecond)
	c.RecordLoad(errors.New("404"), time.Millisecond)

	body := scrape(t, c)
	for _, status := range []string{"ok", "cancelled", "timeout", "error"} {
		expectLines(t, body, `favicount_loads_total{status="`+status+`"} 1`)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordRender(OutcomeOK, time.Second)
	c.RecordLoad(nil, time.Second)
	c.RecordReset()
	c.RecordWebSocketConnection(1)
	c.SetPending(3)
	c.Attach(nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d", rec.Code)
	}
}

func TestAttachCountsEvents(t *testing.T) {
	bus := event.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)), 8)
	c := NewCollector()
	c.Attach(bus)

	bus.Publish(event.Event{Type: event.RenderCompleted})
	bus.Publish(event.Event{Type: event.RenderCompleted})
	bus.Stop()
	bus.Start()

	expectLines(t, scrape(t, c), `favicount_events_total{type="render.completed"} 2`)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordReset()
	c.RecordWebSocketConnection(2)

	expectLines(t, scrape(t, c), "favicount_resets_total 1", "favicount_websocket_connections_active 2")
}
