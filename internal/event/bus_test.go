package event

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	got := make(chan Event, 1)
	bus.Subscribe(RenderCompleted, func(e Event) { got <- e })

	bus.Publish(Event{Type: RenderCompleted, Data: map[string]any{"label": "3"}})

	e := receive(t, got)
	if e.Data["label"] != "3" {
		t.Errorf("data[label] = %v, want 3", e.Data["label"])
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", e.ID, err)
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	got := make(chan Event, 4)
	bus.SubscribeAll(func(e Event) { got <- e })

	bus.Publish(Event{Type: RenderStarted})
	bus.Publish(Event{Type: FaviconReset})

	if e := receive(t, got); e.Type != RenderStarted {
		t.Errorf("first = %s", e.Type)
	}
	if e := receive(t, got); e.Type != FaviconReset {
		t.Errorf("second = %s", e.Type)
	}
}

func TestPanickingHandlerDoesNotStopBus(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	got := make(chan Event, 1)
	bus.Subscribe(RenderFailed, func(Event) { panic("boom") })
	bus.Subscribe(RenderFailed, func(e Event) { got <- e })

	bus.Publish(Event{Type: RenderFailed})
	receive(t, got)
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus(testLogger(), 1)
	bus.Publish(Event{Type: RenderStarted})
	bus.Publish(Event{Type: RenderStarted})
	if n := len(bus.ch); n != 1 {
		t.Errorf("buffered %d events, want 1", n)
	}
}

func TestStopDrainsBuffer(t *testing.T) {
	bus := NewBus(testLogger(), 8)
	got := make(chan Event, 8)
	bus.Subscribe(OptionsChanged, func(e Event) { got <- e })
	for range 3 {
		bus.Publish(Event{Type: OptionsChanged})
	}
	bus.Stop()
	bus.Stop()
	bus.Start()
	if len(got) != 3 {
		t.Errorf("drained %d events, want 3", len(got))
	}
}
