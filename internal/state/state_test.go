package state

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	if s.Snapshot().Phase != IDLE {
		t.Fatal("new store not idle")
	}

	s.Started(RenderInfo{ID: "a", Label: "3"})
	s.Started(RenderInfo{ID: "b", Label: "4"})
	if snap := s.Snapshot(); snap.Phase != LOADING || snap.Pending != 2 {
		t.Fatalf("after start: %+v", snap)
	}

	s.Finished(RenderInfo{ID: "a", Label: "3"}, nil, true)
	s.Finished(RenderInfo{ID: "b", Label: "4"}, errors.New("boom"), false)
	snap := s.Snapshot()
	if snap.Pending != 0 || snap.Phase != FAILED || snap.Failures != 1 || snap.Renders != 0 {
		t.Fatalf("after finish: %+v", snap)
	}
	if snap.Last.ID != "b" || snap.Last.Err != "boom" || snap.Last.Finished.IsZero() {
		t.Errorf("last = %+v", snap.Last)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"phase":"failed"`) {
		t.Errorf("json = %s", data)
	}
}

func TestPhaseText(t *testing.T) {
	for _, p := range []Phase{IDLE, LOADING, RENDERED, FAILED, RESET} {
		text, _ := p.MarshalText()
		var got Phase
		if err := got.UnmarshalText(text); err != nil || got != p {
			t.Errorf("%s: got %v, err %v", text, got, err)
		}
	}
	var p Phase
	if err := p.UnmarshalText([]byte("flashing")); err == nil {
		t.Error("unknown phase accepted")
	}
}
