package state

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDefaultRenderOptionsScale(t *testing.T) {
	got := DefaultRenderOptions(2)
	want := RenderOptions{Font: "20px arial", Background: "#F03D25", CrossOrigin: true, Color: "#ffffff", Height: 9, Width: 7}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if DefaultRenderOptions(0).Font != "10px arial" {
		t.Error("scale 0 not treated as 1")
	}
}

func TestConfigureIgnoresFalsyValues(t *testing.T) {
	o := NewOptions(DefaultRenderOptions(1))
	for _, v := range []any{nil, false, "", 0, 0.0, math.NaN(), json.Number("0")} {
		if o.Configure(KeyColor, v) {
			t.Errorf("Configure(color, %#v) applied", v)
		}
	}
	if got := o.Snapshot().Color; got != "#ffffff" {
		t.Errorf("color = %q after falsy configures", got)
	}

	if !o.Configure(KeyColor, "#fff") {
		t.Fatal("Configure(color, #fff) not applied")
	}
	if got := o.Snapshot().Color; got != "#fff" {
		t.Errorf("color = %q, want #fff", got)
	}
}

func TestConfigureKeys(t *testing.T) {
	o := NewOptions(DefaultRenderOptions(1))
	o.Configure(KeyFont, "bold 12px monospace")
	o.Configure(KeyBackground, "#000")
	o.Configure(KeyWidth, 9.6)
	o.Configure(KeyHeight, json.Number("11"))
	o.Configure("theme", "dark")

	got := o.Snapshot()
	want := RenderOptions{Font: "bold 12px monospace", Background: "#000", CrossOrigin: true, Color: "#ffffff", Height: 11, Width: 10}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if extra := o.Extra(); extra["theme"] != "dark" {
		t.Errorf("extra = %v", extra)
	}
}

func TestConfigureWrongTypeIsIgnored(t *testing.T) {
	o := NewOptions(DefaultRenderOptions(1))
	if o.Configure(KeyWidth, "wide") {
		t.Error("non-numeric width applied")
	}
	if o.Configure(KeyFont, 12) {
		t.Error("numeric font applied")
	}
	if got := o.Snapshot(); got != DefaultRenderOptions(1) {
		t.Errorf("options changed: %+v", got)
	}
}

func TestCrossOriginCanOnlyBeDisabledExplicitly(t *testing.T) {
	o := NewOptions(DefaultRenderOptions(1))
	o.Configure(KeyCrossOrigin, false)
	if !o.Snapshot().CrossOrigin {
		t.Fatal("Configure(crossOrigin, false) disabled cross-origin mode")
	}
	o.SetCrossOrigin(false)
	if o.Snapshot().CrossOrigin {
		t.Fatal("SetCrossOrigin(false) had no effect")
	}
	o.Configure(KeyCrossOrigin, true)
	if !o.Snapshot().CrossOrigin {
		t.Error("Configure(crossOrigin, true) had no effect")
	}
}
