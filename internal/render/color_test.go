package render

import (
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "#fff", want: color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{in: "#F03D25", want: DefaultBackground},
		{in: "#00ff0080", want: color.NRGBA{G: 255, A: 128}},
		{in: "#f008", want: color.NRGBA{R: 255, A: 0x88}},
		{in: "rgb(1, 2, 3)", want: color.NRGBA{R: 1, G: 2, B: 3, A: 255}},
		{in: "rgba(0,0,0,0.3)", want: ShadowColor},
		{in: "rgb(100%, 0%, 50%)", want: color.NRGBA{R: 255, B: 128, A: 255}},
		{in: " Lime ", want: color.NRGBA{G: 255, A: 255}},
		{in: "", wantErr: true},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
		{in: "hsl(0, 0%, 0%)", wantErr: true},
		{in: "rgb(1,2)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseColor(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseColor(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColorOrFallsBack(t *testing.T) {
	if got := ColorOr("nope", DefaultText); got != DefaultText {
		t.Errorf("ColorOr = %+v", got)
	}
}
