package render

import (
	"image"
)

// Sink receives every favicon that ends up in the document. The
// framebuffer preview is one; tests use recording sinks.
type Sink interface {
	Show(icon image.Image) error
	Close() error
}

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) Show(image.Image) error { return nil }
func (NoopSink) Close() error           { return nil }
