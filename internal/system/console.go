package system

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rook-computer/favicount/internal/logging"
	"github.com/rook-computer/favicount/internal/render"
)

const (
	hideCursor = "\x1b[?25l"
	showCursor = "\x1b[?25h"
)

// DefaultConsolePaths are tried in order: the active VT, then tty0.
var DefaultConsolePaths = []string{"/dev/tty", "/dev/tty0"}

// Console switches the active virtual terminal into graphics mode while
// the framebuffer preview owns the screen, so the text cursor does not
// blink through the icon.
type Console struct {
	Paths  []string
	Logger *slog.Logger
}

func NewConsole(logger *slog.Logger) *Console {
	return &Console{Paths: DefaultConsolePaths, Logger: logging.Component(logger, "tty")}
}

// Acquire enters graphics mode and hides the cursor. Both steps are
// attempted; the joined error reports what failed.
func (c *Console) Acquire() error {
	err := errors.Join(c.setMode(kdGraphics), c.writeVT(hideCursor))
	c.log("console acquired", err)
	return err
}

// Release undoes Acquire.
func (c *Console) Release() error {
	err := errors.Join(c.writeVT(showCursor), c.setMode(kdText))
	c.log("console released", err)
	return err
}

func (c *Console) log(msg string, err error) {
	if c.Logger == nil {
		return
	}
	if err != nil {
		c.Logger.Warn(msg, slog.Any("error", err))
		return
	}
	c.Logger.Info(msg)
}

func (c *Console) writeVT(s string) error {
	var lastErr error
	for _, p := range c.Paths {
		f, err := os.OpenFile(p, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = f.WriteString(s)
		_ = f.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("write VT failed: %w", lastErr)
	}
	return errors.New("write VT failed: no console paths")
}

// WithConsole acquires c for as long as sink is open.
func WithConsole(sink render.Sink, c *Console) render.Sink {
	_ = c.Acquire()
	return &consoleSink{Sink: sink, console: c}
}

type consoleSink struct {
	render.Sink
	console *Console
}

func (s *consoleSink) Close() error {
	err := s.Sink.Close()
	_ = s.console.Release()
	return err
}
