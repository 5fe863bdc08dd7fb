//go:build linux

package system

import (
	"context"
	"encoding/binary"
	"log/slog"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WatchKeys reads Linux evdev devices under /dev/input/event* and calls
// onKey for every control key pressed, until ctx ends. It is best-effort:
// without input devices it logs and returns.
func WatchKeys(ctx context.Context, logger *slog.Logger, onKey func(Key)) {
	if onKey == nil {
		return
	}

	// input_event = timeval + u16 type + u16 code + s32 value.
	tvSize := binary.Size(unix.Timeval{})

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(paths) == 0 {
		logger.Info("no evdev devices found, preview keys disabled")
		return
	}

	for _, p := range paths {
		go watchDevice(ctx, logger, p, tvSize, onKey)
	}
}

func watchDevice(ctx context.Context, logger *slog.Logger, path string, tvSize int, onKey func(Key)) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		logger.Debug("open input device failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	defer unix.Close(fd)

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(pollFds, 250); err != nil {
			if err == unix.EINTR {
				continue
			}
			// Device might have gone away.
			return
		}
		if pollFds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		for _, k := range parseKeyPresses(buf[:n], tvSize) {
			onKey(k)
		}
	}
}
