//go:build !linux

package system

import (
	"context"
	"log/slog"
)

// WatchKeys needs Linux evdev; elsewhere the preview has no keys.
func WatchKeys(_ context.Context, logger *slog.Logger, _ func(Key)) {
	logger.Info("preview keys are only supported on linux")
}
