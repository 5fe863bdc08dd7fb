package system

import (
	"fmt"
	"os"
	"time"
)

// openStdIOLog opens path for appending and marks where this run starts.
// An empty path returns a nil file.
func openStdIOLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "--- favicount pid %d started %s ---\n", os.Getpid(), time.Now().Format(time.RFC3339)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
