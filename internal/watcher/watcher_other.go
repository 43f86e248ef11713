//go:build !linux

package watcher

import (
	"fmt"
	"log/slog"
)

// newLinuxBackend is never selected off Linux.
func newLinuxBackend(_ *slog.Logger, _ Options) (Backend, error) {
	return nil, fmt.Errorf("inotify backend not available on this platform")
}
