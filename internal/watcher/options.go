package watcher

import "time"

// Defaults applied to zero options.
const (
	DefaultSettleDelay = 100 * time.Millisecond
	DefaultIdleTimeout = 2 * time.Second
	DefaultBufferSize  = 100
)

// Options configures the event source.
type Options struct {
	// SettleDelay is how long a new file's size and mtime must stay unchanged
	// before the fsnotify backend reports it. The inotify backend reports on
	// close-after-write and ignores it.
	SettleDelay time.Duration

	// IdleTimeout is how long the inotify backend waits for a new file that
	// is never closed after writing before reporting it, provided its size
	// and mtime did not change meanwhile.
	IdleTimeout time.Duration

	// BufferSize bounds the number of pending events. When the buffer is
	// full the backend reader blocks.
	BufferSize int

	// Portable selects the fsnotify backend even where inotify is available.
	Portable bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
}
