package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fallbackBackend implements Backend using fsnotify with settle debouncing.
type fallbackBackend struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	pending map[string]*pendingEvent // created paths still settling
	stopped bool
	mu      sync.Mutex // protects pending and stopped

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// pendingEvent tracks a created file that may still be changing.
type pendingEvent struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// newFallbackBackend creates a fallback backend using fsnotify.
func newFallbackBackend(logger *slog.Logger, opts Options) (Backend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fallbackBackend{
		logger:  logger,
		opts:    opts,
		watcher: watcher,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, opts.BufferSize),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds dir to the fsnotify watch list.
func (b *fallbackBackend) Watch(dir string) error {
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	if err := b.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}
	b.logger.Debug("added watch", "path", dir)
	return nil
}

// Start launches the event pump.
func (b *fallbackBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.processEvents(ctx)
	return nil
}

// processEvents pumps fsnotify events until stopped.
func (b *fallbackBackend) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFsnotifyEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			default:
				b.logger.Error("dropping watch error", "error", err)
			}
		}
	}
}

// handleFsnotifyEvent tracks creations and restarts settling on writes.
func (b *fallbackBackend) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() {
			return
		}
		b.startSettling(path, info)

	case event.Has(fsnotify.Write):
		// Writes only matter while a creation is still settling.
		b.mu.Lock()
		_, tracked := b.pending[path]
		b.mu.Unlock()
		if !tracked {
			return
		}
		info, err := os.Lstat(path)
		if err != nil {
			b.cancelPending(path)
			return
		}
		b.startSettling(path, info)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		b.cancelPending(path)
	}
}

// startSettling (re)arms the settle timer for a created path.
func (b *fallbackBackend) startSettling(path string, info os.FileInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
	}

	pending := &pendingEvent{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(b.opts.SettleDelay, func() {
		b.checkSettled(path)
	})
	b.pending[path] = pending
}

// checkSettled emits the creation once size and mtime stopped changing.
// The lock is held through the send so Stop cannot close the channel under
// a firing timer.
func (b *fallbackBackend) checkSettled(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, exists := b.pending[path]
	if !exists || b.stopped {
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		delete(b.pending, path)
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(b.opts.SettleDelay, func() {
			b.checkSettled(path)
		})
		return
	}

	delete(b.pending, path)

	if info.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Stat(path); err == nil {
			info = target
		}
	}
	b.emitEvent(newEvent(path, info))
}

// cancelPending forgets a creation that vanished before settling.
func (b *fallbackBackend) cancelPending(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
		delete(b.pending, path)
	}
}

// emitEvent sends an event, blocking while the buffer is full.
func (b *fallbackBackend) emitEvent(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// Events returns the events channel.
func (b *fallbackBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *fallbackBackend) Errors() <-chan error {
	return b.errors
}

// Stop cancels pending timers, closes fsnotify and waits for the pump.
func (b *fallbackBackend) Stop() error {
	close(b.done)

	b.mu.Lock()
	b.stopped = true
	for _, pending := range b.pending {
		pending.timer.Stop()
	}
	clear(b.pending)
	b.mu.Unlock()

	err := b.watcher.Close()

	b.wg.Wait()

	close(b.events)
	close(b.errors)

	return err
}
