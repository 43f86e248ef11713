//go:build linux

package watcher

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxBackend implements Backend using inotify.
//
// A regular file is a candidate when IN_CREATE reports it and is emitted on
// the first IN_CLOSE_WRITE that follows, so readers never see a half-written
// file. A candidate that is never closed after writing (opened without a
// write, or held open) is emitted once its size and mtime stay unchanged for
// IdleTimeout. Hard links and files moved into the directory are complete
// and emitted at once. Entries that are never written through (symlinks,
// fifos, sockets) are emitted on creation and left to the dispatcher to
// refuse.
type linuxBackend struct {
	logger  *slog.Logger
	opts    Options
	created map[string]*pendingEvent
	wdPaths map[int]string
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex // protects created, wdPaths and stopped
	stopped bool
	fd      int
	stopFd  int
}

// newLinuxBackend creates an inotify instance and the eventfd used to wake
// the reader on Stop.
func newLinuxBackend(logger *slog.Logger, opts Options) (Backend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	stopFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to create eventfd: %w", err)
	}

	return &linuxBackend{
		logger:  logger,
		opts:    opts,
		fd:      fd,
		stopFd:  stopFd,
		created: make(map[string]*pendingEvent),
		wdPaths: make(map[int]string),
		events:  make(chan Event, opts.BufferSize),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds an inotify watch for dir.
func (b *linuxBackend) Watch(dir string) error {
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	// IN_CREATE: entry created in the directory.
	// IN_CLOSE_WRITE: file closed after writing, the candidate is ready.
	// IN_MOVED_TO: complete file renamed into the directory.
	// IN_DELETE / IN_MOVED_FROM: candidate vanished before it was closed.
	mask := uint32(unix.IN_CREATE | unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO |
		unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_ONLYDIR)

	wd, err := unix.InotifyAddWatch(b.fd, dir, mask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	b.mu.Lock()
	b.wdPaths[wd] = dir
	b.mu.Unlock()
	b.logger.Debug("added watch", "path", dir, "wd", wd)

	return nil
}

// Start launches the reader goroutine.
func (b *linuxBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.readEvents(ctx)
	return nil
}

// readEvents blocks in poll(2) on the inotify fd and the stop eventfd.
func (b *linuxBackend) readEvents(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*16)
	fds := []unix.PollFd{
		{Fd: int32(b.fd), Events: unix.POLLIN},     //nolint:gosec // G115: fds are small
		{Fd: int32(b.stopFd), Events: unix.POLLIN}, //nolint:gosec // G115: fds are small
	}

	for {
		if ctx.Err() != nil {
			return
		}

		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			b.sendError(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}

		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(b.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			b.sendError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}

		if n < unix.SizeofInotifyEvent {
			continue
		}

		b.parseEvents(buf[:n])
	}
}

// parseEvents walks a buffer of raw inotify events.
func (b *linuxBackend) parseEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: inotify hands us a packed C struct
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		end := offset + unix.SizeofInotifyEvent + int(event.Len)
		if end > len(buf) {
			return
		}

		if event.Mask&unix.IN_Q_OVERFLOW != 0 {
			b.sendError(fmt.Errorf("inotify queue overflow, creations may have been missed"))
		}

		b.mu.Lock()
		dir, ok := b.wdPaths[int(event.Wd)]
		if ok && event.Mask&unix.IN_IGNORED != 0 {
			delete(b.wdPaths, int(event.Wd))
		}
		b.mu.Unlock()

		if ok && event.Len > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : end]
			name := string(nameBytes[:clen(nameBytes)])
			b.processEvent(filepath.Join(dir, name), event.Mask)
		}

		offset = end
	}
}

// processEvent applies the creation state machine to one notification.
func (b *linuxBackend) processEvent(path string, mask uint32) {
	if mask&unix.IN_ISDIR != 0 {
		return
	}

	switch {
	case mask&unix.IN_CREATE != 0:
		info, err := os.Lstat(path)
		if err != nil {
			b.logger.Debug("created entry vanished", "path", path, "error", err)
			return
		}
		if info.Mode().IsRegular() && linkCount(info) <= 1 {
			b.track(path, info)
			return
		}
		b.emitEvent(newEvent(path, info))

	case mask&unix.IN_MOVED_TO != 0:
		b.forget(path)
		info, err := os.Lstat(path)
		if err != nil {
			b.logger.Debug("moved entry vanished", "path", path, "error", err)
			return
		}
		b.emitEvent(newEvent(path, info))

	case mask&unix.IN_CLOSE_WRITE != 0:
		if !b.forget(path) {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			b.logger.Warn("failed to stat file", "path", path, "error", err)
			return
		}
		b.emitEvent(newEvent(path, info))

	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		b.forget(path)
	}
}

// track parks a new regular file until it is closed after writing or goes
// idle.
func (b *linuxBackend) track(path string, info os.FileInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if pending, ok := b.created[path]; ok {
		pending.timer.Stop()
	}
	pending := &pendingEvent{size: info.Size(), modTime: info.ModTime()}
	pending.timer = time.AfterFunc(b.opts.IdleTimeout, func() {
		b.checkIdle(path, pending)
	})
	b.created[path] = pending
}

// forget drops a candidate and reports whether it was pending.
func (b *linuxBackend) forget(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, ok := b.created[path]
	if ok {
		pending.timer.Stop()
		delete(b.created, path)
	}
	return ok
}

// checkIdle emits a candidate nobody closed once it stopped changing. The
// lock is held through the send so Stop cannot close the channel under a
// firing timer.
func (b *linuxBackend) checkIdle(path string, pending *pendingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || b.created[path] != pending {
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		delete(b.created, path)
		return
	}
	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(b.opts.IdleTimeout, func() {
			b.checkIdle(path, pending)
		})
		return
	}

	delete(b.created, path)
	b.logger.Debug("emitting idle file", "path", path)
	b.emitEvent(newEvent(path, info))
}

// emitEvent sends an event, blocking while the buffer is full.
func (b *linuxBackend) emitEvent(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

func (b *linuxBackend) sendError(err error) {
	select {
	case b.errors <- err:
	default:
		b.logger.Error("dropping watch error", "error", err)
	}
}

// Events returns the events channel.
func (b *linuxBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *linuxBackend) Errors() <-chan error {
	return b.errors
}

// Stop wakes the reader through the eventfd, waits for it and closes
// everything.
func (b *linuxBackend) Stop() error {
	close(b.done)

	b.mu.Lock()
	b.stopped = true
	for _, pending := range b.created {
		pending.timer.Stop()
	}
	clear(b.created)
	b.mu.Unlock()

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(b.stopFd, one[:])

	b.wg.Wait()

	closeErr := unix.Close(b.fd)
	_ = unix.Close(b.stopFd)

	close(b.events)
	close(b.errors)

	return closeErr
}

// linkCount returns the number of hard links to the file, 1 when unknown.
func linkCount(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Nlink) //nolint:unconvert // Nlink width differs per arch
	}
	return 1
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := range n {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
