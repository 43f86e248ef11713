// Package watcher reports files created in a single directory.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/dropwatch/dropwatch/internal/errors"
)

// MatchFunc receives the path of every created file whose name matches.
type MatchFunc func(ctx context.Context, path string)

// Source subscribes to one directory and forwards matching creations.
//
// The backend is selected per platform:
//   - Linux: inotify, a file is reported when its creator closes it after writing.
//   - Others: fsnotify, a file is reported once its size and mtime settle.
type Source struct {
	backend   Backend
	matcher   *Matcher
	logger    *slog.Logger
	dir       string
	closeOnce sync.Once
	closeErr  error
}

// NewSource creates dir if needed and subscribes to it non-recursively.
func NewSource(logger *slog.Logger, dir string, matcher *Matcher, opts Options) (*Source, error) {
	opts.setDefaults()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "resolve watch directory %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.CodeIO, "create watch directory %s", abs)
	}

	var backend Backend
	if runtime.GOOS == "linux" && !opts.Portable {
		backend, err = newLinuxBackend(logger, opts)
		logger.Debug("using inotify backend")
	} else {
		backend, err = newFallbackBackend(logger, opts)
		logger.Debug("using fsnotify backend", "platform", runtime.GOOS)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "create watch backend")
	}

	if err := backend.Watch(abs); err != nil {
		_ = backend.Stop() //nolint:errcheck // already failing
		return nil, errors.Wrapf(err, errors.CodeIO, "watch %s", abs)
	}

	return &Source{
		backend: backend,
		matcher: matcher,
		logger:  logger,
		dir:     abs,
	}, nil
}

// Dir returns the absolute watched directory.
func (s *Source) Dir() string {
	return s.dir
}

// Run delivers matching creations to onMatch until ctx is cancelled.
//
// onMatch runs on the calling goroutine, one event at a time, in delivery
// order. It receives a context that is not cancelled on shutdown so the
// in-flight dispatch can finish. Backend errors are logged and do not stop
// the loop. Run closes the source before returning.
func (s *Source) Run(ctx context.Context, onMatch MatchFunc) error {
	defer s.Close() //nolint:errcheck // shutdown path

	if err := s.backend.Start(ctx); err != nil {
		return errors.Wrap(err, errors.CodeIO, "start watch backend")
	}
	s.logger.Info("watching directory", "directory", s.dir, "pattern", s.matcher.String())

	dispatchCtx := context.WithoutCancel(ctx)
	events := s.backend.Events()
	errs := s.backend.Errors()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopped watching", "directory", s.dir)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !s.matcher.Match(ev.Name) {
				s.logger.Debug("ignoring file", "path", ev.Path)
				continue
			}
			s.logger.Debug("file created",
				"path", ev.Path,
				"inode", ev.Inode,
				"size", ev.Size,
				"mod_time", ev.ModTime)
			onMatch(dispatchCtx, ev.Path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Error("watch backend error", "error", err)
		}
	}
}

// Close stops the backend. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.backend.Stop()
	})
	return s.closeErr
}
