package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/watcher"
)

// WatchHandle runs the event source with shutdown capability.
type WatchHandle struct {
	*watcher.Source
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the watch loop has returned.
func (h *WatchHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error the watch loop stopped with, once Done is closed.
func (h *WatchHandle) Err() error {
	<-h.done
	return h.err
}

// Shutdown implements do.ShutdownerWithError. It stops the subscription and
// waits, without a bound, for the in-flight dispatch to finish. Bounded
// dispatch caps each action with --action-timeout.
func (h *WatchHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return h.err
}

// ProvideWatcher subscribes to the watch directory and starts dispatching.
func ProvideWatcher(i do.Injector) (*WatchHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	d := do.MustInvoke[*dispatch.Dispatcher](i)

	src, err := watcher.NewSource(log.Component("watcher"), cfg.Watch.Directory, cfg.Watch.Matcher, watcher.Options{
		SettleDelay: cfg.Watch.SettleDelay,
		Portable:    cfg.Watch.Portable,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &WatchHandle{Source: src, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		h.err = src.Run(ctx, d.OnMatch)
		if h.err != nil {
			log.Error("Watch loop stopped", "error", h.err)
		}
	}()

	log.Info("Watcher started", "directory", src.Dir())
	return h, nil
}
