package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/sse"
)

// EventStreamHandle wraps the live dispatch stream. Manager is nil when the
// status API is disabled, since nothing could subscribe.
type EventStreamHandle struct {
	*sse.Manager
}

// Shutdown implements do.ShutdownerWithError.
func (h *EventStreamHandle) Shutdown() error {
	if h.Manager == nil {
		return nil
	}
	ctx, cancel := shutdownContext()
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideEventStream starts the broadcast loop behind GET /api/v1/events.
func ProvideEventStream(i do.Injector) (*EventStreamHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Status.Addr == "" {
		return &EventStreamHandle{}, nil
	}

	m := sse.NewManager(log.Component("sse"))
	m.Start(context.Background())
	return &EventStreamHandle{Manager: m}, nil
}
