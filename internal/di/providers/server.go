package providers

import (
	"net"
	"strconv"

	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/api"
	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/mdns"
)

// StatusServerHandle wraps the status API with shutdown capability. Server
// is nil when the API is disabled.
type StatusServerHandle struct {
	*api.Server
	mdns *mdns.Service
}

// Shutdown implements do.ShutdownerWithError.
func (h *StatusServerHandle) Shutdown() error {
	if h.mdns != nil {
		h.mdns.Stop()
	}
	if h.Server == nil {
		return nil
	}
	ctx, cancel := shutdownContext()
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideStatusServer starts the status API when --status-addr is set.
func ProvideStatusServer(i do.Injector) (*StatusServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Status.Addr == "" {
		log.Info("Status API disabled")
		return &StatusServerHandle{}, nil
	}

	plugins := do.MustInvoke[*PluginSetHandle](i)
	audit := do.MustInvoke[*AuditStoreHandle](i)
	stats := do.MustInvoke[*dispatch.Stats](i)
	stream := do.MustInvoke[*EventStreamHandle](i)

	services := &api.Services{
		Plugins: plugins.Set,
		Stats:   stats,
		Audit:   audit.Store,
		Search:  plugins.Searcher(),
		Journal: plugins.Journal(),
		Events:  stream.Manager,
	}

	srv := api.NewServer(api.Config{
		Addr:     cfg.Status.Addr,
		MaxConns: cfg.Status.MaxConns,
		Rate:     cfg.Status.Rate,
		Origins:  cfg.Status.Origins,
	}, services, log.Component("api"))

	if err := srv.Start(); err != nil {
		return nil, err
	}

	h := &StatusServerHandle{Server: srv}
	if cfg.Status.MDNS {
		h.mdns = advertise(log, srv.Addr(), mdns.Instance{
			Version:   api.Version,
			Directory: cfg.Watch.Directory,
			Actions:   len(plugins.Actions()),
		})
	}
	return h, nil
}

// advertise starts mDNS for the API bound at addr. Failures are logged and
// yield nil; the API keeps running.
func advertise(log *logger.Logger, addr string, inst mdns.Instance) *mdns.Service {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Warn("mDNS disabled: bad listen address", "addr", addr, "error", err)
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Warn("mDNS disabled: bad listen port", "addr", addr, "error", err)
		return nil
	}

	svc := mdns.NewService(log.Component("mdns"))
	if err := svc.Start(inst, port); err != nil {
		log.Warn("mDNS advertisement failed", "error", err)
		return nil
	}
	return svc
}
