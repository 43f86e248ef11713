package providers

import (
	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/logger"
)

// ProvideStats provides the dispatch counters shared by the dispatcher and
// the status API.
func ProvideStats(_ do.Injector) (*dispatch.Stats, error) {
	return dispatch.NewStats(), nil
}

// ProvideDispatcher provides the dispatcher over the loaded actions.
func ProvideDispatcher(i do.Injector) (*dispatch.Dispatcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	plugins := do.MustInvoke[*PluginSetHandle](i)
	audit := do.MustInvoke[*AuditStoreHandle](i)
	stats := do.MustInvoke[*dispatch.Stats](i)
	stream := do.MustInvoke[*EventStreamHandle](i)

	opts := []dispatch.Option{
		dispatch.WithPolicy(Policy(cfg.Dispatch)),
		dispatch.WithProbe(dispatch.NewHostProbe()),
		dispatch.WithAllowBinary(cfg.Watch.AllowBinary),
		dispatch.WithStats(stats),
		dispatch.WithLogger(log.Component("dispatch")),
	}
	var recorders []dispatch.Recorder
	if audit.Store != nil {
		recorders = append(recorders, dispatch.AuditRecorder{Store: audit.Store})
	}
	if stream.Manager != nil {
		recorders = append(recorders, stream.Manager)
	}
	opts = append(opts, dispatch.WithRecorder(dispatch.Recorders(recorders...)))

	d := dispatch.New(plugins.Actions(), opts...)

	log.Info("Dispatcher ready",
		"actions", d.Actions(),
		"mode", cfg.Dispatch.Mode,
		"audited", audit.Store != nil,
	)
	if d.Actions() == 0 {
		log.Warn("No actions loaded; matching files will only be logged", "plugin_dir", cfg.Plugins.Dir)
	}

	return d, nil
}

// Policy maps the dispatch configuration to an execution policy.
func Policy(cfg config.DispatchConfig) dispatch.Policy {
	if cfg.Mode == config.ModeBounded {
		return dispatch.Bounded{Concurrency: cfg.Concurrency, Timeout: cfg.ActionTimeout}
	}
	return dispatch.Sequential{}
}
