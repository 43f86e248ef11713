// Package di provides dependency injection configuration for dropwatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/di/providers"
	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// NewContainer creates the DI container around the parsed configuration and
// the loaded, initialised plugin set. The container owns the set from here
// on and closes it on shutdown.
func NewContainer(cfg *config.Config, plugins *plugin.Set) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, &providers.PluginSetHandle{Set: plugins})
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideAuditStore)

	// Dispatch layer
	do.Provide(injector, providers.ProvideStats)
	do.Provide(injector, providers.ProvideEventStream)
	do.Provide(injector, providers.ProvideDispatcher)

	// Server and watch loop
	do.Provide(injector, providers.ProvideStatusServer)
	do.Provide(injector, providers.ProvideWatcher)

	return injector
}

// Bootstrap initializes every service in dependency order. The status API
// is started before the watch so it can report the first dispatch.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.AuditStoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*dispatch.Dispatcher](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StatusServerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.WatchHandle](injector); err != nil {
		return err
	}
	return nil
}
