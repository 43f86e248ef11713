// Package providers contains dependency injection providers for dropwatch.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/logger"
)

// ProvideLogger provides the structured logger configured from the parsed
// options.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == config.DefaultEnvironment,
		Environment: cfg.App.Environment,
	})

	log.Info("Starting dropwatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"directory", cfg.Watch.Directory,
		"pattern", cfg.Watch.Pattern,
		"dispatch_mode", cfg.Dispatch.Mode,
	)

	return log, nil
}
