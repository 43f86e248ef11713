// Package main provides the entry point for dropwatch.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/dropwatch/dropwatch/internal/actions"
	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/di"
	"github.com/dropwatch/dropwatch/internal/di/providers"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/schema"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run starts dropwatch and blocks until ctx is cancelled, a signal arrives
// or the watch loop ends. Any startup error is returned before watching.
func run(ctx context.Context, args []string) error {
	boot := config.PreParse(args)
	envErr := config.LoadEnvFile(boot.EnvFile)

	level, env := boot.ResolveLogging()
	log := logger.New(logger.Config{Environment: env, Level: logger.ParseLevel(level)})
	if envErr != nil {
		log.Error("Failed to load env file", "error", envErr)
		return envErr
	}

	registry := plugin.NewRegistry(actions.Catalog(log.Component("actions")), log.Component("plugins"))
	set, err := registry.Load(boot.ResolvePluginDir())
	if err != nil {
		log.Error("Failed to load plugins", "error", err)
		return err
	}

	b := schema.New("dropwatch")
	if err := config.RegisterOptions(b.Scope(schema.CoreOwner)); err != nil {
		return fail(log, set, "Failed to register options", err)
	}
	if err := set.RegisterArguments(b); err != nil {
		return fail(log, set, "Failed to register plugin options", err)
	}

	root := newRootCommand(b, set, log)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error("dropwatch stopped", "error", err)
		return err
	}
	return nil
}

func newRootCommand(b *schema.Builder, set *plugin.Set, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dropwatch",
		Short:         "Watch a directory and dispatch new files to plugins",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), b, set, log)
		},
	}
	cmd.Flags().AddFlagSet(b.FlagSet())
	return cmd
}

// serve owns the plugin set from here on: it is closed on every exit path.
func serve(ctx context.Context, b *schema.Builder, set *plugin.Set, log *logger.Logger) error {
	vals, err := b.Resolve()
	if err != nil {
		_ = set.Close()
		return err
	}
	cfg, err := config.FromValues(vals)
	if err != nil {
		_ = set.Close()
		return err
	}
	if err := set.Init(ctx, vals); err != nil {
		_ = set.Close()
		return err
	}

	injector := di.NewContainer(cfg, set)
	if err := di.Bootstrap(injector); err != nil {
		injector.Shutdown()
		return err
	}

	log = do.MustInvoke[*logger.Logger](injector)
	watch := do.MustInvoke[*providers.WatchHandle](injector)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case <-watch.Done():
		log.Warn("Watch loop ended, shutting down")
	}

	if report := injector.Shutdown(); report != nil && !report.Succeed {
		log.Error("Shutdown error", "error", report.Error())
	}

	select {
	case <-watch.Done():
		return watch.Err()
	default:
		return nil
	}
}

func fail(log *logger.Logger, set *plugin.Set, msg string, err error) error {
	log.Error(msg, "error", err)
	_ = set.Close()
	return err
}
