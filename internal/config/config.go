// Package config builds the application configuration from parsed options.
//
// Every option resolves with the same precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/schema"
	"github.com/dropwatch/dropwatch/internal/validation"
	"github.com/dropwatch/dropwatch/internal/watcher"
)

// Ambient option names.
const (
	OptEnv                 = "env"
	OptLogLevel            = "log-level"
	OptEnvFile             = "env-file"
	OptPluginDir           = "plugin-dir"
	OptSettleDelay         = "settle-delay"
	OptAllowBinary         = "allow-binary"
	OptPortable            = "portable-watcher"
	OptDispatchMode        = "dispatch-mode"
	OptDispatchConcurrency = "dispatch-concurrency"
	OptActionTimeout       = "action-timeout"
	OptAuditDB             = "audit-db"
	OptStatusAddr          = "status-addr"
	OptStatusMaxConns      = "status-max-conns"
	OptStatusRate          = "status-rate"
	OptStatusOrigins       = "status-cors-origins"
	OptStatusMDNS          = "status-mdns"
)

// Defaults for ambient options.
const (
	DefaultEnvFile       = ".env"
	DefaultPluginDir     = "plugins"
	DefaultEnvironment   = "development"
	DefaultLogLevel      = "info"
	DefaultConcurrency   = 4
	DefaultActionTimeout = 30 * time.Second
	DefaultMaxConns      = 16
	DefaultStatusRate    = 10.0
	DefaultStatusOrigins = "*"
)

// Dispatch modes.
const (
	ModeSequential = "sequential"
	ModeBounded    = "bounded"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	Logger   LoggerConfig   `json:"logger"`
	Watch    WatchConfig    `json:"watch"`
	Plugins  PluginsConfig  `json:"plugins"`
	Dispatch DispatchConfig `json:"dispatch"`
	Status   StatusConfig   `json:"status"`
	Audit    AuditConfig    `json:"audit"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `json:"env" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `json:"log-level" validate:"required,oneof=debug info warn error"`
}

// WatchConfig describes what is watched. It does not change after Build.
type WatchConfig struct {
	Directory   string           `json:"directory" validate:"required"`
	Pattern     string           `json:"pattern"`
	Matcher     *watcher.Matcher `json:"-"`
	SettleDelay time.Duration    `json:"settle-delay" validate:"gt=0"`
	AllowBinary bool             `json:"allow-binary"`
	Portable    bool             `json:"portable-watcher"`
}

// PluginsConfig holds plugin discovery configuration.
type PluginsConfig struct {
	Dir string `json:"plugin-dir" validate:"required"`
}

// DispatchConfig selects the action execution policy.
type DispatchConfig struct {
	Mode          string        `json:"dispatch-mode" validate:"required,oneof=sequential bounded"`
	Concurrency   int           `json:"dispatch-concurrency" validate:"gte=1"`
	ActionTimeout time.Duration `json:"action-timeout" validate:"gte=0"`
}

// StatusConfig holds the optional status API configuration. An empty Addr
// disables the API.
type StatusConfig struct {
	Addr     string   `json:"status-addr" validate:"omitempty,hostname_port"`
	MaxConns int      `json:"status-max-conns" validate:"gte=1"`
	Rate     float64  `json:"status-rate" validate:"gte=0"`
	Origins  []string `json:"status-cors-origins"`
	MDNS     bool     `json:"status-mdns"`
}

// AuditConfig holds the optional audit trail. An empty Path disables it.
type AuditConfig struct {
	Path string `json:"audit-db"`
}

// RegisterOptions registers the ambient options under the core owner.
func RegisterOptions(s *schema.Scope) error {
	regs := []func() error{
		func() error { return s.String(OptEnv, DefaultEnvironment, "Environment (development, staging, production)") },
		func() error { return s.String(OptLogLevel, DefaultLogLevel, "Log level (debug, info, warn, error)") },
		func() error { return s.String(OptEnvFile, DefaultEnvFile, "Path to .env file") },
		func() error { return s.String(OptPluginDir, DefaultPluginDir, "Directory plugins are loaded from") },
		func() error {
			return s.Duration(OptSettleDelay, watcher.DefaultSettleDelay, "How long a new file must stay unchanged before dispatch (portable watcher)")
		},
		func() error { return s.Bool(OptAllowBinary, false, "Dispatch files whose content is not valid UTF-8") },
		func() error { return s.Bool(OptPortable, false, "Use the portable fsnotify watcher instead of inotify") },
		func() error { return s.String(OptDispatchMode, ModeSequential, "Action execution policy (sequential, bounded)") },
		func() error {
			return s.Int(OptDispatchConcurrency, DefaultConcurrency, "Concurrent actions per event in bounded mode")
		},
		func() error { return s.Duration(OptActionTimeout, DefaultActionTimeout, "Per-action timeout in bounded mode") },
		func() error { return s.String(OptAuditDB, "", "SQLite database recording every dispatch (empty disables)") },
		func() error { return s.String(OptStatusAddr, "", "Status API listen address, e.g. :8080 (empty disables)") },
		func() error { return s.Int(OptStatusMaxConns, DefaultMaxConns, "Maximum concurrent status API connections") },
		func() error { return s.Float(OptStatusRate, DefaultStatusRate, "Status API requests per second per client (0 = unlimited)") },
		func() error {
			return s.String(OptStatusOrigins, DefaultStatusOrigins, "Comma-separated CORS origins allowed on the status API")
		},
		func() error { return s.Bool(OptStatusMDNS, false, "Advertise the status API over mDNS") },
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

// FromValues builds and validates the configuration.
func FromValues(v *schema.Values) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment: v.String(OptEnv),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(v.String(OptLogLevel)),
		},
		Watch: WatchConfig{
			Directory:   v.String(schema.OptDirectory),
			Pattern:     v.String(schema.OptPattern),
			SettleDelay: v.Duration(OptSettleDelay),
			AllowBinary: v.Bool(OptAllowBinary),
			Portable:    v.Bool(OptPortable),
		},
		Plugins: PluginsConfig{
			Dir: v.String(OptPluginDir),
		},
		Dispatch: DispatchConfig{
			Mode:          strings.ToLower(v.String(OptDispatchMode)),
			Concurrency:   v.Int(OptDispatchConcurrency),
			ActionTimeout: v.Duration(OptActionTimeout),
		},
		Status: StatusConfig{
			Addr:     v.String(OptStatusAddr),
			MaxConns: v.Int(OptStatusMaxConns),
			Rate:     v.Float(OptStatusRate),
			Origins:  splitList(v.String(OptStatusOrigins)),
			MDNS:     v.Bool(OptStatusMDNS),
		},
		Audit: AuditConfig{
			Path: v.String(OptAuditDB),
		},
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := watcher.CompilePattern(cfg.Watch.Pattern)
	if err != nil {
		return nil, err
	}
	cfg.Watch.Matcher = m

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	return validation.New().Validate(c)
}

// expandPaths expands ~ and makes every configured path absolute.
func (c *Config) expandPaths() error {
	paths := []struct {
		name string
		ptr  *string
	}{
		{schema.OptDirectory, &c.Watch.Directory},
		{OptPluginDir, &c.Plugins.Dir},
		{OptAuditDB, &c.Audit.Path},
	}
	for _, p := range paths {
		expanded, err := expandPath(*p.ptr)
		if err != nil {
			return errors.Wrapf(err, errors.CodeValidation, "invalid --%s", p.name)
		}
		*p.ptr = expanded
	}
	return nil
}

// expandPath expands ~ and makes the path absolute. Empty stays empty.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// LoadEnvFile loads variables from a .env file. Variables already set in the
// environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, errors.CodeValidation, "load %s", path)
	}
	return nil
}

// Bootstrap is what must be known before the plugins are loaded.
type Bootstrap struct {
	EnvFile     string
	PluginDir   string
	LogLevel    string
	Environment string
}

// PreParse resolves --env-file and --plugin-dir from args without knowing
// the full option set. Unknown flags are ignored. The plugin directory falls
// back to PLUGIN_DIR, read after the .env file is loaded.
func PreParse(args []string) Bootstrap {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.SetOutput(discard{})

	envFile := fs.String(OptEnvFile, "", "")
	pluginDir := fs.String(OptPluginDir, "", "")
	logLevel := fs.String(OptLogLevel, "", "")
	env := fs.String(OptEnv, "", "")
	fs.BoolP("help", "h", false, "")
	_ = fs.Parse(args) //nolint:errcheck // the real parse reports errors

	b := Bootstrap{EnvFile: *envFile, PluginDir: *pluginDir, LogLevel: *logLevel, Environment: *env}
	if b.EnvFile == "" {
		b.EnvFile = envOr(schema.EnvKey(OptEnvFile), DefaultEnvFile)
	}
	return b
}

// ResolvePluginDir applies the environment fallback and default to the
// pre-parsed plugin directory. Call it after LoadEnvFile.
func (b Bootstrap) ResolvePluginDir() string {
	if b.PluginDir != "" {
		return b.PluginDir
	}
	return envOr(schema.EnvKey(OptPluginDir), DefaultPluginDir)
}

// ResolveLogging returns the log level and environment the same way, for
// the logger used while plugins load.
func (b Bootstrap) ResolveLogging() (level, environment string) {
	level, environment = b.LogLevel, b.Environment
	if level == "" {
		level = envOr(schema.EnvKey(OptLogLevel), DefaultLogLevel)
	}
	if environment == "" {
		environment = envOr(schema.EnvKey(OptEnv), DefaultEnvironment)
	}
	return level, environment
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// splitList splits a comma-separated option, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
