// Package eventlog is the simplest action: one structured log line per event.
package eventlog

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// OptPreview is how many leading characters of content are logged.
const OptPreview = "log-preview"

// Action logs file events.
type Action struct {
	name    string
	logger  *slog.Logger
	preview int
}

var (
	_ plugin.Action      = (*Action)(nil)
	_ plugin.Contributor = (*Action)(nil)
	_ plugin.Initializer = (*Action)(nil)
)

// Factory returns the catalog factory for the log action.
func Factory(l *slog.Logger) plugin.Factory {
	return func(name string) plugin.Plugin {
		return New(name, l)
	}
}

// New creates a log action.
func New(name string, l *slog.Logger) *Action {
	return &Action{
		name:   name,
		logger: l.With(logger.KeyComponent, "action", logger.KeyAction, name),
	}
}

// Name returns the plugin name.
func (a *Action) Name() string { return a.name }

// RegisterArguments adds --log-preview.
func (a *Action) RegisterArguments(s *schema.Scope) error {
	return s.Int(OptPreview, 0, "Characters of file content included in each log line")
}

// Init reads the preview length.
func (a *Action) Init(_ context.Context, v *schema.Values) error {
	a.preview = max(v.Int(OptPreview), 0)
	return nil
}

// Handle logs ev.
func (a *Action) Handle(ctx context.Context, ev domain.FileEvent) error {
	attrs := []any{
		logger.KeyPath, ev.Path,
		"event_id", ev.ID,
		"size", ev.File.Size,
		"digest", ev.Digest,
		"host", ev.Machine.Hostname,
		"ip", ev.Machine.IP,
	}
	if a.preview > 0 {
		attrs = append(attrs, "preview", Preview(ev.Content, a.preview))
	}
	a.logger.InfoContext(ctx, "file event", attrs...)
	return nil
}

// Preview returns at most n runes of content. Invalid UTF-8 yields "".
func Preview(content []byte, n int) string {
	if !utf8.Valid(content) {
		return ""
	}
	s := string(content)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
