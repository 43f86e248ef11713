// Package index feeds the text content of every dispatched file into a
// full-text index that the status API can query.
package index

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/schema"
	"github.com/dropwatch/dropwatch/internal/search"
)

// OptPath is the index location.
const OptPath = "index-path"

// DefaultPath is relative to the working directory.
const DefaultPath = ".dropwatch/index.bleve"

// Action indexes file content.
type Action struct {
	name   string
	logger *slog.Logger

	mu    sync.RWMutex
	index *search.Index
}

var (
	_ plugin.Action      = (*Action)(nil)
	_ plugin.Contributor = (*Action)(nil)
	_ plugin.Initializer = (*Action)(nil)
)

// Factory returns the catalog factory for the index action.
func Factory(l *slog.Logger) plugin.Factory {
	return func(name string) plugin.Plugin {
		return New(name, l)
	}
}

// New creates an unopened index action.
func New(name string, l *slog.Logger) *Action {
	return &Action{
		name:   name,
		logger: l.With(logger.KeyComponent, "action", logger.KeyAction, name),
	}
}

// Name returns the plugin name.
func (a *Action) Name() string { return a.name }

// RegisterArguments adds --index-path.
func (a *Action) RegisterArguments(s *schema.Scope) error {
	return s.String(OptPath, DefaultPath, "Location of the full-text index (:memory: keeps it in memory)")
}

// Init opens the index.
func (a *Action) Init(_ context.Context, v *schema.Values) error {
	idx, err := search.Open(search.Options{Path: v.String(OptPath), Logger: a.logger})
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "open index")
	}
	a.mu.Lock()
	a.index = idx
	a.mu.Unlock()
	return nil
}

// Handle indexes ev. Binary content is skipped.
func (a *Action) Handle(_ context.Context, ev domain.FileEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.index == nil {
		return errors.Internal("index used before Init")
	}

	if !utf8.Valid(ev.Content) {
		a.logger.Debug("skipping binary content", logger.KeyPath, ev.Path)
		return nil
	}
	return a.index.IndexEvent(ev)
}

// Search queries the index.
func (a *Action) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.index == nil {
		return nil, errors.Internal("index used before Init")
	}
	return a.index.Search(ctx, params)
}

// DocumentCount returns the number of indexed files.
func (a *Action) DocumentCount() (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.index == nil {
		return 0, errors.Internal("index used before Init")
	}
	return a.index.DocumentCount()
}

// Close closes the index.
func (a *Action) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil {
		return nil
	}
	err := a.index.Close()
	a.index = nil
	return err
}
