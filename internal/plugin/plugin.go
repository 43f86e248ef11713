// Package plugin defines the action contract and discovers the plugins that
// make up a dropwatch process.
//
// Plugins come from two places: *.lua scripts found in the plugin directory
// and compiled-in plugins from a Catalog, enabled by a *.json manifest in the
// same directory. The directory listing order fixes the dispatch order.
package plugin

import (
	"context"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// Plugin is anything the registry can load.
type Plugin interface {
	Name() string
}

// Action handles dispatched file events. Handle must not retain ev.
type Action interface {
	Name() string
	Handle(ctx context.Context, ev domain.FileEvent) error
}

// Contributor adds options to the command-line schema.
type Contributor interface {
	Name() string
	RegisterArguments(s *schema.Scope) error
}

// Initializer is implemented by plugins that need the parsed options before
// the watch starts.
type Initializer interface {
	Init(ctx context.Context, v *schema.Values) error
}

// Source kinds reported by Descriptor.
const (
	KindScript  = "lua"
	KindBuiltin = "builtin"
)

// Descriptor describes one loaded plugin. It is immutable after load.
type Descriptor struct {
	Name   string
	Kind   string
	Source string // script path or manifest path

	Plugin      Plugin
	Contributor Contributor // nil when the plugin adds no options
	Action      Action      // nil when the plugin handles no events
}

// Factory builds a fresh compiled-in plugin under the given name.
type Factory func(name string) Plugin

// Catalog holds the compiled-in plugins a manifest can enable.
type Catalog struct {
	factories map[string]Factory
	order     []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers a compiled-in plugin under name, replacing any previous one.
func (c *Catalog) Add(name string, f Factory) *Catalog {
	if _, ok := c.factories[name]; !ok {
		c.order = append(c.order, name)
	}
	c.factories[name] = f
	return c
}

// Names lists the catalog in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// build instantiates the compiled-in plugin builtin as name.
func (c *Catalog) build(builtin, name string) (Plugin, bool) {
	f, ok := c.factories[builtin]
	if !ok {
		return nil, false
	}
	return f(name), true
}
