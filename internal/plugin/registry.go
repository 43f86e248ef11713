package plugin

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/plugin/lua"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// Registry discovers plugins in a directory.
type Registry struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewRegistry creates a registry that resolves manifests against catalog.
func NewRegistry(catalog *Catalog, logger *slog.Logger) *Registry {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Registry{catalog: catalog, logger: logger}
}

// Load scans dir non-recursively in directory-listing order. A missing or
// empty directory yields an empty set. Any failure aborts the whole load and
// releases the plugins loaded so far.
func (r *Registry) Load(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("plugin directory does not exist", "dir", dir)
			return &Set{}, nil
		}
		return nil, errors.Wrapf(err, errors.CodePluginLoad, "read plugin directory %s", dir)
	}

	set := &Set{}
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var desc *Descriptor
		switch filepath.Ext(entry.Name()) {
		case lua.Ext:
			desc, err = r.loadScript(path)
		case ManifestExt:
			desc, err = r.loadManifest(path)
		default:
			continue
		}
		if err != nil {
			_ = set.Close() //nolint:errcheck // already failing
			return nil, err
		}

		if prev, dup := seen[desc.Name]; dup {
			_ = set.Close()       //nolint:errcheck // already failing
			_ = closePlugin(desc) //nolint:errcheck // already failing
			return nil, errors.PluginLoadf("duplicate plugin name %q: %s and %s", desc.Name, prev, desc.Source)
		}
		seen[desc.Name] = desc.Source

		set.descriptors = append(set.descriptors, *desc)
		r.logger.Info("loaded plugin",
			"plugin", desc.Name,
			"kind", desc.Kind,
			"action", desc.Action != nil,
			"options", desc.Contributor != nil,
		)
	}

	return set, nil
}

func (r *Registry) loadScript(path string) (*Descriptor, error) {
	s, err := lua.Load(path, r.logger)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{Name: s.Name(), Kind: KindScript, Source: path, Plugin: s}
	if s.HasArguments() {
		desc.Contributor = s
	}
	if s.HasHandler() {
		desc.Action = s
	}
	return desc, nil
}

func (r *Registry) loadManifest(path string) (*Descriptor, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	p, ok := r.catalog.build(m.Builtin, m.Name)
	if !ok {
		return nil, errors.PluginLoadf("manifest %s: unknown builtin %q (available: %v)", path, m.Builtin, r.catalog.Names())
	}

	desc := &Descriptor{Name: m.Name, Kind: KindBuiltin, Source: path, Plugin: p}
	if c, ok := p.(Contributor); ok {
		desc.Contributor = c
	}
	if a, ok := p.(Action); ok {
		desc.Action = a
	}
	return desc, nil
}

// Set is the loaded plugins in discovery order.
type Set struct {
	descriptors []Descriptor
}

// NewSet builds a set from descriptors, mostly for tests and embedding.
func NewSet(descriptors ...Descriptor) *Set {
	return &Set{descriptors: append([]Descriptor(nil), descriptors...)}
}

// Len returns the number of plugins.
func (s *Set) Len() int {
	return len(s.descriptors)
}

// Descriptors returns a copy of the descriptors.
func (s *Set) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.descriptors...)
}

// Lookup finds a plugin by name.
func (s *Set) Lookup(name string) (Descriptor, bool) {
	for _, d := range s.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Actions returns the action list in discovery order.
func (s *Set) Actions() []Action {
	var actions []Action
	for _, d := range s.descriptors {
		if d.Action != nil {
			actions = append(actions, d.Action)
		}
	}
	return actions
}

// Contributors returns the argument contributors in discovery order.
func (s *Set) Contributors() []Contributor {
	var contributors []Contributor
	for _, d := range s.descriptors {
		if d.Contributor != nil {
			contributors = append(contributors, d.Contributor)
		}
	}
	return contributors
}

// RegisterArguments lets every contributor add its options to b.
func (s *Set) RegisterArguments(b *schema.Builder) error {
	for _, d := range s.descriptors {
		if d.Contributor == nil {
			continue
		}
		if err := d.Contributor.RegisterArguments(b.Scope(d.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Init initialises every plugin implementing Initializer, in order.
func (s *Set) Init(ctx context.Context, v *schema.Values) error {
	for _, d := range s.descriptors {
		in, ok := d.Plugin.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(ctx, v); err != nil {
			return errors.Wrapf(err, errors.CodePluginLoad, "initialise plugin %s", d.Name)
		}
	}
	return nil
}

// Close closes every plugin implementing io.Closer in reverse order.
func (s *Set) Close() error {
	var errs []error
	for i := len(s.descriptors) - 1; i >= 0; i-- {
		if err := closePlugin(&s.descriptors[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closePlugin(d *Descriptor) error {
	c, ok := d.Plugin.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "close plugin %s", d.Name)
	}
	return nil
}
