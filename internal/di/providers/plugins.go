package providers

import (
	"github.com/dropwatch/dropwatch/internal/api"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// PluginSetHandle wraps the loaded plugin set so the container releases the
// plugins after everything that dispatches to them has stopped.
type PluginSetHandle struct {
	*plugin.Set
}

// Shutdown implements do.ShutdownerWithError.
func (h *PluginSetHandle) Shutdown() error {
	return h.Close()
}

// Searcher returns the first loaded plugin that can serve search queries.
func (h *PluginSetHandle) Searcher() api.Searcher {
	for _, d := range h.Descriptors() {
		if s, ok := d.Plugin.(api.Searcher); ok {
			return s
		}
	}
	return nil
}

// Journal returns the first loaded plugin that keeps a journal.
func (h *PluginSetHandle) Journal() api.Journal {
	for _, d := range h.Descriptors() {
		if j, ok := d.Plugin.(api.Journal); ok {
			return j
		}
	}
	return nil
}
