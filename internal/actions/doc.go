// Package actions holds the compiled-in plugins a manifest can enable.
//
// Each subpackage exposes a Factory and, where it needs options, registers
// them under its own prefix: --kafka-*, --journal-*, --index-*.
package actions

import (
	"log/slog"

	"github.com/dropwatch/dropwatch/internal/actions/eventlog"
	"github.com/dropwatch/dropwatch/internal/actions/index"
	"github.com/dropwatch/dropwatch/internal/actions/journal"
	"github.com/dropwatch/dropwatch/internal/actions/kafka"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// Builtin names a manifest can reference.
const (
	Log     = "log"
	Kafka   = "kafka"
	Journal = "journal"
	Index   = "index"
)

// Catalog returns the catalog of every compiled-in plugin.
func Catalog(logger *slog.Logger) *plugin.Catalog {
	return plugin.NewCatalog().
		Add(Log, eventlog.Factory(logger)).
		Add(Kafka, kafka.Factory(logger)).
		Add(Journal, journal.Factory(logger)).
		Add(Index, index.Factory(logger))
}
