package providers

import (
	"github.com/samber/do/v2"

	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/store"
	"github.com/dropwatch/dropwatch/internal/store/sqlite"
)

// AuditStoreHandle wraps the audit store with shutdown capability. Store is
// nil when auditing is disabled.
type AuditStoreHandle struct {
	Store store.AuditStore
}

// Shutdown implements do.ShutdownerWithError.
func (h *AuditStoreHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}

// ProvideAuditStore opens the SQLite audit trail when --audit-db is set.
func ProvideAuditStore(i do.Injector) (*AuditStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Audit.Path == "" {
		log.Info("Dispatch auditing disabled")
		return &AuditStoreHandle{}, nil
	}

	db, err := sqlite.Open(cfg.Audit.Path, log.Component("audit"))
	if err != nil {
		return nil, err
	}

	log.Info("Audit database opened", "path", cfg.Audit.Path)
	return &AuditStoreHandle{Store: db}, nil
}
