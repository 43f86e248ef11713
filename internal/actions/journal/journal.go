// Package journal keeps a badger-backed record of every dispatched file,
// keyed by path. Each record holds the latest event without its content and
// how many times the path has been seen.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/schema"
)

// OptDir is the journal database directory.
const OptDir = "journal-dir"

// DefaultDir is relative to the working directory.
const DefaultDir = ".dropwatch/journal"

// MemoryDir keeps the journal in memory.
const MemoryDir = ":memory:"

const keyPrefix = "file:"

// Action records events in a badger database.
type Action struct {
	name   string
	logger *slog.Logger

	mu sync.RWMutex
	db *badger.DB
}

var (
	_ plugin.Action      = (*Action)(nil)
	_ plugin.Contributor = (*Action)(nil)
	_ plugin.Initializer = (*Action)(nil)
)

// Factory returns the catalog factory for the journal action.
func Factory(l *slog.Logger) plugin.Factory {
	return func(name string) plugin.Plugin {
		return New(name, l)
	}
}

// New creates an unopened journal.
func New(name string, l *slog.Logger) *Action {
	return &Action{
		name:   name,
		logger: l.With(logger.KeyComponent, "action", logger.KeyAction, name),
	}
}

// Name returns the plugin name.
func (a *Action) Name() string { return a.name }

// RegisterArguments adds --journal-dir.
func (a *Action) RegisterArguments(s *schema.Scope) error {
	return s.String(OptDir, DefaultDir, "Directory of the journal database (:memory: keeps it in memory)")
}

// Init opens the database.
func (a *Action) Init(_ context.Context, v *schema.Values) error {
	return a.Open(v.String(OptDir))
}

// Open opens the database at dir, or in memory for MemoryDir.
func (a *Action) Open(dir string) error {
	opts := badger.DefaultOptions(dir)
	if dir == MemoryDir {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "open journal %s", dir)
	}

	a.mu.Lock()
	a.db = db
	a.mu.Unlock()

	a.logger.Info("journal opened", "dir", dir)
	return nil
}

// Handle upserts the record for ev.Path.
func (a *Action) Handle(_ context.Context, ev domain.FileEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return errors.Internal("journal used before Init")
	}

	key := []byte(keyPrefix + ev.Path)
	return a.db.Update(func(txn *badger.Txn) error {
		seen := int64(0)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				seen = gjson.GetBytes(val, "seen").Int()
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("read %s: %w", key, err)
		}

		doc, err := Document(ev, seen+1)
		if err != nil {
			return err
		}
		return txn.Set(key, doc)
	})
}

// Document renders the stored record for ev.
func Document(ev domain.FileEvent, seen int64) ([]byte, error) {
	fields := []struct {
		path  string
		value any
	}{
		{"event_id", ev.ID},
		{"path", ev.Path},
		{"name", ev.Name},
		{"digest", ev.Digest},
		{"size", ev.File.Size},
		{"modified", ev.File.ModifiedUnix()},
		{"host", ev.Machine.Hostname},
		{"ip", ev.Machine.IP},
		{"detected_at", ev.DetectedAt.UTC().Format(time.RFC3339Nano)},
		{"seen", seen},
	}

	doc := []byte(`{}`)
	for _, f := range fields {
		var err error
		if doc, err = sjson.SetBytes(doc, f.path, f.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", f.path, err)
		}
	}
	return doc, nil
}

// Lookup returns the record for path.
func (a *Action) Lookup(path string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.Internal("journal used before Init")
	}

	var out []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + path))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFoundf("no journal entry for %s", path)
	}
	return out, err
}

// Count returns the number of distinct paths recorded.
func (a *Action) Count() (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return 0, errors.Internal("journal used before Init")
	}

	n := 0
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (a *Action) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
