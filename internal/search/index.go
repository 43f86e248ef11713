package search

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/dropwatch/dropwatch/internal/domain"
)

// MemoryPath selects an in-memory index.
const MemoryPath = ":memory:"

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch on open triggers a rebuild.
const mappingVersion = "1"

// Index wraps a Bleve index of dispatched files.
//
// All public methods are safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the index.
type Options struct {
	Path   string       // index directory, or MemoryPath
	Logger *slog.Logger // uses discard if nil
}

// Open creates or opens an index. An existing index with an outdated mapping
// or that fails to open is removed and recreated.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Path == "" || opts.Path == MemoryPath {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: index, path: MemoryPath, logger: logger}, nil
	}

	versionPath := filepath.Join(filepath.Dir(opts.Path), filepath.Base(opts.Path)+".version")

	var index bleve.Index
	needsRebuild := false

	if _, statErr := os.Stat(opts.Path); statErr == nil {
		existing, readErr := os.ReadFile(versionPath) //#nosec G304 -- derived from configured index path
		switch {
		case readErr != nil || string(existing) != mappingVersion:
			logger.Info("index mapping version changed, will rebuild", "new_version", mappingVersion)
			needsRebuild = true
		default:
			var err error
			index, err = bleve.Open(opts.Path)
			if err != nil {
				logger.Warn("failed to open existing index, will recreate", "path", opts.Path, "error", err)
				needsRebuild = true
			}
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(opts.Path); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
	}

	if index == nil {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		var err error
		index, err = bleve.New(opts.Path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil { //nolint:gosec // not sensitive
			logger.Warn("failed to write index version file", "error", err)
		}
		logger.Info("created new index", "path", opts.Path, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing index", "path", opts.Path)
	}

	return &Index{index: index, path: opts.Path, logger: logger}, nil
}

// Path returns the index location, MemoryPath for memory indexes.
func (s *Index) Path() string {
	return s.path
}

// Close closes the index and releases resources.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexEvent indexes ev, replacing any document for the same path.
func (s *Index) IndexEvent(ev domain.FileEvent) error {
	return s.IndexDocument(NewFileDocument(ev))
}

// IndexDocument indexes a single document.
func (s *Index) IndexDocument(doc *FileDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// DeleteDocument removes a path from the index.
func (s *Index) DeleteDocument(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(path)
}

// DocumentCount returns the number of indexed files.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
