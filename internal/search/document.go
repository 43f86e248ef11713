// Package search provides full-text search over dispatched files using Bleve.
// Each file path is one document; a newer event for the same path replaces
// the older document.
package search

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dropwatch/dropwatch/internal/domain"
)

// FileDocument is the document structure for the Bleve index.
type FileDocument struct {
	ID         string    `json:"id"` // the file path
	EventID    string    `json:"event_id"`
	Name       string    `json:"name"`
	Ext        string    `json:"ext"`
	Content    string    `json:"content"`
	Digest     string    `json:"digest"`
	Host       string    `json:"host"`
	Size       uint64    `json:"size"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewFileDocument builds the document for ev.
func NewFileDocument(ev domain.FileEvent) *FileDocument {
	return &FileDocument{
		ID:         ev.Path,
		EventID:    ev.ID,
		Name:       ev.Name,
		Ext:        strings.TrimPrefix(strings.ToLower(filepath.Ext(ev.Name)), "."),
		Content:    ev.Text(),
		Digest:     ev.Digest,
		Host:       ev.Machine.Hostname,
		Size:       ev.File.Size,
		DetectedAt: ev.DetectedAt,
	}
}

// ToMap converts the document to the field names used by the mapping.
func (d *FileDocument) ToMap() map[string]any {
	return map[string]any{
		"type":        docType,
		"path":        d.ID,
		"event_id":    d.EventID,
		"name":        d.Name,
		"ext":         d.Ext,
		"content":     d.Content,
		"digest":      d.Digest,
		"host":        d.Host,
		"size":        float64(d.Size),
		"detected_at": d.DetectedAt,
	}
}
