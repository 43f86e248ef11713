// Package domain holds the value types shared by the watcher, the dispatcher and plugins.
package domain

import (
	"os"
	"time"
)

// FileEvent is one qualifying file creation, ready to be handed to actions.
// It is built fresh per dispatch and never retained by the core.
type FileEvent struct {
	ID         string          `json:"id"`
	Path       string          `json:"file_path"`
	Name       string          `json:"file_name"`
	Content    []byte          `json:"-"`
	Digest     string          `json:"digest"` // blake2b-256, hex
	File       FileMetadata    `json:"file_metadata"`
	Machine    MachineMetadata `json:"machine_metadata"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Text returns the file content as a string.
func (e FileEvent) Text() string {
	return string(e.Content)
}

// FileMetadata is the filesystem metadata captured at dispatch time.
type FileMetadata struct {
	Size    uint64      `json:"size"`
	ModTime time.Time   `json:"modified"`
	Mode    os.FileMode `json:"mode"`
}

// ModifiedUnix returns the modification time as fractional unix seconds.
func (m FileMetadata) ModifiedUnix() float64 {
	return float64(m.ModTime.UnixNano()) / float64(time.Second)
}

// MachineMetadata describes the host that observed the file.
type MachineMetadata struct {
	Hostname      string `json:"hostname"`
	IP            string `json:"ip"`
	OS            string `json:"os,omitempty"`
	Platform      string `json:"platform,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
}
