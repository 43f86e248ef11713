package watcher

import (
	"os"
	"path/filepath"
	"time"
)

// Event is a file creation reported by a backend once the file is ready.
type Event struct {
	// Path is the full path of the created file.
	Path string

	// Name is the base name, which is what the pattern is matched against.
	Name string

	// Inode is the file's inode number, 0 where the platform has none.
	Inode uint64

	Size    int64
	ModTime time.Time
}

// newEvent builds an Event from a path and its stat result.
func newEvent(path string, info os.FileInfo) Event {
	ev := Event{
		Path: path,
		Name: filepath.Base(path),
	}
	if info != nil {
		ev.Inode = getInode(info.Sys())
		ev.Size = info.Size()
		ev.ModTime = info.ModTime()
	}
	return ev
}
