package watcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report1.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	ev := newEvent(path, info)

	assert.Equal(t, path, ev.Path)
	assert.Equal(t, "report1.txt", ev.Name)
	assert.Equal(t, int64(5), ev.Size)
	assert.Equal(t, info.ModTime(), ev.ModTime)
	if runtime.GOOS != "windows" {
		assert.NotZero(t, ev.Inode)
	}
}

func TestNewEvent_NoInfo(t *testing.T) {
	ev := newEvent("/in/x.txt", nil)
	assert.Equal(t, "x.txt", ev.Name)
	assert.Zero(t, ev.Size)
}
