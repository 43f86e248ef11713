package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileEvent_Text(t *testing.T) {
	ev := FileEvent{Content: []byte("hello\nworld")}
	assert.Equal(t, "hello\nworld", ev.Text())
}

func TestFileMetadata_ModifiedUnix(t *testing.T) {
	meta := FileMetadata{ModTime: time.Unix(1700000000, 500_000_000)}
	assert.InDelta(t, 1700000000.5, meta.ModifiedUnix(), 1e-6)
}
