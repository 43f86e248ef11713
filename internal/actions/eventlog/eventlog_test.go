package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/schema"
)

func TestAction_Handle(t *testing.T) {
	var buf bytes.Buffer
	a := New("log", slog.New(slog.NewJSONHandler(&buf, nil)))

	b := schema.New("test")
	b.SetEnvLookup(func(string) (string, bool) { return "", false })
	require.NoError(t, a.RegisterArguments(b.Scope(a.Name())))
	vals, err := b.Parse([]string{"--directory", "/in", "--log-preview", "5"})
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background(), vals))

	ev := domain.FileEvent{
		ID:      "ev-1",
		Path:    "/in/report1.txt",
		Content: []byte("hello, world"),
		Digest:  "abc",
		File:    domain.FileMetadata{Size: 12},
		Machine: domain.MachineMetadata{Hostname: "box", IP: "10.0.0.7"},
	}
	require.NoError(t, a.Handle(context.Background(), ev))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "file event", line["msg"])
	assert.Equal(t, "/in/report1.txt", line["path"])
	assert.Equal(t, "log", line["action"])
	assert.Equal(t, "box", line["host"])
	assert.Equal(t, "hello...", line["preview"])
}

func TestAction_NoPreviewByDefault(t *testing.T) {
	var buf bytes.Buffer
	a := New("log", slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, a.Handle(context.Background(), domain.FileEvent{Path: "/in/a", Content: []byte("secret")}))
	assert.NotContains(t, buf.String(), "secret")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "héllo", Preview([]byte("héllo"), 5))
	assert.Equal(t, "hé...", Preview([]byte("héllo"), 2))
	assert.Equal(t, "", Preview([]byte{0xff, 0xfe}, 5))
}
