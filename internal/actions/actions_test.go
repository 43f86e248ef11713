package actions

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/schema"
)

func TestCatalog_LoadsEveryBuiltinFromManifests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	manifests := map[string]string{
		"10-log.json":     `{"builtin": "log"}`,
		"20-kafka.json":   `{"builtin": "kafka"}`,
		"30-journal.json": `{"name": "history", "builtin": "journal"}`,
		"40-index.json":   `{"builtin": "index"}`,
	}
	for name, body := range manifests {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	set, err := plugin.NewRegistry(Catalog(logger), logger).Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })

	names := make([]string, 0, set.Len())
	for _, d := range set.Descriptors() {
		names = append(names, d.Name)
		assert.Equal(t, plugin.KindBuiltin, d.Kind)
	}
	assert.Equal(t, []string{Log, Kafka, "history", Index}, names)
	assert.Len(t, set.Actions(), 4)

	b := schema.New("test")
	b.SetEnvLookup(func(string) (string, bool) { return "", false })
	require.NoError(t, set.RegisterArguments(b))
	vals, err := b.Parse([]string{
		"--directory", dir,
		"--kafka-endpoint", "localhost:9092",
		"--journal-dir", ":memory:",
		"--index-path", ":memory:",
	})
	require.NoError(t, err)
	assert.Equal(t, "history", vals.Owner("journal-dir"))
	assert.Equal(t, Kafka, vals.Owner("kafka-topic"))

	require.NoError(t, set.Init(context.Background(), vals))
}

func TestCatalog_Names(t *testing.T) {
	c := Catalog(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, []string{Log, Kafka, Journal, Index}, c.Names())
}
