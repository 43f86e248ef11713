package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/errors"
)

// isolate clears the variables the options fall back to.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DIRECTORY", "PATTERN", "PLUGIN_DIR", "ENV_FILE", "AUDIT_DB", "STATUS_ADDR", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func baseArgs(t *testing.T, pluginDir string) []string {
	t.Helper()
	return []string{
		"--plugin-dir", pluginDir,
		"--env-file", filepath.Join(t.TempDir(), "absent.env"),
		"--log-level", "error",
	}
}

func writeManifest(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func TestRun_OptionCollisionFailsBeforeWatching(t *testing.T) {
	isolate(t)
	plugins := t.TempDir()
	writeManifest(t, plugins, "a_kafka.json", `{"name": "kafka", "builtin": "kafka"}`)
	writeManifest(t, plugins, "b_kafka.json", `{"name": "kafka-mirror", "builtin": "kafka"}`)

	target := filepath.Join(t.TempDir(), "inbox")
	args := append(baseArgs(t, plugins), "--directory", target)

	err := run(context.Background(), args)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOptionCollision))
	assert.Contains(t, err.Error(), "kafka-mirror")

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "watch directory must not be created")
}

func TestRun_MissingDirectory(t *testing.T) {
	isolate(t)

	err := run(context.Background(), baseArgs(t, t.TempDir()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingOption))
	assert.Contains(t, err.Error(), "--directory")
}

func TestRun_UnknownBuiltin(t *testing.T) {
	isolate(t)
	plugins := t.TempDir()
	writeManifest(t, plugins, "x.json", `{"builtin": "carrier-pigeon"}`)

	target := filepath.Join(t.TempDir(), "inbox")
	err := run(context.Background(), append(baseArgs(t, plugins), "--directory", target))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPluginLoad))

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_UnknownFlag(t *testing.T) {
	isolate(t)

	err := run(context.Background(), append(baseArgs(t, t.TempDir()), "--directory", t.TempDir(), "--nope"))
	assert.Error(t, err)
}

func TestRun_ZeroActionsWatchesUntilCancelled(t *testing.T) {
	isolate(t)
	target := filepath.Join(t.TempDir(), "inbox")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, append(baseArgs(t, filepath.Join(t.TempDir(), "no-plugins")), "--directory", target))
	}()

	require.Eventually(t, func() bool {
		info, err := os.Stat(target)
		return err == nil && info.IsDir()
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(target, "report1.txt"), []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
