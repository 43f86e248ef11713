package lua

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func loadScript(t *testing.T, name, src string) *Script {
	t.Helper()
	s, err := Load(writeScript(t, name, src), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newBuilder() *schema.Builder {
	b := schema.New("lua-test")
	b.SetEnvLookup(func(string) (string, bool) { return "", false })
	return b
}

func sampleEvent() domain.FileEvent {
	return domain.FileEvent{
		ID:      "evt-1",
		Path:    "/in/report1.txt",
		Name:    "report1.txt",
		Content: []byte("hello"),
		Digest:  "abc",
		File: domain.FileMetadata{
			Size:    5,
			ModTime: time.Unix(1700000000, 500000000),
		},
		Machine: domain.MachineMetadata{Hostname: "box", IP: "10.0.0.7"},
	}
}

const fullScript = `
function register_arguments(schema)
  schema:string("notify-channel", "#drops", "Channel to notify")
  schema.int("notify-retries", 2, "Retries")
  schema:bool("notify-loud", false)
  schema:float("notify-ratio", 0.5)
  schema:duration("notify-wait", "2s")
  schema:required("notify-channel")
end

seen = {}

function handle(event, options)
  seen.path = event.path
  seen.name = event.name
  seen.content = event.content
  seen.size = event.size
  seen.modified = event.modified
  seen.hostname = event.hostname
  seen.ip = event.ip
  seen.channel = options["notify-channel"]
  seen.retries = options["notify-retries"]
  seen.loud = options["notify-loud"]
  seen.wait = options["notify-wait"]
  log("handled " .. event.name)
end
`

func TestLoad_NameAndFunctions(t *testing.T) {
	s := loadScript(t, "notify.lua", fullScript)

	assert.Equal(t, "notify", s.Name())
	assert.True(t, s.HasArguments())
	assert.True(t, s.HasHandler())
	assert.Equal(t, "notify.lua", filepath.Base(s.Path()))
}

func TestLoad_OptionalFunctions(t *testing.T) {
	s := loadScript(t, "opts.lua", `function register_arguments(schema) schema:string("x", "") end`)
	assert.True(t, s.HasArguments())
	assert.False(t, s.HasHandler())
	assert.NoError(t, s.Handle(context.Background(), sampleEvent()))

	empty := loadScript(t, "empty.lua", `-- nothing here`)
	assert.False(t, empty.HasArguments())
	assert.False(t, empty.HasHandler())
	assert.NoError(t, empty.RegisterArguments(newBuilder().Scope("empty")))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `function handle(`},
		{"runtime error", `error("boom at load")`},
		{"handle not a function", `handle = 42`},
		{"register_arguments not a function", `register_arguments = "nope"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeScript(t, "bad.lua", tt.src), discardLogger())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrPluginLoad))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "gone.lua"), discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPluginLoad))
}

func TestLoad_Sandbox(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"io library", `io.open("/etc/passwd")`},
		{"os library", `os.execute("true")`},
		{"dofile", `dofile("/tmp/x.lua")`},
		{"loadstring", `loadstring("return 1")()`},
		{"require", `require("os")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeScript(t, "escape.lua", tt.src), discardLogger())
			assert.Error(t, err)
		})
	}
}

func TestLoad_SafeLibrariesAvailable(t *testing.T) {
	s := loadScript(t, "libs.lua", `
x = string.upper("a") .. table.concat({"b", "c"}) .. tostring(math.floor(1.5))
`)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, "Abc1", s.L.GetGlobal("x").String())
}

func TestRegisterArguments_AndHandle(t *testing.T) {
	s := loadScript(t, "notify.lua", fullScript)
	b := newBuilder()
	require.NoError(t, s.RegisterArguments(b.Scope(s.Name())))

	vals, err := b.Parse([]string{"--directory", "/in", "--notify-retries", "4", "--notify-loud"})
	require.NoError(t, err)
	assert.Equal(t, "#drops", vals.String("notify-channel"))
	assert.Equal(t, 2*time.Second, vals.Duration("notify-wait"))
	assert.Equal(t, "notify", vals.Owner("notify-channel"))

	require.NoError(t, s.Init(context.Background(), vals))
	require.NoError(t, s.Handle(context.Background(), sampleEvent()))

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.L.GetGlobal("seen")
	field := func(k string) string { return s.L.GetField(seen, k).String() }
	assert.Equal(t, "/in/report1.txt", field("path"))
	assert.Equal(t, "report1.txt", field("name"))
	assert.Equal(t, "hello", field("content"))
	assert.Equal(t, "5", field("size"))
	modified, ok := s.L.GetField(seen, "modified").(lua.LNumber)
	require.True(t, ok)
	assert.InDelta(t, 1700000000.5, float64(modified), 1e-6)
	assert.Equal(t, "box", field("hostname"))
	assert.Equal(t, "10.0.0.7", field("ip"))
	assert.Equal(t, "#drops", field("channel"))
	assert.Equal(t, "4", field("retries"))
	assert.Equal(t, "true", field("loud"))
	assert.Equal(t, "2", field("wait"))
}

func TestRegisterArguments_CollisionKeepsCode(t *testing.T) {
	s := loadScript(t, "rogue.lua", `
function register_arguments(schema)
  schema:string("pattern", "x", "shadows the base option")
end
`)
	err := s.RegisterArguments(newBuilder().Scope(s.Name()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOptionCollision))
	assert.Contains(t, err.Error(), "rogue")
}

func TestRegisterArguments_ScriptError(t *testing.T) {
	s := loadScript(t, "broken.lua", `function register_arguments(schema) error("nope") end`)
	err := s.RegisterArguments(newBuilder().Scope(s.Name()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPluginLoad))
}

func TestRegisterArguments_BadDuration(t *testing.T) {
	s := loadScript(t, "dur.lua", `function register_arguments(schema) schema:duration("d", "soon") end`)
	err := s.RegisterArguments(newBuilder().Scope(s.Name()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"raises", `function handle(e, o) error("disk full") end`, "disk full"},
		{"returns false", `function handle(e, o) return false, "rejected" end`, "rejected"},
		{"returns nil and message", `function handle(e, o) return nil, "no route" end`, "no route"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadScript(t, "fail.lua", tt.src)
			err := s.Handle(context.Background(), sampleEvent())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrAction))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHandle_ReturnTrueSucceeds(t *testing.T) {
	s := loadScript(t, "ok.lua", `function handle(e, o) return true end`)
	assert.NoError(t, s.Handle(context.Background(), sampleEvent()))
}

func TestHandle_ContextCancelsRunawayScript(t *testing.T) {
	s := loadScript(t, "spin.lua", `function handle(e, o) while true do end end`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Handle(ctx, sampleEvent())
	assert.Error(t, err)
}

func TestHandle_LogWritesThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	path := writeScript(t, "chatty.lua", `function handle(e, o) log("saw " .. e.name, "warn") end`)
	s, err := Load(path, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck // test cleanup

	require.NoError(t, s.Handle(context.Background(), sampleEvent()))
	assert.Contains(t, buf.String(), "saw report1.txt")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "plugin=chatty")
}

func TestClose(t *testing.T) {
	s := loadScript(t, "c.lua", `function handle(e, o) end`)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Handle(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrStateClosed)
}
