package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/actions/journal"
	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/search"
	"github.com/dropwatch/dropwatch/internal/store"
	"github.com/dropwatch/dropwatch/internal/store/sqlite"
)

type testEnvelope[T any] struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	assert.Equal(t, EnvelopeVersion, env.V)
	return env
}

type okAction struct{ name string }

func (a okAction) Name() string                                  { return a.name }
func (a okAction) Handle(context.Context, domain.FileEvent) error { return nil }

type failAction struct{ name string }

func (a failAction) Name() string { return a.name }
func (a failAction) Handle(context.Context, domain.FileEvent) error {
	return os.ErrPermission
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testServer holds a server with every optional service wired.
type testServer struct {
	*Server
	api      humatest.TestAPI
	audit    *sqlite.Store
	index    *search.Index
	journal  *journal.Action
	dispatch *dispatch.Dispatcher
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	audit, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"), discardLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	idx, err := search.Open(search.Options{Path: search.MemoryPath, Logger: discardLogger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	jrn := journal.New("journal", discardLogger)
	require.NoError(t, jrn.Open(journal.MemoryDir))
	t.Cleanup(func() { _ = jrn.Close() })

	acts := []plugin.Action{okAction{name: "log"}, failAction{name: "kafka"}}
	set := plugin.NewSet(
		plugin.Descriptor{Name: "log", Kind: plugin.KindBuiltin, Source: "/plugins/10-log.json", Action: acts[0]},
		plugin.Descriptor{Name: "kafka", Kind: plugin.KindBuiltin, Source: "/plugins/20-kafka.json", Action: acts[1]},
		plugin.Descriptor{Name: "opts", Kind: plugin.KindScript, Source: "/plugins/30-opts.lua"},
	)

	stats := dispatch.NewStats()
	d := dispatch.New(acts,
		dispatch.WithProbe(dispatch.StaticProbe{Hostname: "box", IP: "10.0.0.7", OS: "linux"}),
		dispatch.WithStats(stats),
		dispatch.WithRecorder(dispatch.AuditRecorder{Store: audit}),
		dispatch.WithLogger(discardLogger),
	)

	s := NewServer(Config{Rate: 1000}, &Services{
		Plugins: set,
		Stats:   stats,
		Audit:   audit,
		Search:  idx,
		Journal: jrn,
	}, discardLogger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	return &testServer{
		Server:   s,
		api:      humatest.Wrap(t, s.API()),
		audit:    audit,
		index:    idx,
		journal:  jrn,
		dispatch: d,
	}
}

// dispatchFile writes a file and runs it through the dispatcher, the index
// and the journal.
func (ts *testServer) dispatchFile(t *testing.T, name, content string) *dispatch.Report {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	report, err := ts.dispatch.Dispatch(context.Background(), path)
	require.NoError(t, err)

	ev := domain.FileEvent{ID: "ev-" + name, Path: path, Name: name, Content: []byte(content), Machine: domain.MachineMetadata{Hostname: "box"}}
	require.NoError(t, ts.index.IndexEvent(ev))
	require.NoError(t, ts.journal.Handle(context.Background(), ev))
	return report
}

func TestHealth_AllComponents(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[HealthResponse](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, 3, env.Data.Plugins)
	assert.Equal(t, statusHealthy, env.Data.Components["audit"].Status)
	assert.Equal(t, statusHealthy, env.Data.Components["journal"].Status)
	// Nothing indexed yet.
	assert.Equal(t, statusDegraded, env.Data.Components["search"].Status)
	assert.Equal(t, statusDegraded, env.Data.Status)

	ts.dispatchFile(t, "a.txt", "hello")

	env = decode[HealthResponse](t, ts.api.Get("/health"))
	assert.Equal(t, statusHealthy, env.Data.Status)
}

func TestHealth_DisabledComponents(t *testing.T) {
	s := NewServer(Config{}, nil, discardLogger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	api := humatest.Wrap(t, s.API())

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp)
	assert.Equal(t, statusHealthy, env.Data.Status)
	assert.Equal(t, 0, env.Data.Plugins)
	for _, name := range []string{"audit", "search", "journal"} {
		assert.Equal(t, statusDisabled, env.Data.Components[name].Status, name)
	}
}

func TestListPlugins_InDispatchOrder(t *testing.T) {
	ts := setupTestServer(t)
	ts.dispatchFile(t, "a.txt", "hello")

	resp := ts.api.Get("/api/v1/plugins")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[struct {
		Plugins []PluginResponse `json:"plugins"`
	}](t, resp)
	require.Len(t, env.Data.Plugins, 3)

	names := make([]string, 0, 3)
	for _, p := range env.Data.Plugins {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"log", "kafka", "opts"}, names)

	kafka := env.Data.Plugins[1]
	assert.Equal(t, 1, kafka.Position)
	assert.True(t, kafka.Action)
	require.NotNil(t, kafka.Stats)
	assert.Equal(t, uint64(1), kafka.Stats.Attempts)
	assert.Equal(t, uint64(1), kafka.Stats.Failures)

	opts := env.Data.Plugins[2]
	assert.Equal(t, plugin.KindScript, opts.Kind)
	assert.False(t, opts.Action)
	assert.Nil(t, opts.Stats)
}

func TestGetPlugin(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/plugins/log")
	require.Equal(t, http.StatusOK, resp.Code)
	env := decode[PluginResponse](t, resp)
	assert.Equal(t, "/plugins/10-log.json", env.Data.Source)

	resp = ts.api.Get("/api/v1/plugins/kafka")
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[PluginResponse](t, resp)
	require.NotNil(t, env.Data.Stats)
	assert.Equal(t, uint64(1), env.Data.Stats.Attempts)
	assert.Equal(t, uint64(1), env.Data.Stats.Failures)

	resp = ts.api.Get("/api/v1/plugins/opts")
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[PluginResponse](t, resp)
	assert.Nil(t, env.Data.Stats)

	resp = ts.api.Get("/api/v1/plugins/nope")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	env = decode[PluginResponse](t, resp)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, `"nope"`)
}

func TestStats(t *testing.T) {
	ts := setupTestServer(t)
	ts.dispatchFile(t, "a.txt", "one")
	ts.dispatchFile(t, "b.txt", "two")

	resp := ts.api.Get("/api/v1/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[dispatch.Snapshot](t, resp)
	assert.Equal(t, uint64(2), env.Data.Dispatched)
	assert.Equal(t, uint64(4), env.Data.Attempts)
	assert.Equal(t, uint64(2), env.Data.Failures)
	assert.NotNil(t, env.Data.LastDispatch)
}

func TestDispatches_ListAndGet(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.dispatchFile(t, "a.txt", "one")
	second := ts.dispatchFile(t, "b.txt", "two")

	resp := ts.api.Get("/api/v1/dispatches?limit=1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	page := decode[store.PaginatedResult[store.DispatchRecord]](t, resp)
	require.Len(t, page.Data.Items, 1)
	assert.Equal(t, second.DispatchID, page.Data.Items[0].ID)
	assert.True(t, page.Data.HasMore)
	require.NotEmpty(t, page.Data.NextCursor)

	resp = ts.api.Get("/api/v1/dispatches?limit=1&cursor=" + page.Data.NextCursor)
	require.Equal(t, http.StatusOK, resp.Code)
	page = decode[store.PaginatedResult[store.DispatchRecord]](t, resp)
	require.Len(t, page.Data.Items, 1)
	assert.Equal(t, first.DispatchID, page.Data.Items[0].ID)
	assert.False(t, page.Data.HasMore)

	resp = ts.api.Get("/api/v1/dispatches/" + first.DispatchID)
	require.Equal(t, http.StatusOK, resp.Code)
	rec := decode[store.DispatchRecord](t, resp)
	assert.Equal(t, store.StatusPartial, rec.Data.Status)
	require.Len(t, rec.Data.Attempts, 2)
	assert.Equal(t, "log", rec.Data.Attempts[0].Action)
	assert.False(t, rec.Data.Attempts[1].OK)
}

func TestDispatches_Errors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown id", "/api/v1/dispatches/dsp-missing", http.StatusNotFound},
		{"bad cursor", "/api/v1/dispatches?cursor=%21%21", http.StatusBadRequest},
		{"negative limit", "/api/v1/dispatches?limit=-1", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Get(tt.path)
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
		})
	}
}

func TestOptionalRoutes_Disabled(t *testing.T) {
	s := NewServer(Config{}, nil, discardLogger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	api := humatest.Wrap(t, s.API())

	for _, path := range []string{
		"/api/v1/dispatches",
		"/api/v1/dispatches/dsp-1",
		"/api/v1/search?q=x",
		"/api/v1/journal?path=/in/a.txt",
		"/api/v1/events",
	} {
		resp := api.Get(path)
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
		env := decode[any](t, resp)
		assert.Contains(t, env.Error, "disabled", path)
	}
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t)
	ts.dispatchFile(t, "report.txt", "quarterly revenue grew")
	ts.dispatchFile(t, "notes.md", "nothing to see")

	resp := ts.api.Get("/api/v1/search?q=revenue")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[search.Result](t, resp)
	require.Equal(t, uint64(1), env.Data.Total)
	assert.Equal(t, "report.txt", env.Data.Hits[0].Name)

	resp = ts.api.Get("/api/v1/search?ext=md")
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[search.Result](t, resp)
	require.Equal(t, uint64(1), env.Data.Total)
	assert.Equal(t, "notes.md", env.Data.Hits[0].Name)

	resp = ts.api.Get("/api/v1/search?sort=random")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestJournal(t *testing.T) {
	ts := setupTestServer(t)
	report := ts.dispatchFile(t, "a.txt", "hello")

	resp := ts.api.Get("/api/v1/journal?path=" + report.Path)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[map[string]any](t, resp)
	assert.Equal(t, report.Path, env.Data["path"])

	resp = ts.api.Get("/api/v1/journal?path=/nowhere/x.txt")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/api/v1/journal")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestRateLimit(t *testing.T) {
	s := NewServer(Config{Rate: 1, Burst: 1}, nil, discardLogger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, get("10.0.0.1").Code)

	limited := get("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	env := decode[any](t, limited)
	assert.False(t, env.Success)

	// Other clients have their own budget.
	assert.Equal(t, http.StatusOK, get("10.0.0.2").Code)
}

func TestCORS(t *testing.T) {
	s := NewServer(Config{Origins: []string{"https://dash.example"}}, nil, discardLogger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0", MaxConns: 2}, nil, discardLogger)
	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	addr := s.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Empty(t, s.Addr())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.9:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.6"}, "10.0.0.9:1", "203.0.113.6"},
		{"remote addr", nil, "198.51.100.7:4242", "198.51.100.7"},
		{"ipv6 remote", nil, "[2001:db8::1]:80", "2001:db8::1"},
		{"no port", nil, "198.51.100.8", "198.51.100.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
