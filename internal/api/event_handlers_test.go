package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/sse"
)

// readEvent reads one text/event-stream frame.
func readEvent(t *testing.T, r *bufio.Reader) (typ, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return typ, data
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEvents_StreamsDispatches(t *testing.T) {
	m := sse.NewManager(discardLogger)
	m.Start(context.Background())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	srv := httptest.NewServer(NewServer(Config{Rate: 1000}, &Services{Events: m}, discardLogger))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	typ, data := readEvent(t, r)
	assert.Equal(t, "connected", typ)
	assert.Contains(t, data, "client_id")
	assert.Equal(t, 1, m.ClientCount())

	require.NoError(t, m.Record(ctx, &dispatch.Report{
		DispatchID: "dsp-1",
		Path:       "/in/report1.txt",
		Outcomes:   []dispatch.Outcome{{Action: "log"}},
	}))

	typ, data = readEvent(t, r)
	assert.Equal(t, string(sse.EventDispatchCompleted), typ)
	assert.Contains(t, data, `"dispatch_id":"dsp-1"`)
	assert.Contains(t, data, `"status":"ok"`)
}

func TestEvents_ClosedOnShutdown(t *testing.T) {
	m := sse.NewManager(discardLogger)
	m.Start(context.Background())

	s := NewServer(Config{Addr: "127.0.0.1:0", Rate: 1000}, &Services{Events: m}, discardLogger)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	typ, _ := readEvent(t, r)
	require.Equal(t, "connected", typ)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, m.ClientCount())
	require.NoError(t, m.Shutdown(context.Background()))
}
