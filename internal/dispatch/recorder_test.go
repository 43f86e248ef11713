package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/store"
	"github.com/dropwatch/dropwatch/internal/store/sqlite"
)

func TestReport_AuditRecord(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		report     Report
		wantStatus string
		wantError  string
		attempts   int
	}{
		{
			name: "all actions succeed",
			report: Report{
				DispatchID: "dsp-ok",
				Event:      domain.FileEvent{ID: "ev-1", Digest: "d1", File: domain.FileMetadata{Size: 5}},
				Outcomes:   []Outcome{{Action: "log"}, {Action: "kafka"}},
			},
			wantStatus: store.StatusOK,
			attempts:   2,
		},
		{
			name: "one action fails",
			report: Report{
				DispatchID: "dsp-partial",
				Event:      domain.FileEvent{ID: "ev-2"},
				Outcomes:   []Outcome{{Action: "log"}, {Action: "kafka", Err: errors.New("broker down"), TimedOut: true}},
			},
			wantStatus: store.StatusPartial,
			attempts:   2,
		},
		{
			name: "no actions",
			report: Report{
				DispatchID: "dsp-none",
				Event:      domain.FileEvent{ID: "ev-3"},
			},
			wantStatus: store.StatusOK,
		},
		{
			name: "dropped event",
			report: Report{
				DispatchID: "dsp-dropped",
				Err:        errors.New("not a regular file"),
			},
			wantStatus: store.StatusDropped,
			wantError:  "not a regular file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.report.Path = "/in/a.txt"
			tt.report.Started = started
			tt.report.Duration = time.Millisecond

			rec := tt.report.AuditRecord()
			assert.Equal(t, tt.report.DispatchID, rec.ID)
			assert.Equal(t, "/in/a.txt", rec.Path)
			assert.Equal(t, started, rec.StartedAt)
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, tt.wantError, rec.Error)
			assert.Len(t, rec.Attempts, tt.attempts)
		})
	}
}

func TestReport_AuditRecordAttempts(t *testing.T) {
	r := &Report{
		DispatchID: "dsp-1",
		Event:      domain.FileEvent{ID: "ev-1", Digest: "abc", File: domain.FileMetadata{Size: 12}},
		Outcomes: []Outcome{
			{Action: "a", Duration: time.Millisecond},
			{Action: "b", Err: errors.New("boom"), Panicked: true},
		},
	}

	rec := r.AuditRecord()
	assert.Equal(t, "ev-1", rec.EventID)
	assert.Equal(t, "abc", rec.Digest)
	assert.Equal(t, uint64(12), rec.Size)
	require.Len(t, rec.Attempts, 2)
	assert.Equal(t, store.AttemptRecord{Action: "a", OK: true, Duration: time.Millisecond}, rec.Attempts[0])
	assert.Equal(t, store.AttemptRecord{Action: "b", Error: "boom", Panicked: true}, rec.Attempts[1])
}

func TestAuditRecorder_PersistsDispatches(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d := New(actions(&fakeAction{name: "ok"}, &fakeAction{name: "bad", err: errors.New("nope")}),
		WithProbe(testMachine),
		WithRecorder(AuditRecorder{Store: db}),
	)

	ctx := context.Background()
	report, err := d.Dispatch(ctx, writeFile(t, "report1.txt", "hello"))
	require.NoError(t, err)

	dropped, err := d.Dispatch(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	got, err := db.Get(ctx, report.DispatchID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPartial, got.Status)
	assert.Equal(t, report.Event.ID, got.EventID)
	require.Len(t, got.Attempts, 2)
	assert.True(t, got.Attempts[0].OK)
	assert.False(t, got.Attempts[1].OK)
	assert.Contains(t, got.Attempts[1].Error, "nope")

	gotDropped, err := db.Get(ctx, dropped.DispatchID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDropped, gotDropped.Status)
	assert.NotEmpty(t, gotDropped.Error)

	page, err := db.Recent(ctx, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, dropped.DispatchID, page.Items[0].ID)
}

type countingRecorder struct {
	calls int
	err   error
}

func (c *countingRecorder) Record(context.Context, *Report) error {
	c.calls++
	return c.err
}

func TestRecorders_FanOut(t *testing.T) {
	first := &countingRecorder{err: errors.New("disk full")}
	second := &countingRecorder{}

	err := Recorders(first, second).Record(context.Background(), &Report{DispatchID: "dsp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	assert.NoError(t, Recorders().Record(context.Background(), &Report{}))
	assert.Same(t, second, Recorders(second))
}
