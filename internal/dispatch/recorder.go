package dispatch

import (
	"context"
	"errors"

	"github.com/dropwatch/dropwatch/internal/store"
)

// Recorder persists dispatch reports.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *Report) error { return nil }

// Recorders fans a report out to every recorder in order. A failing
// recorder does not stop the ones after it.
func Recorders(rs ...Recorder) Recorder {
	switch len(rs) {
	case 0:
		return nopRecorder{}
	case 1:
		return rs[0]
	}
	return multiRecorder(rs)
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, r *Report) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditRecorder writes reports to an audit store.
type AuditRecorder struct {
	Store store.AuditStore
}

// Record converts r and stores it.
func (a AuditRecorder) Record(ctx context.Context, r *Report) error {
	return a.Store.Record(ctx, r.AuditRecord())
}

// AuditRecord converts the report into its persisted form.
func (r *Report) AuditRecord() *store.DispatchRecord {
	rec := &store.DispatchRecord{
		ID:        r.DispatchID,
		Path:      r.Path,
		StartedAt: r.Started,
		Duration:  r.Duration,
		Attempts:  make([]store.AttemptRecord, 0, len(r.Outcomes)),
	}

	if r.Dropped() {
		rec.Status = store.StatusDropped
		rec.Error = r.Err.Error()
		return rec
	}

	rec.EventID = r.Event.ID
	rec.Digest = r.Event.Digest
	rec.Size = r.Event.File.Size
	rec.Status = store.StatusOK
	if r.Failed() > 0 {
		rec.Status = store.StatusPartial
	}

	for _, o := range r.Outcomes {
		a := store.AttemptRecord{
			Action:   o.Action,
			OK:       o.OK(),
			Panicked: o.Panicked,
			TimedOut: o.TimedOut,
			Duration: o.Duration,
		}
		if o.Err != nil {
			a.Error = o.Err.Error()
		}
		rec.Attempts = append(rec.Attempts, a)
	}
	return rec
}
