// Package dispatch turns a created file into a FileEvent and hands it to
// every loaded action.
//
// Failures are contained at two levels. A file that cannot be read (or
// whose host metadata cannot be collected) is logged and dropped. An action
// that returns an error or panics is logged and the remaining actions still
// run: N actions always means N attempts.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/id"
	"github.com/dropwatch/dropwatch/internal/logger"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// Dispatcher is the dispatch loop body. It is invoked by the event source
// one path at a time.
type Dispatcher struct {
	actions  []plugin.Action
	loader   FileLoader
	probe    MachineProbe
	policy   Policy
	recorder Recorder
	stats    *Stats
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets the execution policy. The default is Sequential.
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithProbe sets the machine metadata source.
func WithProbe(p MachineProbe) Option {
	return func(d *Dispatcher) { d.probe = p }
}

// WithRecorder sets where reports are persisted.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithAllowBinary accepts content that is not valid UTF-8.
func WithAllowBinary(allow bool) Option {
	return func(d *Dispatcher) { d.loader.AllowBinary = allow }
}

// WithStats shares counters with the caller.
func WithStats(s *Stats) Option {
	return func(d *Dispatcher) { d.stats = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher for actions. The list is copied and never
// changes afterwards.
func New(actions []plugin.Action, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		actions:  append([]plugin.Action(nil), actions...),
		probe:    NewHostProbe(),
		policy:   Sequential{},
		recorder: nopRecorder{},
		stats:    NewStats(),
		logger:   logger.Discard().Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.KeyComponent, "dispatch")
	return d
}

// Actions returns the number of actions.
func (d *Dispatcher) Actions() int {
	return len(d.actions)
}

// Stats returns the live counters.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// OnMatch dispatches path and logs the result. Its signature matches the
// event source callback.
func (d *Dispatcher) OnMatch(ctx context.Context, path string) {
	report, err := d.Dispatch(ctx, path)
	if err != nil {
		d.logger.Error("dropping event",
			logger.KeyPath, path,
			logger.KeyDispatch, report.DispatchID,
			logger.KeyError, err,
		)
		return
	}

	d.logger.Info("dispatched",
		logger.KeyPath, path,
		logger.KeyDispatch, report.DispatchID,
		"actions", len(report.Outcomes),
		"failed", report.Failed(),
		"duration", report.Duration,
	)
}

// Dispatch loads path, builds the event and runs every action. The returned
// report is never nil. A non-nil error means the event was dropped before
// any action ran.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) (*Report, error) {
	report := &Report{
		DispatchID: id.Dispatch(),
		Path:       path,
		Started:    d.now(),
	}
	defer func() {
		report.Duration = d.now().Sub(report.Started)
		d.stats.observe(report)
		if err := d.recorder.Record(ctx, report); err != nil {
			d.logger.Warn("failed to record dispatch",
				logger.KeyDispatch, report.DispatchID,
				logger.KeyError, err,
			)
		}
	}()

	ev, err := d.buildEvent(ctx, path, report.Started)
	if err != nil {
		report.Err = err
		return report, err
	}
	report.Event = ev

	report.Outcomes = d.policy.Run(ctx, d.actions, func(ctx context.Context, a plugin.Action) Outcome {
		return d.invoke(ctx, a, ev)
	})

	log := d.logger.With(logger.KeyPath, path, logger.KeyDispatch, report.DispatchID)
	for _, o := range report.Outcomes {
		if o.OK() {
			continue
		}
		log.Error("action failed",
			logger.KeyAction, o.Action,
			"panicked", o.Panicked,
			"timed_out", o.TimedOut,
			logger.KeyError, o.Err,
		)
	}

	return report, nil
}

// buildEvent reads the file and collects host metadata.
func (d *Dispatcher) buildEvent(ctx context.Context, path string, at time.Time) (domain.FileEvent, error) {
	content, meta, err := d.loader.Load(path)
	if err != nil {
		return domain.FileEvent{}, err
	}

	machine, err := d.probe.Probe(ctx)
	if err != nil {
		return domain.FileEvent{}, errors.Wrap(err, errors.CodeIO, "collect machine metadata")
	}

	return domain.FileEvent{
		ID:         id.Event(),
		Path:       path,
		Name:       filepath.Base(path),
		Content:    content,
		Digest:     Digest(content),
		File:       meta,
		Machine:    machine,
		DetectedAt: at,
	}, nil
}

// invoke runs one action, converting a panic into a failed outcome.
func (d *Dispatcher) invoke(ctx context.Context, a plugin.Action, ev domain.FileEvent) (o Outcome) {
	o.Action = a.Name()
	start := d.now()

	defer func() {
		o.Duration = d.now().Sub(start)
		if r := recover(); r != nil {
			o.Panicked = true
			o.Err = errors.Internalf("action %s panicked: %v", o.Action, r)
			d.logger.Debug("action panic stack", logger.KeyAction, o.Action, "stack", string(debug.Stack()))
		}
	}()

	if err := a.Handle(ctx, ev); err != nil {
		o.Err = wrapActionError(o.Action, err)
	}
	return o
}

func wrapActionError(name string, err error) error {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return errors.Wrap(err, errors.CodeAction, fmt.Sprintf("action %s", name))
}
