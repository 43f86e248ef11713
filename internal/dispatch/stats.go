package dispatch

import (
	"sync/atomic"
	"time"
)

// Stats counts dispatches since startup. It is safe for concurrent use.
type Stats struct {
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	attempts   atomic.Uint64
	failures   atomic.Uint64
	panics     atomic.Uint64
	timeouts   atomic.Uint64
	last       atomic.Int64 // unix nanoseconds of the last dispatch

	actions *SyncMap[string, *actionCounters]
}

type actionCounters struct {
	attempts atomic.Uint64
	failures atomic.Uint64
	nanos    atomic.Int64
}

// NewStats creates empty counters.
func NewStats() *Stats {
	return &Stats{actions: NewSyncMap[string, *actionCounters]()}
}

// observe folds a report into the counters.
func (s *Stats) observe(r *Report) {
	s.last.Store(r.Started.UnixNano())

	if r.Dropped() {
		s.dropped.Add(1)
		return
	}
	s.dispatched.Add(1)

	for _, o := range r.Outcomes {
		s.attempts.Add(1)
		c, _ := s.actions.LoadOrStore(o.Action, &actionCounters{})
		c.attempts.Add(1)
		c.nanos.Add(int64(o.Duration))

		if o.OK() {
			continue
		}
		s.failures.Add(1)
		c.failures.Add(1)
		if o.Panicked {
			s.panics.Add(1)
		}
		if o.TimedOut {
			s.timeouts.Add(1)
		}
	}
}

// ActionSnapshot is the per-action part of a Snapshot.
type ActionSnapshot struct {
	Attempts    uint64        `json:"attempts"`
	Failures    uint64        `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Dispatched   uint64                    `json:"dispatched"`
	Dropped      uint64                    `json:"dropped"`
	Attempts     uint64                    `json:"attempts"`
	Failures     uint64                    `json:"failures"`
	Panics       uint64                    `json:"panics"`
	Timeouts     uint64                    `json:"timeouts"`
	LastDispatch *time.Time                `json:"last_dispatch,omitempty"`
	Actions      map[string]ActionSnapshot `json:"actions"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Dispatched: s.dispatched.Load(),
		Dropped:    s.dropped.Load(),
		Attempts:   s.attempts.Load(),
		Failures:   s.failures.Load(),
		Panics:     s.panics.Load(),
		Timeouts:   s.timeouts.Load(),
		Actions:    make(map[string]ActionSnapshot, s.actions.Len()),
	}
	if last := s.last.Load(); last != 0 {
		t := time.Unix(0, last)
		snap.LastDispatch = &t
	}

	s.actions.Range(func(name string, c *actionCounters) bool {
		snap.Actions[name] = c.snapshot()
		return true
	})
	return snap
}

// Action returns the counters of one action. ok is false until the action
// has been attempted once.
func (s *Stats) Action(name string) (ActionSnapshot, bool) {
	c, ok := s.actions.Load(name)
	if !ok {
		return ActionSnapshot{}, false
	}
	return c.snapshot(), true
}

func (c *actionCounters) snapshot() ActionSnapshot {
	a := ActionSnapshot{Attempts: c.attempts.Load(), Failures: c.failures.Load()}
	if a.Attempts > 0 {
		a.AvgDuration = time.Duration(c.nanos.Load() / int64(a.Attempts)) //nolint:gosec // G115: counts stay small
	}
	return a
}
