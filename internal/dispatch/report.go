package dispatch

import (
	"time"

	"github.com/dropwatch/dropwatch/internal/domain"
)

// Outcome is the result of one action attempt.
type Outcome struct {
	Action   string
	Err      error
	Panicked bool
	TimedOut bool
	Duration time.Duration
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report describes one dispatch. A dropped event has Err set and no outcomes.
type Report struct {
	DispatchID string
	Path       string
	Event      domain.FileEvent
	Outcomes   []Outcome
	Err        error
	Started    time.Time
	Duration   time.Duration
}

// Dropped reports whether the event never reached the actions.
func (r *Report) Dropped() bool {
	return r.Err != nil
}

// Failed returns the number of failed attempts.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
