package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// Policy decides how the actions of one dispatch are run. Whatever the
// policy, every action is attempted exactly once and outcomes are returned
// in action order.
type Policy interface {
	Run(ctx context.Context, actions []plugin.Action, call CallFunc) []Outcome
}

// CallFunc runs one action and never panics.
type CallFunc func(ctx context.Context, a plugin.Action) Outcome

// Sequential runs actions one after another with no timeout.
type Sequential struct{}

// Run implements Policy.
func (Sequential) Run(ctx context.Context, actions []plugin.Action, call CallFunc) []Outcome {
	outcomes := make([]Outcome, len(actions))
	for i, a := range actions {
		outcomes[i] = call(ctx, a)
	}
	return outcomes
}

// Bounded runs up to Concurrency actions at once. With a positive Timeout an
// action that overruns is reported as failed and its goroutine is abandoned;
// the action sees its context cancelled.
type Bounded struct {
	Concurrency int
	Timeout     time.Duration
}

// Run implements Policy.
func (b Bounded) Run(ctx context.Context, actions []plugin.Action, call CallFunc) []Outcome {
	outcomes := make([]Outcome, len(actions))

	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, a := range actions {
		g.Go(func() error {
			outcomes[i] = b.runOne(ctx, a, call)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail

	return outcomes
}

func (b Bounded) runOne(ctx context.Context, a plugin.Action, call CallFunc) Outcome {
	if b.Timeout <= 0 {
		return call(ctx, a)
	}

	actx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Outcome, 1)
	go func() { done <- call(actx, a) }()

	select {
	case o := <-done:
		if o.Err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			o.TimedOut = true
		}
		return o
	case <-actx.Done():
		return Outcome{
			Action:   a.Name(),
			Err:      errors.Wrapf(actx.Err(), errors.CodeAction, "action %s did not finish within %s", a.Name(), b.Timeout),
			TimedOut: true,
			Duration: time.Since(start),
		}
	}
}
