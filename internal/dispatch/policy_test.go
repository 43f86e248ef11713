package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/plugin"
)

// gauge tracks the peak number of concurrent calls.
type gauge struct {
	name    string
	current *atomic.Int32
	peak    *atomic.Int32
}

func (g gauge) Name() string { return g.name }

func (g gauge) Handle(context.Context, domain.FileEvent) error {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

func callHandle(ctx context.Context, a plugin.Action) Outcome {
	return Outcome{Action: a.Name(), Err: a.Handle(ctx, domain.FileEvent{})}
}

func TestSequential_RunsInOrder(t *testing.T) {
	log := &callLog{}
	acts := actions(&fakeAction{name: "a", log: log}, &fakeAction{name: "b", log: log}, &fakeAction{name: "c", log: log})

	outcomes := Sequential{}.Run(context.Background(), acts, callHandle)

	assert.Equal(t, []string{"a", "b", "c"}, log.get())
	require.Len(t, outcomes, 3)
	assert.Equal(t, "c", outcomes[2].Action)
}

func TestBounded_RespectsConcurrencyLimit(t *testing.T) {
	var current, peak atomic.Int32
	var acts []plugin.Action
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		acts = append(acts, gauge{name: name, current: &current, peak: &peak})
	}

	outcomes := Bounded{Concurrency: 2}.Run(context.Background(), acts, callHandle)

	require.Len(t, outcomes, 6)
	for i, o := range outcomes {
		assert.Equal(t, acts[i].Name(), o.Action, "outcomes stay in action order")
		assert.True(t, o.OK())
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestBounded_ZeroConcurrencyMeansOne(t *testing.T) {
	var current, peak atomic.Int32
	acts := []plugin.Action{
		gauge{name: "a", current: &current, peak: &peak},
		gauge{name: "b", current: &current, peak: &peak},
	}

	Bounded{}.Run(context.Background(), acts, callHandle)
	assert.Equal(t, int32(1), peak.Load())
}

func TestBounded_TimeoutAbandonsStuckAction(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stuck := blockingAction{release: release}
	start := time.Now()
	outcomes := Bounded{Concurrency: 1, Timeout: 30 * time.Millisecond}.Run(
		context.Background(), []plugin.Action{stuck}, callHandle)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].TimedOut)
	assert.Equal(t, "stuck", outcomes[0].Action)
	assert.Error(t, outcomes[0].Err)
}

// blockingAction ignores its context until released.
type blockingAction struct{ release chan struct{} }

func (blockingAction) Name() string { return "stuck" }

func (b blockingAction) Handle(context.Context, domain.FileEvent) error {
	<-b.release
	return nil
}
