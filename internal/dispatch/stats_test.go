package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Snapshot(t *testing.T) {
	s := NewStats()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.observe(&Report{Started: start, Outcomes: []Outcome{
		{Action: "kafka", Duration: 10 * time.Millisecond},
		{Action: "log", Duration: 2 * time.Millisecond},
	}})
	s.observe(&Report{Started: start.Add(time.Second), Outcomes: []Outcome{
		{Action: "kafka", Duration: 30 * time.Millisecond, Err: errors.New("down")},
		{Action: "log", Err: errors.New("boom"), Panicked: true},
	}})
	s.observe(&Report{Started: start.Add(2 * time.Second), Err: errors.New("unreadable")})

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Dispatched)
	assert.Equal(t, uint64(1), snap.Dropped)
	assert.Equal(t, uint64(4), snap.Attempts)
	assert.Equal(t, uint64(2), snap.Failures)
	assert.Equal(t, uint64(1), snap.Panics)
	if assert.NotNil(t, snap.LastDispatch) {
		assert.True(t, snap.LastDispatch.Equal(start.Add(2*time.Second)))
	}

	kafka := snap.Actions["kafka"]
	assert.Equal(t, uint64(2), kafka.Attempts)
	assert.Equal(t, uint64(1), kafka.Failures)
	assert.Equal(t, 20*time.Millisecond, kafka.AvgDuration)
}

func TestStats_Action(t *testing.T) {
	s := NewStats()
	_, ok := s.Action("kafka")
	assert.False(t, ok)

	s.observe(&Report{Started: time.Now(), Outcomes: []Outcome{
		{Action: "kafka", Duration: 4 * time.Millisecond, Err: errors.New("down")},
		{Action: "kafka", Duration: 8 * time.Millisecond},
	}})

	a, ok := s.Action("kafka")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), a.Attempts)
	assert.Equal(t, uint64(1), a.Failures)
	assert.Equal(t, 6*time.Millisecond, a.AvgDuration)
}

func TestStats_EmptySnapshot(t *testing.T) {
	snap := NewStats().Snapshot()
	assert.Nil(t, snap.LastDispatch)
	assert.Empty(t, snap.Actions)
}

func TestStats_ConcurrentObserve(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.observe(&Report{Started: time.Now(), Outcomes: []Outcome{{Action: "a"}, {Action: "b"}}})
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, uint64(50), snap.Dispatched)
	assert.Equal(t, uint64(100), snap.Attempts)
	assert.Equal(t, uint64(50), snap.Actions["a"].Attempts)
}
