package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRefreshesImmediatelyAndOnTick(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(NewPollConfig(1), 5*time.Millisecond, func() { calls.Add(1) }, nil)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, s.Running())
}

func TestSchedulerNoRefreshAfterStop(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(NewPollConfig(1), time.Millisecond, func() { calls.Add(1) }, nil)
	s.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	require.Eventually(t, func() bool { return s.loops.Load() == 0 }, time.Second, time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestSchedulerRestartKeepsOneLoop(t *testing.T) {
	s := NewScheduler(NewPollConfig(5), time.Hour, func() {}, nil)
	s.Start()
	s.Start()
	s.Reconfigure(NewPollConfig(10))
	s.Reconfigure(NewPollConfig(1))

	require.Eventually(t, func() bool { return s.loops.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, s.Config().Minutes())

	s.Stop()
	require.Eventually(t, func() bool { return s.loops.Load() == 0 }, time.Second, time.Millisecond)
	assert.False(t, s.Running())
}

func TestSchedulerReconfigureWhileStopped(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(NewPollConfig(5), time.Hour, func() { calls.Add(1) }, nil)
	s.Reconfigure(NewPollConfig(15))

	assert.False(t, s.Running())
	assert.Equal(t, 15, s.Config().Minutes())
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Zero(t, s.loops.Load())
}

func TestSchedulerRefreshNowLeavesTickerAlone(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(NewPollConfig(5), time.Hour, func() { calls.Add(1) }, nil)
	s.RefreshNow()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, s.Running())
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler(PollConfig{}, time.Hour, func() {}, nil)
	s.Stop()
	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}
