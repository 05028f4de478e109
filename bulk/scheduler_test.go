package bulk

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunGuard(t *testing.T) {
	s := NewScheduler(0, nil)
	require.True(t, s.TryAcquireRun("job_1"))
	assert.False(t, s.TryAcquireRun("job_1"))
	assert.True(t, s.TryAcquireRun("job_2"), "guards are per job")
	s.ReleaseRun("job_1")
	assert.True(t, s.TryAcquireRun("job_1"))
}

func TestSchedulerRetryGuardIndependent(t *testing.T) {
	s := NewScheduler(0, nil)
	require.True(t, s.TryAcquireRun("job_1"))
	assert.True(t, s.TryAcquireRetry("job_1"), "retry slot is separate from the run slot")
	assert.False(t, s.TryAcquireRetry("job_1"))
	s.ReleaseRetry("job_1")
	assert.True(t, s.TryAcquireRetry("job_1"))
}

func TestSchedulerArmFires(t *testing.T) {
	s := NewScheduler(0, nil)
	defer s.Stop()

	var fired atomic.Int32
	s.Arm("job_1", time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })
	assert.Equal(t, 1, s.PendingCount())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.PendingCount())
}

func TestSchedulerArmPastTimeFiresImmediately(t *testing.T) {
	s := NewScheduler(0, nil)
	defer s.Stop()

	var fired atomic.Int32
	s.Arm("job_1", time.Now().Add(-time.Minute), func() { fired.Add(1) })
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerDisarm(t *testing.T) {
	s := NewScheduler(0, nil)
	defer s.Stop()

	var fired atomic.Int32
	s.Arm("job_1", time.Now().Add(50*time.Millisecond), func() { fired.Add(1) })
	assert.True(t, s.Disarm("job_1"))
	assert.False(t, s.Disarm("job_1"), "already disarmed")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSchedulerRearmReplacesTimer(t *testing.T) {
	s := NewScheduler(0, nil)
	defer s.Stop()

	var first, second atomic.Int32
	s.Arm("job_1", time.Now().Add(time.Hour), func() { first.Add(1) })
	s.Arm("job_1", time.Now().Add(20*time.Millisecond), func() { second.Add(1) })
	assert.Equal(t, 1, s.PendingCount())

	require.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestSchedulerCapacity(t *testing.T) {
	s := NewScheduler(2, nil)
	defer s.Stop()

	assert.False(t, s.AtCapacity())
	s.Arm("job_1", time.Now().Add(time.Hour), func() {})
	s.Arm("job_2", time.Now().Add(time.Hour), func() {})
	assert.True(t, s.AtCapacity())
	s.Disarm("job_1")
	assert.False(t, s.AtCapacity())
}

func TestSchedulerStopSilencesTimers(t *testing.T) {
	s := NewScheduler(0, nil)
	var fired atomic.Int32
	s.Arm("job_1", time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.PendingCount())

	// Arming after Stop is ignored.
	s.Arm("job_2", time.Now().Add(10*time.Millisecond), func() { fired.Add(1) })
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
