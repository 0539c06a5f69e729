package weave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorTracker_AcquireRelease(t *testing.T) {
	m := NewMonitorTracker(2)
	mon := "mutex-a"

	require.True(t, m.Acquire(0, mon))
	assert.False(t, m.Acquire(1, mon), "worker 1 must not acquire while worker 0 holds it")

	require.NoError(t, m.Release(mon))
	assert.True(t, m.Acquire(1, mon), "worker 1 should acquire once released")
}

func TestMonitorTracker_Reentrant(t *testing.T) {
	m := NewMonitorTracker(1)
	mon := "mutex-a"

	require.True(t, m.Acquire(0, mon))
	require.True(t, m.Acquire(0, mon), "same worker re-acquiring must succeed (reentrancy)")

	require.NoError(t, m.Release(mon))
	// still held once more
	require.NoError(t, m.Release(mon))
	assert.ErrorIs(t, m.Release(mon), ErrInvalidRelease)
}

func TestMonitorTracker_ReleaseUnacquired(t *testing.T) {
	m := NewMonitorTracker(1)
	assert.ErrorIs(t, m.Release("nope"), ErrInvalidRelease)
}

func TestMonitorTracker_WaitNotify(t *testing.T) {
	m := NewMonitorTracker(2)
	mon := "cond"

	require.True(t, m.Acquire(0, mon))

	blocked, err := m.WaitOn(0, mon)
	require.NoError(t, err)
	assert.True(t, blocked, "first WaitOn call parks and reports still-blocked")
	assert.True(t, m.IsWaiting(0))

	// before notify, still blocked
	blocked, err = m.WaitOn(0, mon)
	require.NoError(t, err)
	assert.True(t, blocked)

	m.NotifyAll(mon)
	assert.False(t, m.IsWaiting(0))

	blocked, err = m.WaitOn(0, mon)
	require.NoError(t, err)
	assert.False(t, blocked, "after notify, WaitOn reacquires and reports unblocked")
}

func TestMonitorTracker_IsWaitingFalseWhenNoMonitorRecorded(t *testing.T) {
	m := NewMonitorTracker(1)
	assert.False(t, m.IsWaiting(0))
}
