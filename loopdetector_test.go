package weave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopDetector_SentinelNeverCountsVisits(t *testing.T) {
	d := NewLoopDetector(3, 1000, nil)
	for i := 0; i < 100; i++ {
		mustSwitch, advice := d.VisitCodeLocation(0, SentinelCLID)
		require.False(t, mustSwitch)
		assert.False(t, advice.ForceFinish)
	}
}

func TestLoopDetector_FirstTimeDetectionForcesFinish(t *testing.T) {
	d := NewLoopDetector(3, 1000, nil)
	var last LoopAdvice
	var mustSwitch bool
	for i := 0; i < 10; i++ {
		mustSwitch, last = d.VisitCodeLocation(0, 4)
		if last.ForceFinish {
			break
		}
	}
	require.True(t, mustSwitch)
	assert.True(t, last.ForceFinish)
	assert.Equal(t, OutcomeSpinCycleFoundFirstTime, last.Outcome)
}

func TestLoopDetector_ExtraEventsTrackingMeasuresCycle(t *testing.T) {
	d := NewLoopDetector(3, 1000, nil)
	d.EnableExtraEventsTracking()

	var last LoopAdvice
	for i := 0; i < 10; i++ {
		_, last = d.VisitCodeLocation(0, 4)
		if last.ForceFinish {
			break
		}
	}
	assert.Equal(t, OutcomeSpinCyclePeriodMeasured, last.Outcome)
	assert.True(t, last.ActiveLock)
}

func TestLoopDetector_LivelockCeilingOverridesToDeadlock(t *testing.T) {
	d := NewLoopDetector(3, 5, nil)
	// two unrelated events first, so that by the time CLID 4 crosses the
	// hanging threshold (its 4th visit) totalExecutions is 6, over the
	// ceiling of 5.
	d.VisitCodeLocation(0, 6)
	d.VisitCodeLocation(0, 8)
	var last LoopAdvice
	for i := 0; i < 20; i++ {
		_, last = d.VisitCodeLocation(0, 4)
		if last.ForceFinish {
			break
		}
	}
	assert.Equal(t, OutcomeDeadlock, last.Outcome)
}

func TestLoopDetector_OnWorkerSwitchResetsPerRunCounters(t *testing.T) {
	d := NewLoopDetector(3, 1000, nil)
	d.VisitCodeLocation(0, 4)
	d.VisitCodeLocation(0, 4)
	d.OnWorkerSwitch(0)

	assert.Empty(t, d.codeLocationHistory)
	assert.Empty(t, d.visitCount)
}

func TestLoopDetector_LearnCycleAndReplayEarlyDetection(t *testing.T) {
	trie := newCycleTrie()
	d := NewLoopDetector(50, 100000, trie)
	d.EnableExtraEventsTracking()

	var last LoopAdvice
	for i := 0; i < 200; i++ {
		_, last = d.VisitCodeLocation(0, 4)
		if last.ForceFinish {
			break
		}
	}
	require.Equal(t, OutcomeSpinCyclePeriodMeasured, last.Outcome)
	d.LearnCycle()

	// a fresh detector sharing the now-informed trie should detect the
	// same worker's cycle early, without needing threshold visits.
	d2 := NewLoopDetector(50, 100000, trie)
	mustSwitch, advice := d2.VisitCodeLocation(0, 4)
	assert.True(t, mustSwitch)
	assert.True(t, advice.ActiveLock)
	assert.False(t, advice.ForceFinish)
}
