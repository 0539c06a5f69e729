package weave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayHelper_AdvisesSwitchAtRecordedThreshold(t *testing.T) {
	nodes := []HistoryNode{{WID: 0, ExecutionsBeforeSpinCycle: 2, SpinCyclePeriod: 1}}
	r := newReplayHelper(nodes, replayOriginOther)

	var advice replayAdvice
	for i := 0; i < 3; i++ {
		advice = r.advise(4)
		if advice.mustSwitch {
			break
		}
	}
	assert.True(t, advice.mustSwitch)
}

func TestReplayHelper_ExhaustedWithLockOriginForcesSwitch(t *testing.T) {
	r := newReplayHelper(nil, replayOriginLock)
	advice := r.advise(4)
	assert.True(t, advice.exhausted)
	assert.True(t, advice.mustSwitch)
}

func TestReplayHelper_ExhaustedWithOtherOriginDoesNotForce(t *testing.T) {
	r := newReplayHelper(nil, replayOriginOther)
	advice := r.advise(4)
	assert.True(t, advice.exhausted)
	assert.False(t, advice.mustSwitch)
}

func TestReplayHelper_SentinelNeverAdvises(t *testing.T) {
	r := newReplayHelper([]HistoryNode{{WID: 0, ExecutionsBeforeSpinCycle: 0}}, replayOriginOther)
	advice := r.advise(SentinelCLID)
	assert.False(t, advice.mustSwitch)
	assert.False(t, advice.exhausted)
}

func TestReplayHelper_AdvanceNodeResetsCounter(t *testing.T) {
	nodes := []HistoryNode{
		{WID: 0, ExecutionsBeforeSpinCycle: 1, SpinCyclePeriod: 1},
		{WID: 1, ExecutionsBeforeSpinCycle: 1, SpinCyclePeriod: 1},
	}
	r := newReplayHelper(nodes, replayOriginOther)
	require.False(t, r.advise(4).mustSwitch)
	require.True(t, r.advise(4).mustSwitch)

	r.advanceNode()
	assert.Equal(t, 1, r.nodeIdx)
	assert.Equal(t, 0, r.executionsPerformedInCurrentNode)
}

func TestReplayHelper_EffectivePeriodZeroStillAdvances(t *testing.T) {
	nodes := []HistoryNode{{WID: 0, ExecutionsBeforeSpinCycle: 0, SpinCyclePeriod: 0}}
	r := newReplayHelper(nodes, replayOriginOther)
	advice := r.advise(4)
	assert.True(t, advice.mustSwitch, "period-0 node still advances by 1 per event")
}
