package weave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCycle_DetectsSimplePeriod(t *testing.T) {
	history := []CLID{2, 4, 6, 4, 6, 4, 6}
	prefix, period, ok := findCycle(history)
	require.True(t, ok)
	assert.Equal(t, 1, prefix)
	assert.Equal(t, 2, period)
}

func TestFindCycle_NoRepetition(t *testing.T) {
	history := []CLID{2, 4, 6, 8, 10}
	_, _, ok := findCycle(history)
	assert.False(t, ok)
}

func TestFindCycle_TooShort(t *testing.T) {
	_, _, ok := findCycle([]CLID{2})
	assert.False(t, ok)
}

func TestFindCycle_PicksSmallestPrefixPlusPeriod(t *testing.T) {
	// period-1 repetition starting at index 0 beats any larger window.
	history := []CLID{4, 4, 4, 4}
	prefix, period, ok := findCycle(history)
	require.True(t, ok)
	assert.Equal(t, 0, prefix)
	assert.Equal(t, 1, period)
}

func TestIdentifyCycle_FallsBackToPeriodZero(t *testing.T) {
	history := []CLID{2, 4, 6, 8, 10, 12}
	node := identifyCycle(0, history)
	assert.Equal(t, 0, node.SpinCyclePeriod)
	assert.True(t, node.InCycle(), "a period-0 node still counts as 'in cycle' for reporting")
	assert.Equal(t, 1, node.effectivePeriod())
}

func TestIdentifyCycle_MeasuresRealPeriod(t *testing.T) {
	history := []CLID{2, 4, 6, 4, 6, 4, 6}
	node := identifyCycle(1, history)
	assert.Equal(t, 2, node.SpinCyclePeriod)
	assert.Equal(t, 1, node.ExecutionsBeforeSpinCycle)
	assert.Equal(t, 1, node.WID)
}

func TestCycleTrie_CursorNarrowsByMatchingHistory(t *testing.T) {
	trie := newCycleTrie()
	trie.Add([]HistoryNode{{WID: 0}, {WID: 1, SpinCyclePeriod: 3}})
	trie.Add([]HistoryNode{{WID: 0}, {WID: 2}})

	cursor := trie.newCursor()
	cursor.Advance([]HistoryNode{{WID: 0}})
	// both candidate sequences still match the one-element prefix; the
	// first sequence's next node (worker 1) is already a recorded cycle.
	assert.True(t, cursor.IsInCycle(1))
	assert.False(t, cursor.IsInCycle(2), "worker 2's node in the second candidate carries no cycle")
}

func TestCycleTrie_NoCandidatesMeansNoCycle(t *testing.T) {
	trie := newCycleTrie()
	cursor := trie.newCursor()
	cursor.Advance([]HistoryNode{{WID: 0}})
	assert.False(t, cursor.IsInCycle(0))
}
