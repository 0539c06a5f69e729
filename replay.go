package weave

// replayOrigin records whether the failure being replayed was itself a
// lock-type violation, so the replay helper knows whether reaching the
// end of the recorded interleaving should raise Deadlock.
type replayOrigin int

const (
	replayOriginOther replayOrigin = iota
	replayOriginLock
)

// replayHelper reproduces a previously summarised interleaving
// deterministically, advising switches at the recorded node boundaries
// instead of re-discovering cycles from scratch.
type replayHelper struct {
	nodes  []HistoryNode
	origin replayOrigin

	nodeIdx                           int
	executionsPerformedInCurrentNode int
}

func newReplayHelper(nodes []HistoryNode, origin replayOrigin) *replayHelper {
	return &replayHelper{nodes: nodes, origin: origin}
}

// currentlyInSpinCycle reports whether the node currently being replayed
// records a spin cycle.
func (r *replayHelper) currentlyInSpinCycle() bool {
	n, ok := r.currentNode()
	return ok && n.InCycle()
}

// currentCyclePeriod returns the current node's period (0 if none or
// exhausted).
func (r *replayHelper) currentCyclePeriod() int {
	n, ok := r.currentNode()
	if !ok {
		return 0
	}
	return n.SpinCyclePeriod
}

// isActiveLockNode reports whether the current node represents an
// active-lock (spin cycle) switch, as opposed to an ordinary strategy
// switch.
func (r *replayHelper) isActiveLockNode() bool {
	return r.currentlyInSpinCycle()
}

func (r *replayHelper) currentNode() (HistoryNode, bool) {
	if r.nodeIdx < 0 || r.nodeIdx >= len(r.nodes) {
		return HistoryNode{}, false
	}
	return r.nodes[r.nodeIdx], true
}

// advise is called on every intercepted event for the worker currently
// holding the baton. It increments the per-node execution count and
// reports whether a switch is now due, along with whether replay has
// been exhausted (in which case, if the origin failure was a lock
// violation, the caller must raise Deadlock).
type replayAdvice struct {
	mustSwitch bool
	exhausted  bool
}

func (r *replayHelper) advise(cl CLID) replayAdvice {
	if cl == SentinelCLID {
		return replayAdvice{}
	}
	node, ok := r.currentNode()
	if !ok {
		return replayAdvice{exhausted: true, mustSwitch: r.origin == replayOriginLock}
	}
	r.executionsPerformedInCurrentNode++
	threshold := node.ExecutionsBeforeSpinCycle + node.effectivePeriod()
	if r.executionsPerformedInCurrentNode >= threshold {
		return replayAdvice{mustSwitch: true}
	}
	return replayAdvice{}
}

// advanceNode moves the replay cursor to the next recorded node,
// called once the scheduler has actually performed the switch advised
// by advise.
func (r *replayHelper) advanceNode() {
	r.nodeIdx++
	r.executionsPerformedInCurrentNode = 0
}
