package weave

// LoopAdvice is the result of LoopDetector.VisitCodeLocation: what the
// scheduler must do in response to this event.
type LoopAdvice struct {
	// MustSwitch mirrors spec.md §4.2's contract return value: the
	// caller must switch workers.
	MustSwitch bool

	// ForceFinish is set when the detector has raised one of the sudden
	// results of §4.2 step 4/5 (first-time spin detection, or the
	// livelock ceiling). The scheduler must set suddenResult to Outcome
	// and force-finish the current worker.
	ForceFinish bool
	Outcome     OutcomeKind

	// ActiveLock marks this switch as forced by spin-cycle detection
	// (first-time or early/replayed), as opposed to an ordinary
	// strategy-chosen switch, gating whether the scheduler applies the
	// ReasonActiveLock(Recursive) reason and opens a spin marker.
	ActiveLock bool

	// Recursive and AtMethodCall describe the detected cycle's shape,
	// for the trace collector's spin-marker policy (§4.3.1).
	AtMethodCall bool
	Recursive    bool
}

// LoopDetector implements the per-worker code-location visit counting,
// first-time spin detection, and (in replay mode) deterministic cycle
// reproduction of spec.md §4.2.
type LoopDetector struct {
	threshold        int
	livelockCeiling  int
	extraEventsOn    bool

	visitCount           map[CLID]int
	codeLocationHistory  []CLID
	interleavingHistory  []HistoryNode
	trackingSet          *cycleTrie
	cursor               *cycleCursor
	totalExecutions      int
	threadsRan           map[WID]bool

	currentWorker WID

	replay *replayHelper
}

// NewLoopDetector constructs a default-mode detector. trackingSet may
// be shared and reused across invocation attempts of the same scenario
// (it accumulates known cycle-leading interleavings); pass a fresh
// cycleTrie for a brand new scenario.
func NewLoopDetector(threshold, livelockCeiling int, trackingSet *cycleTrie) *LoopDetector {
	if trackingSet == nil {
		trackingSet = newCycleTrie()
	}
	return &LoopDetector{
		threshold:       threshold,
		livelockCeiling: livelockCeiling,
		visitCount:      make(map[CLID]int),
		trackingSet:     trackingSet,
		cursor:          trackingSet.newCursor(),
		threadsRan:      make(map[WID]bool),
	}
}

// EnableReplay switches the detector into replay mode, driven by a
// pre-computed interleaving history from a failing run.
func (d *LoopDetector) EnableReplay(nodes []HistoryNode, origin replayOrigin) {
	d.replay = newReplayHelper(nodes, origin)
}

// EnableExtraEventsTracking turns on the richer "measure the cycle"
// path used on the second pass after a first-time spin detection.
func (d *LoopDetector) EnableExtraEventsTracking() { d.extraEventsOn = true }

// OnWorkerSwitch must be called by the scheduler whenever the baton
// changes hands, before the incoming worker's first VisitCodeLocation
// call. It clears the per-worker-run counters (visitCount and
// codeLocationHistory are scoped to "the current run of the current
// worker") and records the just-finished worker-run as a history node.
func (d *LoopDetector) OnWorkerSwitch(from WID) {
	if d.replay != nil {
		d.replay.advanceNode()
		return
	}
	// threadsRan distinguishes a worker's first entry from a re-entry;
	// re-entries are otherwise indistinguishable runs of the same
	// worker and are recorded identically.
	d.threadsRan[from] = true

	node := HistoryNode{WID: from, ExecutionsBeforeSpinCycle: len(d.codeLocationHistory)}
	d.interleavingHistory = append(d.interleavingHistory, node)
	d.cursor.Advance(d.interleavingHistory)

	d.visitCount = make(map[CLID]int)
	d.codeLocationHistory = d.codeLocationHistory[:0]
	d.currentWorker = -1
}

// InterleavingHistory returns the accumulated per-invocation history,
// used by the invocation driver to seed a replay pass or to learn a new
// cycle-leading interleaving into the trie.
func (d *LoopDetector) InterleavingHistory() []HistoryNode { return d.interleavingHistory }

// LearnCycle records the current invocation's interleaving history into
// the shared trackingSet, making it available to future cursors (and
// future invocation attempts sharing this detector's trie).
func (d *LoopDetector) LearnCycle() { d.trackingSet.Add(d.interleavingHistory) }

// VisitCodeLocation implements the §4.2 contract.
func (d *LoopDetector) VisitCodeLocation(w WID, cl CLID) (bool, LoopAdvice) {
	if d.replay != nil {
		d.codeLocationHistory = append(d.codeLocationHistory, cl)
		advice := d.replay.advise(cl)
		if advice.exhausted && advice.mustSwitch {
			return true, LoopAdvice{ForceFinish: true, Outcome: OutcomeDeadlock}
		}
		return advice.mustSwitch, LoopAdvice{MustSwitch: advice.mustSwitch}
	}

	d.totalExecutions++
	if cl == SentinelCLID {
		return false, LoopAdvice{}
	}

	d.currentWorker = w
	d.visitCount[cl]++
	d.codeLocationHistory = append(d.codeLocationHistory, cl)

	detectedFirstTime := d.visitCount[cl] > d.threshold
	detectedEarly := d.cursor.IsInCycle(w)

	switch {
	case detectedFirstTime && !detectedEarly:
		var advice LoopAdvice
		if !d.extraEventsOn {
			advice = LoopAdvice{ForceFinish: true, Outcome: OutcomeSpinCycleFoundFirstTime}
		} else {
			node := identifyCycle(w, d.codeLocationHistory)
			if len(d.interleavingHistory) > 0 {
				d.interleavingHistory[len(d.interleavingHistory)-1] = node
			} else {
				d.interleavingHistory = append(d.interleavingHistory, node)
			}
			advice = LoopAdvice{
				ForceFinish:  true,
				Outcome:      OutcomeSpinCyclePeriodMeasured,
				ActiveLock:   true,
				AtMethodCall: cl.IsHelper(),
			}
		}
		if d.totalExecutions > d.livelockCeiling {
			advice.Outcome = OutcomeDeadlock
		}
		advice.MustSwitch = true
		return true, advice

	case !detectedFirstTime && detectedEarly:
		d.totalExecutions += d.threshold
		if node, ok := d.cursor.peek(w); ok {
			if len(d.interleavingHistory) > 0 {
				d.interleavingHistory[len(d.interleavingHistory)-1] = node
			} else {
				d.interleavingHistory = append(d.interleavingHistory, node)
			}
		}
		advice := LoopAdvice{ActiveLock: true, AtMethodCall: cl.IsHelper()}
		if d.totalExecutions > d.livelockCeiling {
			advice = LoopAdvice{ForceFinish: true, Outcome: OutcomeDeadlock}
		}
		advice.MustSwitch = true
		return true, advice
	}

	return false, LoopAdvice{}
}
