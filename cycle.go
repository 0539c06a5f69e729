package weave

// HistoryNode summarises one worker-run between switches: how many
// events it executed before (if ever) entering a detected spin cycle,
// the cycle's period, a hash identifying it for replay, and the
// lead-in length including any "extra events" tracked once the first
// detection path has switched into tracing mode.
type HistoryNode struct {
	WID                                       WID
	ExecutionsBeforeSpinCycle                 int
	SpinCyclePeriod                           int
	ExecutionHash                             uint64
	ExecutionsBeforeSpinCycleWithExtraEvents  int
}

// InCycle reports whether this node records a detected spin cycle.
func (n HistoryNode) InCycle() bool { return n.SpinCyclePeriod > 0 || n.ExecutionHash != 0 }

// effectivePeriod returns the step size replay should advance by for
// this node: a measured period, or 1 for a "period could not be
// determined" node, which the engine still records as a single cycle
// iteration per spec.md §4.2.1.
func (n HistoryNode) effectivePeriod() int {
	if n.SpinCyclePeriod > 0 {
		return n.SpinCyclePeriod
	}
	return 1
}

// findCycle searches history for the (prefix, period) minimising
// prefix+period such that history[i] == history[i+period] for every i
// in [prefix, len(history)-period) — i.e. the tail from prefix onward
// is an exact periodic repetition. Returns ok=false if no such pair
// exists (history too short, or genuinely aperiodic).
func findCycle(history []CLID) (prefix, period int, ok bool) {
	n := len(history)
	bestScore := -1
	for p := 1; p <= n/2; p++ {
		for start := 0; start+2*p <= n; start++ {
			if isRepeating(history, start, p) {
				score := start + p
				if !ok || score < bestScore {
					bestScore, prefix, period, ok = score, start, p, true
				}
				break
			}
		}
	}
	return prefix, period, ok
}

func isRepeating(history []CLID, start, period int) bool {
	n := len(history)
	for i := start; i+period < n; i++ {
		if history[i] != history[i+period] {
			return false
		}
	}
	return true
}

// filterSwitchAndMethodEvents keeps only switch-point and method
// enter/exit (non-value-view helper) CLIDs, discarding value views —
// the alphabet used by findCycle's second attempt (§4.2.1).
func filterSwitchAndMethodEvents(history []CLID) []CLID {
	out := make([]CLID, 0, len(history))
	for _, cl := range history {
		if cl.IsSwitchPoint() || cl.IsHelper() {
			out = append(out, cl)
		}
	}
	return out
}

// executionHash computes the XOR of the switch-point CLIDs within one
// period window of history (history[prefix:prefix+period]), so that
// replay can recognise the same cycle without being fooled by variable
// lead-ins.
func executionHash(history []CLID, prefix, period int) uint64 {
	var h uint64
	end := prefix + period
	if end > len(history) {
		end = len(history)
	}
	for i := prefix; i < end; i++ {
		cl := history[i]
		if cl.IsSwitchPoint() {
			h ^= uint64(uint32(cl))
		}
	}
	return h
}

// identifyCycle runs both findCycle attempts described in §4.2.1 and
// returns a HistoryNode summarising the result (period 0 if neither
// attempt finds a repetition).
func identifyCycle(w WID, history []CLID) HistoryNode {
	if prefix, period, ok := findCycle(history); ok {
		return HistoryNode{
			WID:                        w,
			ExecutionsBeforeSpinCycle:  prefix,
			SpinCyclePeriod:            period,
			ExecutionHash:              executionHash(history, prefix, period),
		}
	}
	filtered := filterSwitchAndMethodEvents(history)
	if prefix, period, ok := findCycle(filtered); ok {
		return HistoryNode{
			WID:                       w,
			ExecutionsBeforeSpinCycle: prefix,
			SpinCyclePeriod:           period,
			ExecutionHash:             executionHash(filtered, prefix, period),
		}
	}
	// Neither attempt found a repetition: "cycle of period 0" — a live
	// region whose period could not be determined. Still record a
	// single cycle iteration for reporting.
	lastIdx := len(history) - 1
	if lastIdx < 0 {
		lastIdx = 0
	}
	return HistoryNode{
		WID:                       w,
		ExecutionsBeforeSpinCycle: lastIdx,
		SpinCyclePeriod:           0,
		ExecutionHash:             1, // marks "in cycle" despite period 0; see InCycle.
	}
}

// cycleTrie is a prefix structure over interleaving histories known
// (from prior invocations of the same scenario) to lead to a spin
// cycle. It is queried incrementally via newCursor as the current
// invocation's interleaving history grows.
type cycleTrie struct {
	sequences [][]HistoryNode
}

func newCycleTrie() *cycleTrie { return &cycleTrie{} }

// Add records a full interleaving history that ended in a detected
// spin cycle, making its prefixes available to future cursors.
func (t *cycleTrie) Add(seq []HistoryNode) {
	cp := make([]HistoryNode, len(seq))
	copy(cp, seq)
	t.sequences = append(t.sequences, cp)
}

// cycleCursor walks the trie incrementally as the current invocation's
// interleavingHistory grows, exposing whether the position the current
// worker-run occupies matches a previously recorded cycle.
type cycleCursor struct {
	trie       *cycleTrie
	candidates []int // indices into trie.sequences still consistent with history seen so far
	pos        int
}

func (t *cycleTrie) newCursor() *cycleCursor {
	c := &cycleCursor{trie: t}
	c.candidates = make([]int, len(t.sequences))
	for i := range c.candidates {
		c.candidates[i] = i
	}
	return c
}

// Advance is called whenever a completed HistoryNode is appended to the
// current invocation's interleavingHistory. It narrows the candidate
// set to sequences agreeing with the full history observed so far.
func (c *cycleCursor) Advance(history []HistoryNode) {
	c.pos = len(history)
	if len(c.candidates) == 0 {
		return
	}
	kept := c.candidates[:0]
	for _, idx := range c.candidates {
		seq := c.trie.sequences[idx]
		if len(seq) < len(history) {
			continue
		}
		match := true
		for i, n := range history {
			if seq[i].WID != n.WID {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, idx)
		}
	}
	c.candidates = kept
}

// IsInCycle reports whether, at the current position, some candidate
// previously-recorded interleaving records a spin cycle for worker w.
func (c *cycleCursor) IsInCycle(w WID) bool {
	node, ok := c.peek(w)
	return ok && node.InCycle()
}

// peek returns the recorded node (if any candidate has one) for the
// current position and worker w.
func (c *cycleCursor) peek(w WID) (HistoryNode, bool) {
	for _, idx := range c.candidates {
		seq := c.trie.sequences[idx]
		if c.pos < len(seq) && seq[c.pos].WID == w {
			return seq[c.pos], true
		}
	}
	return HistoryNode{}, false
}
