package weave

// TracePointKind distinguishes the variants of a recorded trace point.
type TracePointKind int

const (
	// KindSwitchEvent records a baton hand-off.
	KindSwitchEvent TracePointKind = iota
	// KindCodeLocation is a passthrough of a specific intercepted event
	// (Read, Write, MonitorEnter, etc).
	KindCodeLocation
	// KindStateRepr records a captured state-representation snapshot.
	KindStateRepr
	// KindSpinCycleStart marks the first iteration of a detected spin
	// cycle.
	KindSpinCycleStart
	// KindObstructionFreedomAbort marks an obstruction-freedom
	// violation.
	KindObstructionFreedomAbort
	// KindFinish marks a worker's terminal trace point.
	KindFinish
)

// SwitchReason classifies why the scheduler handed off the baton.
type SwitchReason int

const (
	// ReasonStrategy is a switch requested by the search strategy.
	ReasonStrategy SwitchReason = iota
	// ReasonActiveLock is a switch forced by spin-cycle detection.
	ReasonActiveLock
	// ReasonActiveLockRecursive is ReasonActiveLock for a spin cycle
	// whose inner call depth strictly exceeds the spin marker's depth.
	ReasonActiveLockRecursive
	// ReasonLockWait is a switch forced by a failed monitor acquire.
	ReasonLockWait
	// ReasonMonitorWait is a switch forced by a blocking monitor wait.
	ReasonMonitorWait
	// ReasonSuspended is a switch forced by coroutine suspension.
	ReasonSuspended
)

// String renders a human-readable switch reason name.
func (r SwitchReason) String() string {
	switch r {
	case ReasonStrategy:
		return "Strategy"
	case ReasonActiveLock:
		return "ActiveLock"
	case ReasonActiveLockRecursive:
		return "ActiveLockRecursive"
	case ReasonLockWait:
		return "LockWait"
	case ReasonMonitorWait:
		return "MonitorWait"
	case ReasonSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// TracePoint is a single recorded event: every variant carries the
// worker, actor and call-stack snapshot current at the moment of
// recording.
type TracePoint struct {
	Kind      TracePointKind
	WID       WID
	ActorID   ActorID
	CallStack []CallStackElement

	// Switch-specific.
	SwitchTo     WID
	SwitchReason SwitchReason

	// CodeLocation-specific.
	CLID  CLID
	Value any // attached via AfterRead, for tracing only

	// StateRepr-specific.
	State string
}

// TraceCollector is an append-only log of trace points, populated only
// when tracing is enabled. It is mutated only by the current baton
// holder, so no internal locking is required.
type TraceCollector struct {
	enabled bool
	points  []TracePoint

	logger *EngineLogger

	// spinMarkerIndex[w], if >= 0, is the index into points of the
	// currently-open SpinCycleStart marker for worker w: used to apply
	// the retroactive truncation / recursive-trim policy of §4.3.1.
	spinMarkerIndex map[WID]int
}

// NewTraceCollector constructs a collector. Pass enabled=false to make
// every method a no-op (used for the first, untraced invocation
// attempt).
func NewTraceCollector(enabled bool, logger *EngineLogger) *TraceCollector {
	return &TraceCollector{
		enabled:         enabled,
		logger:          logger,
		spinMarkerIndex: make(map[WID]int),
	}
}

// Enabled reports whether this collector records points.
func (c *TraceCollector) Enabled() bool { return c.enabled }

// Reset clears the collected log, e.g. at invocation start.
func (c *TraceCollector) Reset() {
	c.points = c.points[:0]
	for k := range c.spinMarkerIndex {
		delete(c.spinMarkerIndex, k)
	}
}

// Points returns the recorded log in append order.
func (c *TraceCollector) Points() []TracePoint {
	return c.points
}

func (c *TraceCollector) append(tp TracePoint) int {
	if !c.enabled {
		return -1
	}
	c.points = append(c.points, tp)
	return len(c.points) - 1
}

// RecordSwitch appends a Switch trace point and mirrors it to the
// structured logger regardless of whether tracing is enabled (logging
// and tracing are independent concerns).
func (c *TraceCollector) RecordSwitch(from, to WID, reason SwitchReason, stack []CallStackElement) {
	logSwitch(c.logger, from, to, reason)
	c.append(TracePoint{
		Kind:         KindSwitchEvent,
		WID:          from,
		SwitchTo:     to,
		SwitchReason: reason,
		CallStack:    stack,
	})
}

// RecordCodeLocation appends a CodeLocation trace point.
func (c *TraceCollector) RecordCodeLocation(w WID, actorID ActorID, cl CLID, stack []CallStackElement) {
	c.append(TracePoint{
		Kind:      KindCodeLocation,
		WID:       w,
		ActorID:   actorID,
		CLID:      cl,
		CallStack: stack,
	})
}

// RecordStateRepresentation appends a StateRepr trace point using the
// call-stack of the preceding point.
func (c *TraceCollector) RecordStateRepresentation(w WID, actorID ActorID, state string) {
	var stack []CallStackElement
	if n := len(c.points); n > 0 {
		stack = c.points[n-1].CallStack
	}
	c.append(TracePoint{
		Kind:      KindStateRepr,
		WID:       w,
		ActorID:   actorID,
		State:     state,
		CallStack: stack,
	})
}

// RecordObstructionFreedomAbort appends an ObstructionFreedomAbort
// trace point.
func (c *TraceCollector) RecordObstructionFreedomAbort(w WID, actorID ActorID, stack []CallStackElement) {
	c.append(TracePoint{
		Kind:      KindObstructionFreedomAbort,
		WID:       w,
		ActorID:   actorID,
		CallStack: stack,
	})
}

// RecordFinish appends a Finish trace point.
func (c *TraceCollector) RecordFinish(w WID, actorID ActorID, stack []CallStackElement) {
	c.append(TracePoint{
		Kind:      KindFinish,
		WID:       w,
		ActorID:   actorID,
		CallStack: stack,
	})
}

// OpenSpinCycleMarker inserts a SpinCycleStart point exactly once per
// spin run, applying the §4.3.1 stack-depth correction: if the cycle's
// first event is a tracked method call, the marker's stack is the
// current stack with the top frame dropped, so the marker sits outside
// the call. If recursive is true (the detected cycle's inner call-depth
// strictly exceeds the marker's own depth), an additional frame is
// trimmed and the caller is expected to record the switch with
// ReasonActiveLockRecursive rather than ReasonActiveLock.
func (c *TraceCollector) OpenSpinCycleMarker(w WID, actorID ActorID, stack []CallStackElement, cycleStartsAtMethodCall, recursive bool) {
	if !c.enabled {
		return
	}
	if _, already := c.spinMarkerIndex[w]; already {
		return
	}
	marker := stack[:spinMarkerDepth(stack, cycleStartsAtMethodCall, recursive)]
	idx := c.append(TracePoint{
		Kind:      KindSpinCycleStart,
		WID:       w,
		ActorID:   actorID,
		CallStack: marker,
	})
	if idx >= 0 {
		c.spinMarkerIndex[w] = idx
	}
}

// TruncateSpinCycleMarker retroactively shortens the stored stack of
// worker w's currently-open spin marker to the given (shallower) depth,
// applied when a later iteration of the same cycle reveals a shallower
// true cycle start.
func (c *TraceCollector) TruncateSpinCycleMarker(w WID, depth int) {
	idx, ok := c.spinMarkerIndex[w]
	if !ok || idx < 0 || idx >= len(c.points) {
		return
	}
	stack := c.points[idx].CallStack
	if depth < len(stack) {
		c.points[idx].CallStack = stack[:depth]
	}
}

// CloseSpinCycleMarker clears the open-marker bookkeeping for w, called
// once the worker is switched out or the cycle run ends.
func (c *TraceCollector) CloseSpinCycleMarker(w WID) {
	delete(c.spinMarkerIndex, w)
}

// spinMarkerDepth applies the §4.3.1 stack-depth correction described
// on OpenSpinCycleMarker, returning the resulting marker depth without
// mutating stack.
func spinMarkerDepth(stack []CallStackElement, cycleStartsAtMethodCall, recursive bool) int {
	depth := len(stack)
	if cycleStartsAtMethodCall && depth > 0 {
		depth--
	}
	if recursive && depth > 0 {
		depth--
	}
	return depth
}

// ReviseSpinCycleMarker is called at every event the loop detector
// still recognises as part of an already-identified spin cycle. The
// first such call for worker w opens the marker (see
// OpenSpinCycleMarker). Every subsequent call, while the marker is
// still open, compares this iteration's corrected depth against the
// depth recorded when the marker opened: if this iteration's cycle
// start is shallower, the marker is retroactively truncated to match
// (§4.3.1) — later iterations of a cycle can reveal a true start
// outside an inner call the first iteration happened to be inside of,
// but never the other way around, so the marker only ever shrinks.
func (c *TraceCollector) ReviseSpinCycleMarker(w WID, actorID ActorID, stack []CallStackElement, cycleStartsAtMethodCall, recursive bool) {
	if !c.enabled {
		return
	}
	depth := spinMarkerDepth(stack, cycleStartsAtMethodCall, recursive)
	if idx, already := c.spinMarkerIndex[w]; already {
		if depth < len(c.points[idx].CallStack) {
			c.TruncateSpinCycleMarker(w, depth)
		}
		return
	}
	c.OpenSpinCycleMarker(w, actorID, stack, cycleStartsAtMethodCall, recursive)
}
