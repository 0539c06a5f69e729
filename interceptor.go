package weave

// Interceptor is the event-interception surface instrumented code
// calls into (spec.md §4.7). Each worker owns one Interceptor, bound
// to its WID, so instrumented code never needs to thread worker
// identity through every call site beyond construction.
type Interceptor struct {
	w    WID
	sch  *Scheduler
	mon  *MonitorTracker
	objs *LocalObjectTracker
	cfg  *Config
}

// NewInterceptor constructs the interception surface for worker w.
func NewInterceptor(w WID, sch *Scheduler, mon *MonitorTracker, objs *LocalObjectTracker, cfg *Config) *Interceptor {
	return &Interceptor{w: w, sch: sch, mon: mon, objs: objs, cfg: cfg}
}

// trackLocal reports whether o should be treated as definitely local
// (and therefore exempt from switch-point treatment), honouring the
// EliminateLocalObjects config flag.
func (ic *Interceptor) trackLocal(o any) bool {
	return ic.cfg.EliminateLocalObjects && ic.objs != nil && ic.objs.IsLocal(o)
}

// BeforeRead is called immediately before a shared-memory read,
// identified by cl. owner, if non-nil, is the object the field being
// read belongs to; a read of a field on a local object is not a switch
// point.
func (ic *Interceptor) BeforeRead(cl CLID, owner any) {
	if ic.trackLocal(owner) {
		return
	}
	ic.sch.NewSwitchPoint(ic.w, cl)
}

// AfterRead attaches the observed value to the most recently recorded
// trace point, for diagnostic display only.
func (ic *Interceptor) AfterRead(value any) {
	// Value attachment happens best-effort; tracing is the only
	// consumer and it tolerates a stale/absent attachment. The value is
	// attached only when the last recorded point is this worker's own
	// code location (no switch happened in between).
	pts := ic.sch.trace.points
	if n := len(pts); n > 0 && pts[n-1].Kind == KindCodeLocation && pts[n-1].WID == ic.w {
		pts[n-1].Value = value
	}
}

// BeforeWrite is called immediately before a shared-memory write.
func (ic *Interceptor) BeforeWrite(cl CLID, owner, value any) {
	if ic.trackLocal(owner) {
		ic.objs.WriteField(owner, value)
		return
	}
	if ic.objs != nil {
		ic.objs.Unpublish(value)
	}
	ic.sch.NewSwitchPoint(ic.w, cl)
}

// BeforeAtomicCall is called immediately before any atomic
// read-modify-write operation (CompareAndSwap, Add, etc). Atomics are
// never treated as local even if their receiver is local, since their
// entire purpose is cross-goroutine synchronisation.
func (ic *Interceptor) BeforeAtomicCall(cl CLID) {
	ic.sch.NewSwitchPoint(ic.w, cl)
}

// BeforeLockAcquire is called before attempting to acquire monitor m.
// It loops internally: each failed attempt is itself a switch point
// (ReasonLockWait), matching spec.md §4.1's "park until acquired"
// semantics.
func (ic *Interceptor) BeforeLockAcquire(cl CLID, m MonitorID) {
	for !ic.mon.Acquire(ic.w, m) {
		ic.sch.ForcedSwitchPoint(ic.w, cl, ReasonLockWait)
	}
	// a successful acquire still mutates shared (monitor-ownership)
	// state, so it is itself an ordinary switch point the strategy may
	// choose to interleave at.
	ic.sch.NewSwitchPoint(ic.w, cl)
}

// BeforeLockRelease releases monitor m. A release is itself a switch
// point: it may unblock other workers whose turn the strategy should
// now consider.
func (ic *Interceptor) BeforeLockRelease(cl CLID, m MonitorID) error {
	if err := ic.mon.Release(m); err != nil {
		return err
	}
	ic.sch.NewSwitchPoint(ic.w, cl)
	return nil
}

// BeforeWait parks the current worker on monitor m until a matching
// Notify/NotifyAll call clears its awaiting-notify flag and it has
// reacquired m, per the §4.1 wait protocol.
func (ic *Interceptor) BeforeWait(cl CLID, m MonitorID) error {
	for {
		blocked, err := ic.mon.WaitOn(ic.w, m)
		if err != nil {
			return err
		}
		if !blocked {
			return nil
		}
		ic.sch.ForcedSwitchPoint(ic.w, cl, ReasonMonitorWait)
	}
}

// BeforeNotify notifies every worker parked on monitor m.
func (ic *Interceptor) BeforeNotify(cl CLID, m MonitorID) {
	ic.mon.Notify(m)
	ic.sch.NewSwitchPoint(ic.w, cl)
}

// BeforeNotifyAll is an alias for BeforeNotify: this engine models all
// notifications as notify-all (see MonitorTracker.Notify).
func (ic *Interceptor) BeforeNotifyAll(cl CLID, m MonitorID) {
	ic.BeforeNotify(cl, m)
}

// BeforePark suspends the current worker's coroutine, used for
// actor-level structured-concurrency suspension (distinct from a
// monitor wait): the worker is marked suspended and switched away
// from. SentinelCLID is used so the loop detector never counts park
// events toward spin-cycle visit thresholds.
func (ic *Interceptor) BeforePark() {
	ic.sch.NewSwitchPoint(ic.w, SentinelCLID)
	ic.sch.MarkSuspended(ic.w)
	ic.sch.AwaitTurn(ic.w)
}

// AfterUnpark marks the current worker as resumed, called once the
// scheduler has selected it to continue its suspended continuation.
func (ic *Interceptor) AfterUnpark() {
	ic.sch.MarkResumed(ic.w)
}

// BeforeMethodCall records a method-call trace point and pushes a new
// call-stack frame, returning the frame's MethodID for the caller to
// pass back to AfterMethodCall.
func (ic *Interceptor) BeforeMethodCall(actorID ActorID, name string) MethodID {
	tp := TracePoint{Kind: KindCodeLocation, WID: ic.w, ActorID: actorID}
	return ic.sch.Stack(ic.w).BeforeMethodCall(tp)
}

// AfterMethodCall pops the current call-stack frame. suspended should
// be true if the call is ending because the worker's coroutine
// suspended mid-call (preserving the MethodID for the eventual
// resumption), false for an ordinary return.
func (ic *Interceptor) AfterMethodCall(suspended bool) {
	ic.sch.Stack(ic.w).AfterMethodCall(suspended)
}

// EnterIgnoredSection marks the start of a region whose reads/writes
// must not be treated as switch points (used both for instrumentation
// re-entry guards and explicit user-requested ignored regions, per
// spec.md's ignoredSectionDepth counter).
func (ic *Interceptor) EnterIgnoredSection() { ic.sch.EnterIgnoredSection(ic.w) }

// LeaveIgnoredSection ends the most recently entered ignored section.
func (ic *Interceptor) LeaveIgnoredSection() { ic.sch.LeaveIgnoredSection(ic.w) }

// NewObjectCreation registers o as freshly allocated and therefore
// local until proven otherwise (spec.md §4.5).
func (ic *Interceptor) NewObjectCreation(o any) {
	if ic.cfg.EliminateLocalObjects && ic.objs != nil {
		ic.objs.NewObjectCreation(o)
	}
}
