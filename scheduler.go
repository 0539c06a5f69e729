package weave

import (
	"runtime"
	"sync/atomic"
)

// spinBeforeYield is the number of busy-wait iterations AwaitTurn
// performs before calling runtime.Gosched(), mirroring
// eventloop.Loop's FastPoller busy-spin-then-yield pattern used to
// avoid scheduler thrash under heavy contention while still keeping
// latency low in the common case.
const spinBeforeYield = 100_000

// Scheduler is the cooperative baton-passing core described in
// spec.md §4.6. Exactly one worker holds the baton at a time; every
// other worker spins in AwaitTurn. currentWorker is the only field
// read concurrently by non-owning goroutines, so it alone needs
// atomic/lock-free treatment — mirroring eventloop.FastState's
// CAS-only, no-lock design, generalised here from a fixed five-state
// machine to an N-way worker selector. Every other field is written
// only by the current baton holder and read by the next holder only
// after observing the atomic hand-off, which establishes a
// happens-before edge under the Go memory model (the same reasoning
// eventloop.FastState relies on for its unguarded auxiliary fields).
type Scheduler struct {
	n int

	currentWorker atomic.Int32 // WID of the baton holder, or -1 once all finished
	suddenResult  atomic.Pointer[InvocationOutcome]

	finished             []bool
	suspended            []bool
	currentActorID       []ActorID
	ignoredSectionDepth  []int
	stacks               []*CallStackTracker

	cfg       *Config
	detector  *LoopDetector
	monitors  *MonitorTracker
	trace     *TraceCollector
	strategy  Strategy
	runner    Runner

	blockingByActor []bool

	diagLimiter *diagnosticLimiter
}

// NewScheduler constructs a scheduler for a width-n scenario.
func NewScheduler(n int, cfg *Config, detector *LoopDetector, monitors *MonitorTracker, trace *TraceCollector, strategy Strategy, runner Runner) *Scheduler {
	s := &Scheduler{
		n:                   n,
		finished:            make([]bool, n),
		suspended:           make([]bool, n),
		currentActorID:      make([]ActorID, n),
		ignoredSectionDepth: make([]int, n),
		stacks:              make([]*CallStackTracker, n),
		cfg:                 cfg,
		detector:            detector,
		monitors:            monitors,
		trace:               trace,
		strategy:            strategy,
		runner:              runner,
		diagLimiter:         newDiagnosticLimiter(),
	}
	for i := range s.stacks {
		s.stacks[i] = NewCallStackTracker()
	}
	s.currentWorker.Store(0)
	return s
}

// Stack returns worker w's call-stack tracker, used by the Interceptor
// to push/pop frames and snapshot trace points.
func (s *Scheduler) Stack(w WID) *CallStackTracker { return s.stacks[w] }

// InIgnoredSection reports whether worker w is currently inside an
// ignored section (instrumentation re-entry guard, or explicit
// user-requested ignored region).
func (s *Scheduler) InIgnoredSection(w WID) bool { return s.ignoredSectionDepth[w] > 0 }

// EnterIgnoredSection increments worker w's ignored-section depth.
func (s *Scheduler) EnterIgnoredSection(w WID) { s.ignoredSectionDepth[w]++ }

// LeaveIgnoredSection decrements worker w's ignored-section depth.
func (s *Scheduler) LeaveIgnoredSection(w WID) {
	if s.ignoredSectionDepth[w] > 0 {
		s.ignoredSectionDepth[w]--
	}
}

// SetCurrentActor records which actor worker w is currently executing,
// used by trace points and the obstruction-freedom check.
func (s *Scheduler) SetCurrentActor(w WID, actorID ActorID) { s.currentActorID[w] = actorID }

// AwaitTurn busy-waits until worker w holds the baton. If a sudden
// result has been raised, it panics with forcibleFinish instead.
func (s *Scheduler) AwaitTurn(w WID) {
	spins := 0
	for {
		if res := s.suddenResult.Load(); res != nil {
			panic(forcibleFinish{})
		}
		if int(s.currentWorker.Load()) == w {
			return
		}
		spins++
		if spins < spinBeforeYield {
			continue
		}
		spins = 0
		runtime.Gosched()
	}
}

// abort raises outcome as the invocation's sudden result and panics
// with forcibleFinish, unwinding the calling worker goroutine to the
// driver's recovery point. Only the first caller's outcome wins; later
// callers racing to abort are folded into an AggregateError, the one
// case spec.md's error taxonomy actually constructs one.
func (s *Scheduler) abort(outcome InvocationOutcome) {
	if !s.suddenResult.CompareAndSwap(nil, &outcome) {
		prior := s.suddenResult.Load()
		agg := &AggregateError{Errors: []error{prior.Err, outcome.Err}}
		merged := &InvocationOutcome{Kind: prior.Kind, Err: agg, Results: outcome.Results}
		s.suddenResult.Store(merged)
	}
	logOutcome(s.cfg.Logger, &outcome)
	panic(forcibleFinish{})
}

// SuddenResult returns the invocation's sudden result, if one has been
// raised.
func (s *Scheduler) SuddenResult() *InvocationOutcome { return s.suddenResult.Load() }

// MarkFinished records that worker w has completed all of its actors
// and performs a switch away from it (spec.md §4.6: a finished worker
// can never hold the baton again).
func (s *Scheduler) MarkFinished(w WID) {
	s.finished[w] = true
	s.trace.RecordFinish(w, s.currentActorID[w], s.stacks[w].Snapshot())
	if s.allFinished() {
		s.currentWorker.Store(-1)
		return
	}
	// a finishing worker can never hold the baton again, so this hand-off
	// is forced: if no other worker is active, that is a genuine deadlock.
	s.doSwitch(w, ReasonStrategy, true)
}

// MarkSuspended records that worker w's coroutine has suspended
// (spec.md's coroutine-suspension hook) and switches away from it. The
// worker remains eligible to be selected again once Runner.CanResume
// reports true.
func (s *Scheduler) MarkSuspended(w WID) {
	s.suspended[w] = true
	// w itself just became ineligible, so this hand-off is forced: if no
	// other worker can run either, that is a genuine deadlock.
	s.doSwitch(w, ReasonSuspended, true)
}

// MarkResumed clears worker w's suspended flag, called by the runner
// once it has decided to resume w's continuation and before handing it
// the baton again.
func (s *Scheduler) MarkResumed(w WID) { s.suspended[w] = false }

func (s *Scheduler) allFinished() bool {
	for _, f := range s.finished {
		if !f {
			return false
		}
	}
	return true
}

// isActive reports whether worker w is a legal switch target: not
// finished, not blocked on a monitor, and either not suspended or able
// to be resumed by the runner.
func (s *Scheduler) isActive(w WID) bool {
	if s.finished[w] {
		return false
	}
	if s.monitors.IsWaiting(w) {
		return false
	}
	if s.suspended[w] && !s.runner.CanResume(w) {
		return false
	}
	return true
}

func (s *Scheduler) activeCandidates(except WID) []WID {
	out := make([]WID, 0, s.n)
	for w := 0; w < s.n; w++ {
		if w != except && s.isActive(w) {
			out = append(out, w)
		}
	}
	return out
}

// NewSwitchPoint is called by the Interceptor at every potential
// switch point (shared read/write, atomic op, lock op, park, wait). It
// consults the loop detector first; if the detector orders a forced
// finish, it aborts the worker with the detector's outcome. Otherwise
// it asks the search strategy whether to switch voluntarily. If either
// source calls for a switch, it performs one with the given reason,
// applying the spin-cycle marker policy from trace.go when the switch
// is due to active-lock detection.
func (s *Scheduler) NewSwitchPoint(w WID, cl CLID) {
	if s.InIgnoredSection(w) {
		return
	}
	s.trace.RecordCodeLocation(w, s.currentActorID[w], cl, s.stacks[w].Snapshot())

	mustSwitch, advice := s.detector.VisitCodeLocation(w, cl)

	if advice.ForceFinish {
		if s.cfg.CheckObstructionFreedom && !s.actorIsBlocking(w) {
			s.trace.RecordObstructionFreedomAbort(w, s.currentActorID[w], s.stacks[w].Snapshot())
			s.abort(InvocationOutcome{Kind: OutcomeObstructionFreedomViolation, Err: ErrObstructionFreedomViolation})
			return
		}
		s.abort(InvocationOutcome{Kind: advice.Outcome, Err: outcomeError(advice.Outcome)})
		return
	}

	if !mustSwitch && s.strategy != nil {
		mustSwitch = s.strategy.ShouldSwitch(w)
	}
	if !mustSwitch {
		return
	}

	reason := ReasonStrategy
	if advice.ActiveLock {
		if advice.Recursive {
			reason = ReasonActiveLockRecursive
		} else {
			reason = ReasonActiveLock
		}
	}
	if reason == ReasonActiveLock || reason == ReasonActiveLockRecursive {
		if s.cfg.CheckObstructionFreedom && !s.actorIsBlocking(w) {
			s.trace.RecordObstructionFreedomAbort(w, s.currentActorID[w], s.stacks[w].Snapshot())
			s.abort(InvocationOutcome{Kind: OutcomeObstructionFreedomViolation, Err: ErrObstructionFreedomViolation})
			return
		}
		s.trace.ReviseSpinCycleMarker(w, s.currentActorID[w], s.stacks[w].Snapshot(), cl.IsHelper(), advice.Recursive)
		if s.diagLimiter.allow(w, "spin_cycle") {
			logSpinCycle(s.cfg.Logger, w, 0, 0)
		}
	}
	// this is a voluntary switch (strategy request or active-lock spin
	// detection): w itself is still active, so with no other candidate
	// to hand off to, doSwitch must just return the baton to w rather
	// than declare a deadlock.
	s.doSwitch(w, reason, false)
	// doSwitch only publishes the hand-off; the outgoing worker must
	// itself wait for the baton to come back before its instrumented
	// code may proceed.
	s.AwaitTurn(w)
}

// actorIsBlocking reports whether the actor currently running on
// worker w is permitted to block (spec.md's obstruction-freedom
// carve-out). Populated by the driver via blockingByActor.
func (s *Scheduler) actorIsBlocking(w WID) bool {
	return s.blockingByActor != nil && s.blockingByActor[w]
}

// ForcedSwitchPoint is used for events that unconditionally block the
// calling worker until some other worker changes shared state: a
// failed lock acquire, or a monitor wait that has not yet been
// notified. Unlike NewSwitchPoint, the switch here is never left to
// the search strategy's discretion — the worker genuinely cannot
// proceed — but it still honours the obstruction-freedom check (a
// non-blocking actor that ends up here is itself the violation) and
// still feeds the loop detector so repeated blocked attempts are
// tracked for spin-cycle/livelock purposes.
func (s *Scheduler) ForcedSwitchPoint(w WID, cl CLID, reason SwitchReason) {
	if s.InIgnoredSection(w) {
		return
	}
	s.trace.RecordCodeLocation(w, s.currentActorID[w], cl, s.stacks[w].Snapshot())
	s.detector.VisitCodeLocation(w, cl)

	if s.cfg.CheckObstructionFreedom && !s.actorIsBlocking(w) {
		s.trace.RecordObstructionFreedomAbort(w, s.currentActorID[w], s.stacks[w].Snapshot())
		s.abort(InvocationOutcome{Kind: OutcomeObstructionFreedomViolation, Err: ErrObstructionFreedomViolation})
		return
	}

	// a failed acquire or an un-notified wait means w genuinely cannot
	// proceed, so this hand-off is forced: with no other active worker,
	// that is a real deadlock.
	s.doSwitch(w, reason, true)
	s.AwaitTurn(w)
}

func outcomeError(k OutcomeKind) error {
	switch k {
	case OutcomeDeadlock:
		return ErrDeadlock
	default:
		return nil
	}
}

// doSwitch performs the actual baton hand-off: it asks the strategy
// (or, with no strategy, takes the lowest-numbered candidate) which
// active worker to run next, records the switch, closes any open spin
// marker for the outgoing worker, notifies the loop detector of the
// hand-off, and publishes the new currentWorker.
//
// forced distinguishes spec.md §4.6's two empty-candidate behaviors:
// a forced switch (a failed lock acquire, an un-notified monitor wait,
// a finishing worker, or a suspending one) means w itself cannot
// proceed, so no active candidate is a genuine Deadlock (§7: "no
// active worker exists"). An optional switch (a voluntary strategy
// request, or an active-lock spin-cycle switch) leaves w itself still
// active, so with no other candidate to hand off to, the baton simply
// stays with w.
func (s *Scheduler) doSwitch(w WID, reason SwitchReason, forced bool) {
	candidates := s.activeCandidates(w)
	if len(candidates) == 0 {
		if forced {
			s.abort(InvocationOutcome{Kind: OutcomeDeadlock, Err: ErrDeadlock})
		}
		return
	}

	next := candidates[0]
	if s.strategy != nil {
		next = s.strategy.ChooseNext(w, candidates)
	}

	s.trace.RecordSwitch(w, next, reason, s.stacks[w].Snapshot())
	// an active-lock switch hands the baton away mid-cycle, not out of
	// it: the marker must stay open so a later iteration can still
	// retroactively truncate it (§4.3.1) once w is rescheduled. Any
	// other reason means w has genuinely left the cycle.
	if reason != ReasonActiveLock && reason != ReasonActiveLockRecursive {
		s.trace.CloseSpinCycleMarker(w)
	}
	s.detector.OnWorkerSwitch(w)

	s.currentWorker.Store(int32(next))
}

// blockingByActor, set once by the driver before an invocation begins,
// tells NewSwitchPoint which workers are currently running a
// Blocking-flagged actor (spec.md's obstruction-freedom carve-out).
// It is a plain field (not a parameter) because NewSwitchPoint's
// signature is fixed by the Interceptor call sites.
func (s *Scheduler) setBlockingByActor(flags []bool) { s.blockingByActor = flags }
