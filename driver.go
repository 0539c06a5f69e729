package weave

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// RunResult is the outcome of InvocationDriver.Run: the final
// classified outcome plus, when tracing was enabled to diagnose a
// failure, the collected trace log ready for FormatReport.
type RunResult struct {
	Outcome InvocationOutcome
	Trace   *TraceCollector
}

// maxSpinRemeasurements bounds the first-time-spin / remeasure retry
// loop of spec.md §4.2: each remeasurement either succeeds in learning
// a cycle (so the next attempt switches early instead of spinning) or
// the scenario is not actually cyclic and some other outcome emerges.
// A real tree-search strategy converges in a handful of iterations;
// this ceiling exists only to turn a strategy bug into a returned
// error instead of an infinite loop.
const maxSpinRemeasurements = 64

// InvocationDriver runs one scenario attempt end to end (spec.md's
// C8): it owns the retry loop that turns a first-time spin-cycle
// detection into a measured, learned cycle; re-runs with tracing
// enabled to build a diagnostic report on failure; and cross-checks
// that re-run for non-determinism before returning.
type InvocationDriver struct {
	cfg      *Config
	strategy Strategy
	verifier Verifier

	// StateCapture, if set, backs the default runner's
	// CaptureStateRepresentation. The scheduler does not call that
	// method, so StateCapture is never invoked during a run.
	StateCapture func() string
}

// NewInvocationDriver constructs a driver. verifier may be nil, in
// which case actor results are never checked against a sequential
// specification (only deadlock/exception/livelock outcomes can fail).
func NewInvocationDriver(cfg *Config, strategy Strategy, verifier Verifier) *InvocationDriver {
	return &InvocationDriver{cfg: cfg, strategy: strategy, verifier: verifier}
}

// driverRunner is the default Runner: actors never genuinely suspend
// beyond a voluntary BeforePark/AfterUnpark yield, so a parked worker
// is always immediately resumable.
type driverRunner struct{ d *InvocationDriver }

func (r driverRunner) CanResume(WID) bool { return true }

func (r driverRunner) CaptureStateRepresentation() (string, bool) {
	if r.d.StateCapture == nil {
		return "", false
	}
	return r.d.StateCapture(), true
}

// Run executes scenario to a final outcome.
func (d *InvocationDriver) Run(ctx context.Context, scenario *Scenario) (*RunResult, error) {
	trie := newCycleTrie()

	for attempt := 0; attempt < maxSpinRemeasurements; attempt++ {
		detector := NewLoopDetector(d.cfg.HangingDetectionThreshold, d.cfg.LivelockEventsThreshold, trie)
		trace := NewTraceCollector(false, d.cfg.Logger)
		outcome := d.runOnce(ctx, scenario, detector, trace)

		if outcome.Kind == OutcomeSpinCycleFoundFirstTime {
			measureDetector := NewLoopDetector(d.cfg.HangingDetectionThreshold, d.cfg.LivelockEventsThreshold, trie)
			measureDetector.EnableExtraEventsTracking()
			measureTrace := NewTraceCollector(false, d.cfg.Logger)
			d.runOnce(ctx, scenario, measureDetector, measureTrace)
			measureDetector.LearnCycle()
			continue
		}

		if outcome.Kind == OutcomeCompleted && d.verifier != nil {
			if err := d.verifier.Verify(outcome.Results); err != nil {
				outcome.Kind = OutcomeIncorrectResults
				outcome.Err = fmt.Errorf("%w: %v", ErrIncorrectResults, err)
			}
		}

		logOutcome(d.cfg.Logger, &outcome)

		if outcome.Kind == OutcomeCompleted {
			return &RunResult{Outcome: outcome}, nil
		}
		return d.diagnose(ctx, scenario, trie, outcome)
	}

	return nil, fmt.Errorf("weave: exceeded %d spin-cycle remeasurement attempts without convergence", maxSpinRemeasurements)
}

// diagnose re-runs scenario with tracing enabled, using the
// now-informed trie so the same cycle (if any) is detected early
// rather than re-discovered, and cross-checks that the re-run produced
// the same outcome kind as the original failing attempt, per spec.md's
// non-determinism check.
func (d *InvocationDriver) diagnose(ctx context.Context, scenario *Scenario, trie *cycleTrie, original InvocationOutcome) (*RunResult, error) {
	detector := NewLoopDetector(d.cfg.HangingDetectionThreshold, d.cfg.LivelockEventsThreshold, trie)
	trace := NewTraceCollector(true, d.cfg.Logger)
	replay := d.runOnce(ctx, scenario, detector, trace)
	if replay.Kind == OutcomeCompleted && d.verifier != nil {
		if err := d.verifier.Verify(replay.Results); err != nil {
			replay.Kind = OutcomeIncorrectResults
		}
	}

	if replay.Kind != original.Kind {
		nd := InvocationOutcome{
			Kind: OutcomeNonDeterminism,
			Err: fmt.Errorf("%w: first pass %s, replay pass %s", ErrNonDeterminism, original.Kind, replay.Kind),
		}
		logOutcome(d.cfg.Logger, &nd)
		return &RunResult{Outcome: nd, Trace: trace}, nd.Err
	}

	return &RunResult{Outcome: original, Trace: trace}, original.Err
}

// runOnce spawns one goroutine per worker, runs the scenario to
// completion (or to a sudden result), and returns the classified
// outcome.
func (d *InvocationDriver) runOnce(ctx context.Context, scenario *Scenario, detector *LoopDetector, trace *TraceCollector) InvocationOutcome {
	n := scenario.Width()
	monitors := NewMonitorTracker(n)
	strategy := d.strategy
	runner := driverRunner{d: d}

	sch := NewScheduler(n, d.cfg, detector, monitors, trace, strategy, runner)

	blocking := make([]bool, n)
	sch.setBlockingByActor(blocking)

	var objs *LocalObjectTracker
	if d.cfg.EliminateLocalObjects {
		objs = NewLocalObjectTracker()
	}

	results := make([][]ActorResult, n)
	var wg sync.WaitGroup
	wg.Add(n)

	for w := 0; w < n; w++ {
		w := w
		ic := NewInterceptor(w, sch, monitors, objs, d.cfg)
		go d.runWorker(ctx, w, scenario.Actors[w], sch, ic, blocking, &results[w], &wg)
	}

	wg.Wait()

	if res := sch.SuddenResult(); res != nil {
		out := *res
		out.Results = flatten(results)
		return out
	}

	return InvocationOutcome{Kind: OutcomeCompleted, Results: flatten(results)}
}

func flatten(results [][]ActorResult) []ActorResult {
	var out []ActorResult
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (d *InvocationDriver) runWorker(ctx context.Context, w WID, actors []Actor, sch *Scheduler, ic *Interceptor, blocking []bool, out *[]ActorResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(forcibleFinish); ok {
				return
			}
			sch.abort(InvocationOutcome{
				Kind: OutcomeUnexpectedException,
				Err:  fmt.Errorf("%w: %v", ErrUnexpectedException, PanicError{Value: r, Stack: debug.Stack()}),
			})
		}
	}()

	sch.AwaitTurn(w)

	results := make([]ActorResult, 0, len(actors))
	for actorID, actor := range actors {
		blocking[w] = actor.Blocking
		sch.SetCurrentActor(w, actorID)
		if !sch.Stack(w).IsEmpty() {
			sch.abort(InvocationOutcome{
				Kind: OutcomeValidationFailure,
				Err:  fmt.Errorf("%w: worker %d entered actor %d with a non-empty call stack", ErrValidationFailure, w, actorID),
			})
		}
		val, err := actor.Run(ctx, &ActorContext{WID: w, ActorID: actorID, Interceptor: ic})
		results = append(results, ActorResult{WID: w, ActorID: actorID, Value: val, Err: err})
	}
	*out = results

	sch.MarkFinished(w)
}
