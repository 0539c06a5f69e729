package weave

import "context"

// Strategy is the external search-strategy oracle consumed by the
// scheduler: it decides, at each switch point, whether to switch away
// from the current worker, and which of the active candidates to
// switch to. Implementations range from a fixed sequence to a
// randomised or model-checking tree search (out of scope for this
// module; see spec.md §1). The module itself ships no implementation.
type Strategy interface {
	// ShouldSwitch reports whether the scheduler should hand off the
	// baton away from worker w at the current switch point, independent
	// of any spin-cycle detection.
	ShouldSwitch(w WID) bool

	// ChooseNext picks the next worker to run from among (a non-empty
	// slice of currently-active candidates), given that fromW is
	// relinquishing the baton. Never called with an empty among.
	ChooseNext(fromW WID, among []WID) WID
}

// Runner is the external collaborator that physically owns the worker
// goroutines: the scheduler calls out to it to learn whether a
// suspended worker's continuation can be resumed. The scheduler does
// not call CaptureStateRepresentation.
type Runner interface {
	// CanResume reports whether worker w, currently suspended, has a
	// continuation the scheduler may select to resume.
	CanResume(w WID) bool

	// CaptureStateRepresentation returns a snapshot of the scenario's
	// shared state for diagnostic purposes, if the runner supports it.
	CaptureStateRepresentation() (string, bool)
}

// Verifier checks a completed invocation's actor outcomes against a
// sequential specification of the data structure under test.
type Verifier interface {
	Verify(results []ActorResult) error
}

// Actor describes one scheduled operation: its blocking-policy flags
// (used to suppress false obstruction-freedom reports during
// known-blocking actors) and the callable body instrumented user code
// executes.
type Actor struct {
	// Blocking indicates this actor legitimately blocks (e.g. it is
	// expected to wait on a monitor another actor will notify).
	Blocking bool
	// CausesBlocking indicates this actor may cause other workers to
	// block (e.g. it holds a lock across a yield point).
	CausesBlocking bool

	// Run is the actor's body. ctx exposes the Interceptor the actor's
	// instrumented code must call into, plus the worker/actor identity.
	Run func(ctx context.Context, actor *ActorContext) (any, error)
}

// ActorContext is passed to every Actor.Run invocation, giving it
// access to the event interception surface and its own identity.
type ActorContext struct {
	WID         WID
	ActorID     ActorID
	Interceptor *Interceptor
}

// Scenario is the fixed set of actor sequences, one column per worker,
// that one invocation drives through an interleaving.
type Scenario struct {
	// Actors[w] is the sequence of actors worker w executes, in order.
	Actors [][]Actor
}

// Width returns the scenario's parallel width (number of workers).
func (s *Scenario) Width() int { return len(s.Actors) }
