// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package weave implements the managed strategy engine at the core of a
// concurrency model checker: a cooperative scheduler that drives a fixed
// scenario of worker goroutines through chosen thread interleavings,
// detects non-linearizable results, deadlocks, live-locks and obstruction
// freedom violations, and reconstructs a minimal, human-readable trace of
// the interleaving that caused the failure.
//
// # Architecture
//
// The engine is built around a [Scheduler] core that owns the cooperative
// baton ("which worker may run now"). Instrumented user code yields
// control to the scheduler through the [Interceptor] surface
// (BeforeRead, BeforeWrite, BeforeLockAcquire, ...). A [LoopDetector]
// watches per-worker code-location visits to distinguish transient
// high-iteration loops from true live-locks, and on replay reconstructs
// a compact "this cycle repeats forever" trace. A [MonitorTracker] gives
// deterministic semantics to mutual-exclusion primitives. A
// [TraceCollector] records the interleaving for diagnostic replay, and
// [FormatReport] renders it as a human-readable failure report.
//
// An [InvocationDriver] runs one scenario attempt end to end; on a
// failure whose kind permits it, the driver re-runs the same
// interleaving with tracing enabled and compares outcomes to guard
// against non-determinism in the reported trace.
//
// # Out of scope
//
// Byte-code/IR instrumentation, the scenario generator and search
// strategy (consumed via the [Strategy] interface), the linearizability
// verifier (consumed via the [Verifier] interface), the runner that
// physically starts worker goroutines (consumed via the [Runner]
// interface), and any visualiser are all external collaborators.
//
// # Thread Safety
//
// Exactly one worker holds the baton at a time; all scheduler, tracker
// and collector state is mutated only by the current baton holder. No
// internal locks are required for that state — the baton itself is the
// mutual-exclusion primitive. Package-level logging configuration
// ([SetLogger]) is the one piece of cross-cutting state and is
// protected independently.
package weave
