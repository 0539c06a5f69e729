// logging.go - structured logging for the weave engine.
//
// Diagnostic events (switches, spin-cycle detection, invocation
// outcomes) are emitted through github.com/joeycumines/logiface, with a
// log/slog-backed writer (via github.com/joeycumines/logiface-slog)
// wired in by default. EngineLogger is fixed to the logiface-slog event
// type, so a replacement passed to SetLogger or WithLogger must be built
// on that adapter; it may write to any slog.Handler.
//
// Design Decision: a package-level default logger is appropriate here
// because logging is an infrastructure cross-cutting concern and every
// Scheduler/InvocationDriver shares logging semantics unless a Config
// explicitly overrides it (WithLogger).
package weave

import (
	"log/slog"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// EngineLogger is the logiface logger type used throughout the engine.
type EngineLogger = logiface.Logger[*islog.Event]

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *EngineLogger
	globalLogger      struct {
		sync.RWMutex
		logger *EngineLogger
	}
)

// defaultEngineLogger returns the package default: a logiface.Logger
// writing NOTICE-and-above events as text to os.Stderr via the slog
// adapter. It is constructed lazily and lives for the process lifetime.
func defaultEngineLogger() *EngineLogger {
	defaultLoggerOnce.Do(func() {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
		defaultLoggerInst = islog.L.New(
			islog.L.WithSlogHandler(handler),
			logiface.WithLevel[*islog.Event](logiface.LevelNotice),
		)
	})
	if l := getGlobalLogger(); l != nil {
		return l
	}
	return defaultLoggerInst
}

// SetLogger installs a process-wide default EngineLogger, used by any
// Config that does not explicitly set one via WithLogger.
func SetLogger(l *EngineLogger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

func getGlobalLogger() *EngineLogger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// logSwitch emits a debug-level structured event describing one baton
// hand-off, mirroring a trace collector Switch point.
func logSwitch(l *EngineLogger, from, to WID, reason SwitchReason) {
	if l == nil {
		return
	}
	l.Debug().
		Str("category", "switch").
		Int("from", from).
		Int("to", to).
		Str("reason", reason.String()).
		Log("baton switch")
}

// logSpinCycle emits a notice-level structured event describing a
// measured spin cycle, used both for operator-facing diagnostics and as
// the hook a rate-limited sink (see ratelimit.go) throttles.
func logSpinCycle(l *EngineLogger, w WID, period, leadIn int) {
	if l == nil {
		return
	}
	l.Notice().
		Str("category", "spin_cycle").
		Int("wid", w).
		Int("period", period).
		Int("leadIn", leadIn).
		Log("spin cycle detected")
}

// logOutcome emits an info-or-error-level structured event describing a
// completed invocation.
func logOutcome(l *EngineLogger, o *InvocationOutcome) {
	if l == nil || o == nil {
		return
	}
	b := l.Info()
	if o.Kind != OutcomeCompleted {
		b = l.Err()
	}
	b.Str("category", "invocation").
		Str("outcome", o.Kind.String()).
		Log("invocation finished")
}
