package weave

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// diagnosticLimiter throttles repeated diagnostic log lines (the
// scheduler routes its spin-cycle lines through it), so a scenario that spins through
// thousands of invocation attempts does not flood the configured
// logger. Grounded on catrate.Limiter's sliding-window category
// model: each distinct (worker, reason) pair is its own category, so
// a noisy worker does not starve another's diagnostics.
type diagnosticLimiter struct {
	limiter *catrate.Limiter
}

// newDiagnosticLimiter builds a limiter allowing at most 1 diagnostic
// line per category per 2 seconds, and at most 20 per category per
// minute, mirroring a typical catrate.NewLimiter rate map.
func newDiagnosticLimiter() *diagnosticLimiter {
	return &diagnosticLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			2 * time.Second: 1,
			time.Minute:      20,
		}),
	}
}

type diagnosticCategory struct {
	wid    WID
	reason string
}

// allow reports whether a diagnostic event for (w, reason) should be
// emitted now.
func (d *diagnosticLimiter) allow(w WID, reason string) bool {
	if d == nil || d.limiter == nil {
		return true
	}
	_, ok := d.limiter.Allow(diagnosticCategory{wid: w, reason: reason})
	return ok
}
