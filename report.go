package weave

import (
	"fmt"
	"io"
	"strings"
)

// FormatReport renders a textual failure report in the style of
// spec.md §6: a per-worker actor table, an interleaving summary
// (switch / spin-cycle / obstruction-freedom / finish rows, with
// active-lock shown as a switch reason), and a
// detailed trace table with call-stack indentation, collapsing any
// detected infinite repetition behind a single marker line.
func FormatReport(w io.Writer, outcome *InvocationOutcome, trace *TraceCollector, scenario *Scenario) error {
	bw := &bufWriter{w: w}

	fmt.Fprintf(bw, "= %s =\n", outcome.Kind)
	if outcome.Err != nil {
		fmt.Fprintf(bw, "%v\n", outcome.Err)
	}
	bw.writeByte('\n')

	writeActorTable(bw, scenario)
	bw.writeByte('\n')

	if trace != nil && trace.Enabled() {
		writeInterleavingTable(bw, trace)
		bw.writeByte('\n')
		writeDetailedTrace(bw, trace)
	}

	return bw.err
}

type bufWriter struct {
	w   io.Writer
	err error
}

func (b *bufWriter) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.w.Write(p)
	if err != nil {
		b.err = err
	}
	return n, err
}

func (b *bufWriter) writeByte(c byte) { b.Write([]byte{c}) }

// writeActorTable renders one column per worker, listing its actor
// count (spec.md §6's "worker-column actor table").
func writeActorTable(w io.Writer, scenario *Scenario) {
	if scenario == nil {
		return
	}
	fmt.Fprintln(w, "Actors:")
	for wid, actors := range scenario.Actors {
		fmt.Fprintf(w, "  | worker %d | %d actor(s) |\n", wid, len(actors))
	}
}

// writeInterleavingTable renders one row per switch (with its reason,
// e.g. ActiveLock), spin cycle start, obstruction-freedom abort and
// finish point. Code locations are not listed here; they appear only
// in the detailed trace.
func writeInterleavingTable(w io.Writer, trace *TraceCollector) {
	fmt.Fprintln(w, "Interleaving:")
	for _, tp := range trace.Points() {
		switch tp.Kind {
		case KindSwitchEvent:
			fmt.Fprintf(w, "  | switch | worker %d -> worker %d | %s |\n", tp.WID, tp.SwitchTo, tp.SwitchReason)
		case KindSpinCycleStart:
			fmt.Fprintf(w, "  | spin cycle start | worker %d |\n", tp.WID)
		case KindObstructionFreedomAbort:
			fmt.Fprintf(w, "  | obstruction freedom violation | worker %d |\n", tp.WID)
		case KindFinish:
			fmt.Fprintf(w, "  | finish | worker %d |\n", tp.WID)
		}
	}
}

// writeDetailedTrace renders the full per-event trace with call-stack
// indentation, collapsing a run of points inside an open spin-cycle
// marker behind a single "repeat infinitely" header instead of
// emitting every iteration.
func writeDetailedTrace(w io.Writer, trace *TraceCollector) {
	fmt.Fprintln(w, "Detailed trace:")
	openSpin := make(map[WID]bool)
	collapsed := make(map[WID]bool)

	for _, tp := range trace.Points() {
		indent := strings.Repeat("  ", len(tp.CallStack)+1)

		switch tp.Kind {
		case KindSpinCycleStart:
			openSpin[tp.WID] = true
			collapsed[tp.WID] = false
			fmt.Fprintf(w, "%s/* The following events repeat infinitely: */\n", indent)
			continue
		case KindSwitchEvent:
			openSpin[tp.WID] = false
			collapsed[tp.WID] = false
			fmt.Fprintf(w, "%sswitch (worker %d -> worker %d, %s)\n", indent, tp.WID, tp.SwitchTo, tp.SwitchReason)
			continue
		}

		if openSpin[tp.WID] {
			if collapsed[tp.WID] {
				continue
			}
			collapsed[tp.WID] = true
		}

		name := traceLineLabel(tp)
		fmt.Fprintf(w, "%s%s\n", indent, name)
	}
}

func traceLineLabel(tp TracePoint) string {
	switch tp.Kind {
	case KindCodeLocation:
		return fmt.Sprintf("code location %d (worker %d)", tp.CLID, tp.WID)
	case KindStateRepr:
		return fmt.Sprintf("state: %s", tp.State)
	case KindFinish:
		return fmt.Sprintf("finish (worker %d)", tp.WID)
	default:
		return fmt.Sprintf("event (worker %d)", tp.WID)
	}
}
