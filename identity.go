package weave

// WID is a worker identity: a small integer in [0, N) where N is the
// parallel width of the scenario. A worker corresponds to one column of
// actors executed sequentially.
type WID = int

// CLID is a code location identifier, assigned at instrumentation time.
// By convention the least significant bit encodes a kind flag: even
// CLIDs are potential switch points (shared reads, writes, atomic calls,
// lock ops, parks, waits); odd CLIDs are non-switch helper events
// (method enter/exit, receiver/parameter views). Negative CLIDs encode
// method-argument value views used for loop-equivalence.
type CLID int32

// LeastCodeLocationID is the first CLID handed out by a monotone
// allocator at instrumentation time.
const LeastCodeLocationID CLID = 2

// SentinelCLID is reserved for coroutine-suspension events and never
// contributes to loop-detector visit counts.
const SentinelCLID CLID = -1

// IsSwitchPoint reports whether cl is a potential switch point (even,
// non-negative, non-sentinel CLIDs).
func (cl CLID) IsSwitchPoint() bool {
	return cl != SentinelCLID && cl >= 0 && cl&1 == 0
}

// IsHelper reports whether cl is a non-switch helper event (method
// enter/exit, receiver/parameter views).
func (cl CLID) IsHelper() bool {
	return cl >= 0 && cl&1 == 1
}

// IsValueView reports whether cl encodes a method receiver/parameter
// pseudo-event used only for loop-equivalence comparisons.
func (cl CLID) IsValueView() bool {
	return cl < 0 && cl != SentinelCLID
}

// MonitorID is any opaque reference with identity (pointer-equality)
// semantics supplied by the user. The tracker never inspects contents;
// it only compares identity, which for Go's `any` interface means two
// MonitorID values are equal iff they hold the same dynamic type and
// the same pointer (for pointer-shaped monitors, which is the only
// supported monitor shape).
type MonitorID = any

// ActorID identifies one actor (a single scheduled operation) within a
// worker's column.
type ActorID = int

// MethodID is stable across suspension and resumption of the same
// logical call, used to attach callsite context to trace points that
// span a coroutine suspend/resume pair.
type MethodID = uint64
