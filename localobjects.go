package weave

import "reflect"

// localObjectKey identifies a tracked reference by pointer identity,
// obtained via reflect.ValueOf(x).Pointer() for pointer-shaped values.
// Unlike eventloop/registry.go's weak.Pointer[promise] map (which must
// retain a dereferenceable handle to a promise it later needs to read),
// this tracker only ever needs a yes/no membership test, so storing the
// bare integer identity rather than a weak.Pointer is sufficient and
// keeps the tracker from holding even a weak reference to user objects.
type localObjectKey = uintptr

// LocalObjectTracker tracks objects not yet published to shared state,
// so that operations on them need not be treated as switch points. The
// policy is conservative: any doubt resolves to "shared".
type LocalObjectTracker struct {
	local map[localObjectKey]struct{}
}

// NewLocalObjectTracker constructs an empty tracker.
func NewLocalObjectTracker() *LocalObjectTracker {
	return &LocalObjectTracker{local: make(map[localObjectKey]struct{})}
}

func keyOf(o any) (localObjectKey, bool) {
	if o == nil {
		return 0, false
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Chan, reflect.Map, reflect.Func:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	default:
		// value types have no stable identity; conservatively not
		// trackable as local.
		return 0, false
	}
}

// NewObjectCreation marks o as local: unreachable from any shared root.
func (t *LocalObjectTracker) NewObjectCreation(o any) {
	if key, ok := keyOf(o); ok {
		t.local[key] = struct{}{}
	}
}

// IsLocal reports whether o is currently tracked as local.
func (t *LocalObjectTracker) IsLocal(o any) bool {
	key, ok := keyOf(o)
	if !ok {
		return false
	}
	_, tracked := t.local[key]
	return tracked
}

// WriteField models a field write obj.field = value. If obj is local,
// value inherits locality (a dependency edge, over-approximated here as
// "also local"). If obj is not local, value is unpublished: any
// existing local-tracking entry for it is removed, since it is now
// reachable from a (potentially) shared root.
func (t *LocalObjectTracker) WriteField(obj, value any) {
	if t.IsLocal(obj) {
		if key, ok := keyOf(value); ok {
			t.local[key] = struct{}{}
		}
		return
	}
	if key, ok := keyOf(value); ok {
		delete(t.local, key)
	}
}

// Unpublish removes o from local tracking unconditionally, used when
// the caller cannot prove containment and must be conservative.
func (t *LocalObjectTracker) Unpublish(o any) {
	if key, ok := keyOf(o); ok {
		delete(t.local, key)
	}
}
