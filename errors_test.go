package weave

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationOutcome_ErrorAndUnwrap(t *testing.T) {
	o := &InvocationOutcome{Kind: OutcomeDeadlock, Err: ErrDeadlock}
	assert.ErrorIs(t, o, ErrDeadlock)
	assert.Contains(t, o.Error(), "Deadlock")
}

func TestInvocationOutcome_NilSafe(t *testing.T) {
	var o *InvocationOutcome
	assert.Equal(t, "", o.Error())
	assert.Nil(t, o.Unwrap())
}

func TestAggregateError_UnwrapAndIs(t *testing.T) {
	agg := &AggregateError{Errors: []error{ErrDeadlock, ErrLivelockThresholdExceeded}}
	assert.ErrorIs(t, agg, ErrDeadlock)
	assert.ErrorIs(t, agg, ErrLivelockThresholdExceeded)

	var target *AggregateError
	assert.True(t, errors.As(error(agg), &target))
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	pe := PanicError{Value: ErrUnexpectedException}
	assert.ErrorIs(t, pe, ErrUnexpectedException)
}

func TestPanicError_UnwrapNilForNonError(t *testing.T) {
	pe := PanicError{Value: "boom"}
	assert.Nil(t, pe.Unwrap())
	assert.Contains(t, pe.Error(), "boom")
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "Completed", OutcomeCompleted.String())
	assert.Equal(t, "Deadlock", OutcomeDeadlock.String())
	assert.Contains(t, OutcomeKind(999).String(), "OutcomeKind")
}
