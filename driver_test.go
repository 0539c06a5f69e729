package weave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alternatingStrategy forces a switch at every switch point and always
// hands the baton to the lowest-numbered active candidate, producing
// maximal interleaving for deterministic deadlock reproduction.
type alternatingStrategy struct{}

func (alternatingStrategy) ShouldSwitch(WID) bool { return true }
func (alternatingStrategy) ChooseNext(_ WID, among []WID) WID {
	min := among[0]
	for _, w := range among[1:] {
		if w < min {
			min = w
		}
	}
	return min
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig(WithHangingDetectionThreshold(10), WithLivelockEventsThreshold(10000))
	require.NoError(t, err)
	return cfg
}

func TestInvocationDriver_TrivialSequentialCompletes(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewInvocationDriver(cfg, nil, nil)

	scenario := &Scenario{Actors: [][]Actor{
		{{Run: func(ctx context.Context, a *ActorContext) (any, error) { return 1, nil }}},
		{{Run: func(ctx context.Context, a *ActorContext) (any, error) { return 2, nil }}},
	}}

	res, err := d.Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome.Kind)
	assert.Len(t, res.Outcome.Results, 2)
}

func TestInvocationDriver_MonitorWaitNotifyHandsOffValue(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewInvocationDriver(cfg, nil, nil)

	mon := "the-monitor"
	var flag bool
	var value int

	consumer := Actor{Blocking: true, Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, mon)
		for !flag {
			if err := a.Interceptor.BeforeWait(2, mon); err != nil {
				return nil, err
			}
		}
		got := value
		if err := a.Interceptor.BeforeLockRelease(2, mon); err != nil {
			return nil, err
		}
		return got, nil
	}}

	producer := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, mon)
		value = 42
		flag = true
		a.Interceptor.BeforeNotify(2, mon)
		if err := a.Interceptor.BeforeLockRelease(2, mon); err != nil {
			return nil, err
		}
		return nil, nil
	}}

	scenario := &Scenario{Actors: [][]Actor{{consumer}, {producer}}}

	res, err := d.Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome.Kind)

	var consumerResult *ActorResult
	for i := range res.Outcome.Results {
		if res.Outcome.Results[i].WID == 0 {
			consumerResult = &res.Outcome.Results[i]
		}
	}
	require.NotNil(t, consumerResult)
	assert.Equal(t, 42, consumerResult.Value)
}

func TestInvocationDriver_ABBADeadlock(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewInvocationDriver(cfg, alternatingStrategy{}, nil)

	monA, monB := "A", "B"

	worker0 := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, monA)
		a.Interceptor.BeforeLockAcquire(4, monB)
		_ = a.Interceptor.BeforeLockRelease(4, monB)
		_ = a.Interceptor.BeforeLockRelease(2, monA)
		return nil, nil
	}}
	worker1 := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, monB)
		a.Interceptor.BeforeLockAcquire(4, monA)
		_ = a.Interceptor.BeforeLockRelease(4, monA)
		_ = a.Interceptor.BeforeLockRelease(2, monB)
		return nil, nil
	}}

	scenario := &Scenario{Actors: [][]Actor{{worker0}, {worker1}}}

	res, err := d.Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Equal(t, OutcomeDeadlock, res.Outcome.Kind)
	assert.ErrorIs(t, res.Outcome.Err, ErrDeadlock)
	require.NotNil(t, res.Trace)
	assert.True(t, res.Trace.Enabled())
}

func TestInvocationDriver_VerifierRejectsIncorrectResults(t *testing.T) {
	cfg := newTestConfig(t)
	verifier := verifierFunc(func(results []ActorResult) error {
		return assertAllPositive(results)
	})
	d := NewInvocationDriver(cfg, nil, verifier)

	scenario := &Scenario{Actors: [][]Actor{
		{{Run: func(ctx context.Context, a *ActorContext) (any, error) { return -1, nil }}},
	}}

	res, err := d.Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Equal(t, OutcomeIncorrectResults, res.Outcome.Kind)
}

// TestInvocationDriver_OptionalSwitchWithNoCandidatesReturnsBaton covers
// spec.md §4.6's second empty-candidate case: a voluntary (non-forced)
// switch request with no other active worker must hand the baton back
// to the caller instead of declaring a deadlock, since the caller
// itself is still active and able to keep running.
func TestInvocationDriver_OptionalSwitchWithNoCandidatesReturnsBaton(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewInvocationDriver(cfg, alternatingStrategy{}, nil)

	var worker0Steps int
	worker0 := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		for i := 0; i < 3; i++ {
			a.Interceptor.BeforeAtomicCall(2)
			worker0Steps++
		}
		return worker0Steps, nil
	}}
	// worker 1 finishes immediately, leaving worker 0 as the only
	// active worker for its remaining switch points.
	worker1 := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		return nil, nil
	}}

	scenario := &Scenario{Actors: [][]Actor{{worker0}, {worker1}}}

	res, err := d.Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome.Kind)
	assert.Equal(t, 3, worker0Steps)
}

func TestInvocationDriver_ObstructionFreedomViolation(t *testing.T) {
	cfg, err := NewConfig(
		WithHangingDetectionThreshold(10),
		WithLivelockEventsThreshold(10000),
		WithObstructionFreedomCheck(true),
	)
	require.NoError(t, err)
	d := NewInvocationDriver(cfg, nil, nil)

	mon := "held-forever"

	holder := Actor{Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, mon)
		return nil, nil
	}}
	// non-blocking: this actor must never block on a lock/wait/spin.
	impatient := Actor{Blocking: false, Run: func(ctx context.Context, a *ActorContext) (any, error) {
		a.Interceptor.BeforeLockAcquire(2, mon)
		return nil, nil
	}}

	scenario := &Scenario{Actors: [][]Actor{{holder}, {impatient}}}

	res, err := d.Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Equal(t, OutcomeObstructionFreedomViolation, res.Outcome.Kind)
	assert.ErrorIs(t, res.Outcome.Err, ErrObstructionFreedomViolation)
}

type verifierFunc func([]ActorResult) error

func (f verifierFunc) Verify(results []ActorResult) error { return f(results) }

func assertAllPositive(results []ActorResult) error {
	for _, r := range results {
		if n, ok := r.Value.(int); ok && n < 0 {
			return ErrIncorrectResults
		}
	}
	return nil
}
