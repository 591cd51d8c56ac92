package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ilfuzz/internal/coverage"
	"ilfuzz/internal/engine"
	"ilfuzz/internal/events"
	"ilfuzz/internal/execution"
	"ilfuzz/internal/il"
	"ilfuzz/internal/lifter"
	"ilfuzz/internal/minimizer"
	"ilfuzz/internal/scheduler"
)

// TestMain runs the suite under goleak: RunIteration's errgroup
// dispatches minimization/determinism-check work onto its own
// goroutines, and this catches any that don't join before the
// iteration returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExecutor struct {
	outcome execution.Outcome
}

func (f *fakeExecutor) Run(ctx context.Context, script string, timeout time.Duration) (execution.Execution, error) {
	return execution.Execution{Outcome: f.outcome}, nil
}

// fakeEvaluator satisfies both scheduler.Evaluator and
// minimizer.Evaluator: every execution is treated as still carrying
// aspects{1}, so the determinism check converges immediately and every
// minimizer reduction candidate is accepted.
type fakeEvaluator struct{}

func (f *fakeEvaluator) PreExecute() {}

func (f *fakeEvaluator) Evaluate(exec execution.Execution) (coverage.ProgramAspects, bool) {
	return coverage.NewProgramAspects([]uint32{1}), true
}

func (f *fakeEvaluator) EvaluateCrash(exec execution.Execution) (coverage.ProgramAspects, bool) {
	return coverage.NewProgramAspects([]uint32{1}), true
}

func (f *fakeEvaluator) ComputeAspectIntersection(program il.Program, aspects coverage.ProgramAspects) (coverage.ProgramAspects, bool) {
	return aspects, true
}

func (f *fakeEvaluator) HasAspects(coverage.ProgramAspects) bool { return true }

type fakeCorpus struct {
	added []il.Program
}

func (c *fakeCorpus) IsEmpty() bool { return len(c.added) == 0 }

func (c *fakeCorpus) RandomParent() (il.Program, bool) {
	if len(c.added) == 0 {
		return il.Program{}, false
	}
	return c.added[0], true
}

func (c *fakeCorpus) RandomDonor() (il.Program, bool) { return c.RandomParent() }

func (c *fakeCorpus) Add(program il.Program, aspects coverage.ProgramAspects) bool {
	c.added = append(c.added, program)
	return true
}

func newScheduler(t *testing.T, outcome execution.Outcome) (*scheduler.Scheduler, *fakeCorpus, *events.Dispatcher) {
	t.Helper()
	eng := engine.New(8, 1, 2, 0.5)
	corp := &fakeCorpus{}
	exec := &fakeExecutor{outcome: outcome}
	eval := &fakeEvaluator{}
	min := minimizer.New(exec, eval, lifter.Stub{}, 0.0, time.Second)
	disp := events.New()

	cfg := scheduler.Config{
		ExecutionTimeout:        time.Second,
		DeterminismMinAttempts:  1,
		DeterminismMaxAttempts:  3,
		InitialGenerationRounds: 100,
	}
	s := scheduler.New(eng, corp, exec, eval, min, lifter.Stub{}, disp, cfg)
	return s, corp, disp
}

func TestRunIterationSuccessInsertsIntoCorpus(t *testing.T) {
	s, corp, _ := newScheduler(t, execution.Succeeded)
	require.NoError(t, s.RunIteration(context.Background()))
	require.Equal(t, 1, len(corp.added))
}

func TestRunIterationCrashDispatchesCrashFound(t *testing.T) {
	s, _, disp := newScheduler(t, execution.Crashed)

	var got *events.CrashPayload
	disp.On(events.CrashFound, func(payload any) {
		got = payload.(*events.CrashPayload)
	})

	require.NoError(t, s.RunIteration(context.Background()))
	require.NotNil(t, got)
	require.Equal(t, events.Deterministic, got.Behaviour)
}

func TestRunIterationTimeoutDispatchesTimeOutFound(t *testing.T) {
	s, corp, disp := newScheduler(t, execution.TimedOut)

	fired := false
	disp.On(events.TimeOutFound, func(payload any) { fired = true })

	require.NoError(t, s.RunIteration(context.Background()))
	require.True(t, fired)
	require.Empty(t, corp.added)
}

func TestShutdownStopsFurtherIterations(t *testing.T) {
	s, corp, disp := newScheduler(t, execution.Succeeded)

	shutdownSeen := false
	disp.On(events.ShutdownComplete, func(payload any) { shutdownSeen = true })

	s.Shutdown("test complete")
	require.True(t, shutdownSeen)

	require.NoError(t, s.RunIteration(context.Background()))
	require.Empty(t, corp.added)
}
