package minimizer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/coverage"
	"ilfuzz/internal/execution"
	"ilfuzz/internal/il"
	"ilfuzz/internal/lifter"
	"ilfuzz/internal/minimizer"
)

type fakeExecutor struct {
	outcome func(script string) execution.Execution
}

func (f *fakeExecutor) Run(ctx context.Context, script string, timeout time.Duration) (execution.Execution, error) {
	return f.outcome(script), nil
}

// fakeEvaluator treats every execution as still carrying the target
// aspects, so every reduction candidate is accepted as long as the
// executor reports success. This exercises the reduction passes
// themselves, independent of real coverage bitmaps.
type fakeEvaluator struct{ accept bool }

func (f *fakeEvaluator) PreExecute() {}
func (f *fakeEvaluator) HasAspects(coverage.ProgramAspects) bool { return f.accept }

func buildProgram(t *testing.T) il.Program {
	t.Helper()
	b := builder.New()
	a, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil)
	require.NoError(t, err)
	c, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 2}, nil)
	require.NoError(t, err)
	_, err = b.Emit(il.Operation{Op: il.BinaryOperation, BinaryOp: il.BinaryAdd}, append(a, c...))
	require.NoError(t, err)
	_, err = b.Emit(il.Operation{Op: il.LoadString, StringValue: "unused"}, nil)
	require.NoError(t, err)
	p, err := b.Finalize()
	require.NoError(t, err)
	return p
}

func TestMinimizeRemovesDeadInstructions(t *testing.T) {
	program := buildProgram(t)
	exec := &fakeExecutor{outcome: func(string) execution.Execution {
		return execution.Execution{Outcome: execution.Succeeded}
	}}
	m := minimizer.New(exec, &fakeEvaluator{accept: true}, lifter.Stub{}, 0.0, time.Second)

	result := m.Minimize(context.Background(), program, coverage.NewProgramAspects([]uint32{1}))
	require.NoError(t, result.Verify())
	require.LessOrEqual(t, result.Len(), program.Len())
}

func TestMinimizeRespectsFloor(t *testing.T) {
	program := buildProgram(t)
	exec := &fakeExecutor{outcome: func(string) execution.Execution {
		return execution.Execution{Outcome: execution.Succeeded}
	}}
	m := minimizer.New(exec, &fakeEvaluator{accept: true}, lifter.Stub{}, 1.0, time.Second)

	result := m.Minimize(context.Background(), program, coverage.NewProgramAspects([]uint32{1}))
	require.GreaterOrEqual(t, result.Len(), program.Len())
}

func TestMinimizeCrashToleratesDifferentSignal(t *testing.T) {
	program := buildProgram(t)
	calls := 0
	exec := &fakeExecutor{outcome: func(string) execution.Execution {
		calls++
		return execution.Execution{Outcome: execution.Crashed, Signal: 10 + calls%2}
	}}
	m := minimizer.New(exec, &fakeEvaluator{accept: true}, lifter.Stub{}, 0.0, time.Second)

	result := m.MinimizeCrash(context.Background(), program)
	require.NoError(t, result.Verify())
	require.Less(t, result.Len(), program.Len())
}
