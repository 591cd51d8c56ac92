package il_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilfuzz/internal/il"
)

func instr(op il.Operation, inputs, outputs, inner []il.Variable) il.Instruction {
	return il.Instruction{Operation: op, Inputs: inputs, Outputs: outputs, InnerOutputs: inner}
}

func TestVerify_EmptyProgramIsValid(t *testing.T) {
	p := il.NewProgram(nil)
	assert.NoError(t, p.Verify())
	assert.True(t, p.IsEmpty())
}

func TestVerify_SimpleSequentialProgram(t *testing.T) {
	// v0 = 1; v1 = 2; v2 = v0 + v1
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 2}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.BinaryOperation, BinaryOp: il.BinaryAdd}, []il.Variable{0, 1}, []il.Variable{2}, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())
	assert.Equal(t, 3, p.NumVariables())
}

func TestVerify_UseBeforeDefinition(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.BinaryOperation, BinaryOp: il.BinaryAdd}, []il.Variable{0, 1}, []il.Variable{2}, nil),
	}
	p := il.NewProgram(instrs)
	err := p.Verify()
	require.Error(t, err)
	var ierr *il.InvariantError
	require.ErrorAs(t, err, &ierr)
}

func TestVerify_NonDenseVariableNumbering(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadInteger}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger}, nil, []il.Variable{5}, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_DoubleAssignmentRejected(t *testing.T) {
	// Two instructions both claiming to produce v0 never satisfies the
	// density check (the second would need id 1), but construct it via
	// NewProgram directly to exercise the SSA duplicate-assignment path.
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadInteger}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger}, nil, []il.Variable{0}, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_IfElseBlockBalance(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadBoolean, BoolValue: true}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.BeginIf}, []il.Variable{0}, nil, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.BeginElse}, nil, nil, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 2}, nil, []il.Variable{2}, nil),
		instr(il.Operation{Op: il.EndIf}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())
}

func TestVerify_VariableLeaksAcrossIfBranchesRejected(t *testing.T) {
	// v1 is defined in the If branch; using it in the Else branch must
	// fail scope-visibility, not just "used before definition".
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadBoolean, BoolValue: true}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.BeginIf}, []il.Variable{0}, nil, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.BeginElse}, nil, nil, nil),
		instr(il.Operation{Op: il.Dup}, []il.Variable{1}, []il.Variable{2}, nil),
		instr(il.Operation{Op: il.EndIf}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_BreakOutsideLoopRejected(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.Break}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_BreakInsideForAccepted(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadInteger, IntValue: 0}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 10}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.BeginFor, Comparator: il.CompareLessThan}, []il.Variable{0, 1}, nil, []il.Variable{2}),
		instr(il.Operation{Op: il.Break}, nil, nil, nil),
		instr(il.Operation{Op: il.EndFor}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())
}

func TestVerify_ReturnOutsideFunctionRejected(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.Return}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_ReturnInsideFunctionAccepted(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.BeginFunctionDefinition, NumParameters: 1}, nil, []il.Variable{0}, []il.Variable{1}),
		instr(il.Operation{Op: il.Return}, []il.Variable{1}, nil, nil),
		instr(il.Operation{Op: il.EndFunctionDefinition}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())
}

func TestVerify_FunctionValueUsableAfterBlockCloses(t *testing.T) {
	// The function's own output variable (v0) is visible after
	// EndFunctionDefinition for a subsequent call.
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.BeginFunctionDefinition, NumParameters: 0}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.EndFunctionDefinition}, nil, nil, nil),
		instr(il.Operation{Op: il.CallFunction}, []il.Variable{0}, []il.Variable{1}, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())
}

func TestVerify_MismatchedBlockCloserRejected(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadInteger, IntValue: 0}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.BeginFor, Comparator: il.CompareLessThan}, []il.Variable{0, 1}, nil, []il.Variable{2}),
		instr(il.Operation{Op: il.EndWhile}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_UnclosedBlockRejected(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.BeginTry}, nil, nil, nil),
		instr(il.Operation{Op: il.BeginCatch}, nil, nil, []il.Variable{0}),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_TryWithoutCatchRejected(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.BeginTry}, nil, nil, nil),
		instr(il.Operation{Op: il.EndTry}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}

func TestVerify_VariableExceedingMaxRejected(t *testing.T) {
	instrs := make([]il.Instruction, 0, il.MaxVariables+1)
	for i := 0; i < il.MaxVariables+1; i++ {
		instrs = append(instrs, instr(il.Operation{Op: il.LoadInteger, IntValue: int64(i)}, nil, []il.Variable{il.Variable(i)}, nil))
	}
	p := il.NewProgram(instrs)
	require.Error(t, p.Verify())
}
