package builder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

func TestBuilder_EmitSimpleProgram(t *testing.T) {
	b := builder.New()
	out1, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil)
	require.NoError(t, err)
	out2, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 2}, nil)
	require.NoError(t, err)
	_, err = b.Emit(il.Operation{Op: il.BinaryOperation, BinaryOp: il.BinaryAdd}, []il.Variable{out1[0], out2[0]})
	require.NoError(t, err)

	p, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.NoError(t, p.Verify())
}

func TestBuilder_EmitRejectsInvisibleInput(t *testing.T) {
	b := builder.New()
	_, err := b.Emit(il.Operation{Op: il.Dup}, []il.Variable{99})
	require.Error(t, err)
	var aborted *builder.BuildAbortedError
	require.ErrorAs(t, err, &aborted)
}

func TestBuilder_EmitRejectsBlockOpcode(t *testing.T) {
	b := builder.New()
	_, err := b.Emit(il.Operation{Op: il.BeginIf}, nil)
	require.Error(t, err)
}

func TestBuilder_OpenCloseForLoop(t *testing.T) {
	b := builder.New()
	start, _ := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 0}, nil)
	end, _ := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 10}, nil)

	header, err := b.OpenBlock(il.Operation{Op: il.BeginFor, Comparator: il.CompareLessThan}, []il.Variable{start[0], end[0]})
	require.NoError(t, err)
	require.Len(t, header, 1) // just the loop variable, no outer output
	assert.True(t, b.CurrentContext().Contains(il.ContextLoop))

	_, err = b.Emit(il.Operation{Op: il.Break}, nil)
	require.NoError(t, err)

	err = b.CloseBlock(il.Operation{Op: il.EndFor}, nil)
	require.NoError(t, err)
	assert.False(t, b.CurrentContext().Contains(il.ContextLoop))

	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Verify())
}

func TestBuilder_BreakOutsideLoopRejected(t *testing.T) {
	b := builder.New()
	_, err := b.Emit(il.Operation{Op: il.Break}, nil)
	require.Error(t, err)
}

func TestBuilder_CloseBlockMismatchRejected(t *testing.T) {
	b := builder.New()
	_, err := b.OpenBlock(il.Operation{Op: il.BeginWhile, Comparator: il.CompareEqual}, nil)
	require.NoError(t, err)
	err = b.CloseBlock(il.Operation{Op: il.EndFor}, nil)
	require.Error(t, err)
}

func TestBuilder_IfElseScoping(t *testing.T) {
	b := builder.New()
	cond, _ := b.Emit(il.Operation{Op: il.LoadBoolean, BoolValue: true}, nil)
	_, err := b.OpenBlock(il.Operation{Op: il.BeginIf}, []il.Variable{cond[0]})
	require.NoError(t, err)
	thenVar, _ := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil)

	_, err = b.OpenBlock(il.Operation{Op: il.BeginElse}, nil)
	require.NoError(t, err)

	// thenVar must not be visible in the Else branch.
	_, err = b.Emit(il.Operation{Op: il.Dup}, []il.Variable{thenVar[0]})
	require.Error(t, err)

	err = b.CloseBlock(il.Operation{Op: il.EndIf}, nil)
	require.NoError(t, err)

	_, err = b.Finalize()
	require.NoError(t, err)
}

func TestBuilder_NewFromProgramContinuesNumbering(t *testing.T) {
	parentBuilder := builder.New()
	parentBuilder.Emit(il.Operation{Op: il.LoadInteger, IntValue: 7}, nil)
	parent, err := parentBuilder.Finalize()
	require.NoError(t, err)

	b := builder.NewFromProgram(parent)
	assert.Equal(t, 1, b.NumVariables())
	out, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 8}, nil)
	require.NoError(t, err)
	assert.Equal(t, il.Variable(1), out[0])

	p, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestBuilder_ScopeLookup(t *testing.T) {
	b := builder.New()
	out, _ := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 5}, nil)
	b.BindIdentifier("x", out[0])

	res := b.ScopeLookup("x")
	require.True(t, res.Found())
	assert.Equal(t, out[0], res.Variable())

	assert.False(t, b.ScopeLookup("nonexistent").Found())
}

func TestBuilder_VisibleVariablesFilter(t *testing.T) {
	b := builder.New()
	v0, _ := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil)
	v1, _ := b.Emit(il.Operation{Op: il.LoadString, StringValue: "s"}, nil)

	all := b.VisibleVariables(nil)
	assert.ElementsMatch(t, []il.Variable{v0[0], v1[0]}, all)

	onlyFirst := b.VisibleVariables(func(v il.Variable) bool { return v == v0[0] })
	assert.Equal(t, []il.Variable{v0[0]}, onlyFirst)
}

func TestBuilder_DebugModePanicsOnInvariantViolation(t *testing.T) {
	b := builder.New()
	b.Debug = true
	assert.Panics(t, func() {
		b.Emit(il.Operation{Op: il.Dup}, []il.Variable{42})
	})
}
