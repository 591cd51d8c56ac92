package il_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"ilfuzz/internal/il"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	instrs := []il.Instruction{
		instr(il.Operation{Op: il.LoadString, StringValue: "hello"}, nil, []il.Variable{0}, nil),
		instr(il.Operation{Op: il.LoadInteger, IntValue: 42}, nil, []il.Variable{1}, nil),
		instr(il.Operation{Op: il.CreateObject, PropertyNames: []string{"a", "b"}}, []il.Variable{0, 1}, []il.Variable{2}, nil),
		instr(il.Operation{Op: il.CreateArray, Spreads: []bool{false, true}}, []il.Variable{0, 1}, []il.Variable{3}, nil),
		instr(il.Operation{Op: il.BeginFunctionDefinition, NumParameters: 2, FunctionKind: il.FunctionAsync}, nil, []il.Variable{4}, []il.Variable{5, 6}),
		instr(il.Operation{Op: il.Return}, []il.Variable{5}, nil, nil),
		instr(il.Operation{Op: il.EndFunctionDefinition}, nil, nil, nil),
	}
	p := il.NewProgram(instrs)
	require.NoError(t, p.Verify())

	data := il.Serialize(p)
	got, err := il.Deserialize(data)
	require.NoError(t, err)
	require.NoError(t, got.Verify())

	if diff := cmp.Diff(p.Instructions(), got.Instructions()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeserializeTruncatedRejected(t *testing.T) {
	_, err := il.Deserialize([]byte{0xff})
	require.Error(t, err)
	var serr *il.SerializationError
	require.ErrorAs(t, err, &serr)
}

func TestDeserializeEmptyProgram(t *testing.T) {
	p := il.NewProgram(nil)
	data := il.Serialize(p)
	got, err := il.Deserialize(data)
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}
