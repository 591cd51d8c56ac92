package engine

import (
	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

// ValueKind is a loose value-type lattice over IL variables, used to
// filter "compatible" inputs for mutators and code generators (spec.md
// §4.2's "input value-type predicates"). The IL itself carries no
// static type system — a variable's kind is inferred from the opcode
// that produced it, the same approximation a dynamic-language fuzzer
// without a real type checker has to make.
type ValueKind int

const (
	KindAny ValueKind = iota
	KindNumber
	KindString
	KindBoolean
	KindObject
	KindArray
	KindFunction
)

// kindOf infers the ValueKind an opcode's (single) output produces.
// Opcodes with no useful output kind (block openers with no own value,
// statements) report KindAny.
func kindOf(op il.Opcode) ValueKind {
	switch op {
	case il.LoadInteger, il.LoadFloat, il.LoadBigInt, il.BinaryOperation, il.UnaryOperation:
		return KindNumber
	case il.LoadString, il.LoadRegExp, il.TypeOf:
		return KindString
	case il.LoadBoolean, il.Compare:
		return KindBoolean
	case il.CreateObject, il.LoadBuiltin:
		return KindObject
	case il.CreateArray:
		return KindArray
	case il.BeginFunctionDefinition:
		return KindFunction
	default:
		return KindAny
	}
}

// definingOpcode finds the opcode whose output (outer or inner) is v,
// scanning instructions in reverse since the most recent definition
// wins under SSA.
func definingOpcode(instrs []il.Instruction, v il.Variable) (il.Opcode, bool) {
	for i := len(instrs) - 1; i >= 0; i-- {
		for _, out := range instrs[i].AllOutputs() {
			if out == v {
				return instrs[i].Operation.Op, true
			}
		}
	}
	return 0, false
}

// visibleOfKind returns the variables visible in b whose inferred
// ValueKind matches kind. KindAny matches everything.
func visibleOfKind(b *builder.Builder, kind ValueKind) []il.Variable {
	instrs := b.Instructions()
	return b.VisibleVariables(func(v il.Variable) bool {
		if kind == KindAny {
			return true
		}
		op, ok := definingOpcode(instrs, v)
		if !ok {
			return false
		}
		return kindOf(op) == kind
	})
}
