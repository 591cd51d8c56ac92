package engine

import (
	"errors"
	"math/rand"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

// errNoCandidate signals that a mutator found nothing suitable to act
// on (e.g. no instruction has inputs, no variable of the needed kind
// is visible). The engine treats it the same as any other discarded
// candidate: a recorded failure against the mutator, no crash.
var errNoCandidate = errors.New("engine: no suitable mutation candidate")

// emitOperation replays a single Operation/inputs pair into b through
// whichever of Emit/OpenBlock/CloseBlock its attributes require, so
// mutators can treat "append this instruction" uniformly.
func emitOperation(b *builder.Builder, op il.Operation, inputs []il.Variable) ([]il.Variable, error) {
	switch {
	case op.Attributes().Has(il.AttrOpensBlock):
		return b.OpenBlock(op, inputs)
	case op.Attributes().Has(il.AttrClosesBlock):
		return nil, b.CloseBlock(op, inputs)
	default:
		return b.Emit(op, inputs)
	}
}

// replayWithRemap re-applies instr into nb, translating its inputs
// through remap (old variable id -> new variable id). Inputs missing
// from remap are external to whatever range is being replayed (e.g. a
// splice window that references a variable defined before it); onExternal
// supplies a substitute, or reports failure. instr's own outputs are
// added to remap under their old ids once emission succeeds.
func replayWithRemap(nb *builder.Builder, instr il.Instruction, remap map[il.Variable]il.Variable, onExternal func(il.Variable) (il.Variable, bool)) error {
	inputs := make([]il.Variable, len(instr.Inputs))
	for i, v := range instr.Inputs {
		nv, ok := remap[v]
		if !ok {
			nv, ok = onExternal(v)
			if !ok {
				return errNoCandidate
			}
			remap[v] = nv
		}
		inputs[i] = nv
	}
	outputs, err := emitOperation(nb, instr.Operation, inputs)
	if err != nil {
		return err
	}
	old := instr.AllOutputs()
	for i, ov := range old {
		if i < len(outputs) {
			remap[ov] = outputs[i]
		}
	}
	return nil
}

// replayInto replays instr into nb assuming nb's variable numbering
// still tracks the source program's exactly (true of an unmodified
// prefix): inputs are used verbatim and newly allocated outputs are
// recorded under their own (unchanged) ids.
func replayInto(nb *builder.Builder, instr il.Instruction) error {
	_, err := emitOperation(nb, instr.Operation, instr.Inputs)
	return err
}

// replaceContents commits a scratch builder's instruction sequence
// back into b.
func replaceContents(b *builder.Builder, nb *builder.Builder) error {
	b.ResetFrom(nb.Instructions())
	return nil
}

// lookupOrBindExternal substitutes a visible variable in nb for an
// input a replayed instruction needs but was not defined within the
// range being replayed. It ignores v (the caller's original id) since
// the replacement only needs to be visible and is a best-effort
// approximation of the original's kind.
func lookupOrBindExternal(nb *builder.Builder, rng *rand.Rand) func(il.Variable) (il.Variable, bool) {
	return func(il.Variable) (il.Variable, bool) {
		visible := nb.VisibleVariables(nil)
		if len(visible) == 0 {
			return 0, false
		}
		return visible[rng.Intn(len(visible))], true
	}
}

// isBalanced reports whether window opens and closes exactly the
// blocks it starts, never dipping below zero (closing a block opened
// outside the window) and never ending with one still open.
func isBalanced(window []il.Instruction) bool {
	depth := 0
	for _, instr := range window {
		if instr.OpensBlock() {
			depth++
		}
		if instr.ClosesBlock() {
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// indicesWithInputs returns the indices of instructions that take at
// least one input variable, i.e. InputMutator has something to swap.
func indicesWithInputs(instrs []il.Instruction) []int {
	var out []int
	for i, instr := range instrs {
		if len(instr.Inputs) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// mustDefiningOpcode is definingOpcode without the found bool, for
// call sites that already know v is defined (it is one of instr's own
// inputs, which by invariant 1 must be defined earlier).
func mustDefiningOpcode(instrs []il.Instruction, v il.Variable) il.Opcode {
	op, _ := definingOpcode(instrs, v)
	return op
}

// pickVisibleAt returns a random variable of the given kind visible at
// position idx (i.e. defined and still in scope among instrs[:idx]),
// by replaying that prefix into a scratch builder and querying it.
func pickVisibleAt(instrs []il.Instruction, idx int, kind ValueKind, rng *rand.Rand) (il.Variable, bool) {
	tmp := builder.New()
	for _, instr := range instrs[:idx] {
		if err := replayInto(tmp, instr); err != nil {
			return 0, false
		}
	}
	candidates := visibleOfKind(tmp, kind)
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

// rebuildWithInputChange replays instrs into a scratch builder,
// substituting instrs[idx]'s input at slot with replacement, then
// commits the result back into b.
func rebuildWithInputChange(b *builder.Builder, instrs []il.Instruction, idx, slot int, replacement il.Variable) error {
	nb := builder.New()
	for i, instr := range instrs {
		if i != idx {
			if err := replayInto(nb, instr); err != nil {
				return err
			}
			continue
		}
		inputs := append([]il.Variable{}, instr.Inputs...)
		inputs[slot] = replacement
		if _, err := emitOperation(nb, instr.Operation, inputs); err != nil {
			return err
		}
	}
	return replaceContents(b, nb)
}

// isMutableOpcode reports the set of opcodes OperationMutator is allowed to
// touch: those carrying a literal or enum immediate with no bearing on
// arity or block structure.
func isMutableOpcode(op il.Opcode) bool {
	switch op {
	case il.LoadInteger, il.LoadFloat, il.LoadString, il.LoadBoolean,
		il.Compare, il.BinaryOperation, il.UnaryOperation,
		il.CreateObject, il.LoadProperty, il.StoreProperty:
		return true
	default:
		return false
	}
}

func indicesWithMutableOp(instrs []il.Instruction) []int {
	var out []int
	for i, instr := range instrs {
		if isMutableOpcode(instr.Operation.Op) {
			out = append(out, i)
		}
	}
	return out
}

// mutateImmediate returns a copy of op with its literal/enum immediate
// perturbed, never touching arity-affecting fields (NumParameters,
// Spreads, FunctionKind).
func mutateImmediate(op il.Operation, rng *rand.Rand) il.Operation {
	switch op.Op {
	case il.LoadInteger:
		op.IntValue = randInt64(rng)
	case il.LoadFloat:
		op.FloatValue = rng.Float64() * 1000
	case il.LoadString, il.LoadProperty, il.StoreProperty:
		op.StringValue = randString(rng)
	case il.LoadBoolean:
		op.BoolValue = !op.BoolValue
	case il.Compare:
		op.Comparator = il.Comparator(rng.Intn(int(il.CompareGreaterThanOrEqual) + 1))
	case il.BinaryOperation:
		op.BinaryOp = il.BinaryOp(rng.Intn(int(il.BinaryLogicalOr) + 1))
	case il.UnaryOperation:
		op.UnaryOp = il.UnaryOp(rng.Intn(int(il.UnaryPostDec) + 1))
	case il.CreateObject:
		if len(op.PropertyNames) > 0 {
			names := append([]string{}, op.PropertyNames...)
			names[rng.Intn(len(names))] = randString(rng)
			op.PropertyNames = names
		}
	}
	return op
}

// rebuildWithOperationChange is rebuildWithInputChange's counterpart
// for OperationMutator: instrs[idx]'s Operation is replaced wholesale
// (inputs untouched) by mutated.
func rebuildWithOperationChange(b *builder.Builder, instrs []il.Instruction, idx int, mutated il.Operation) error {
	nb := builder.New()
	for i, instr := range instrs {
		if i != idx {
			if err := replayInto(nb, instr); err != nil {
				return err
			}
			continue
		}
		if _, err := emitOperation(nb, mutated, instr.Inputs); err != nil {
			return err
		}
	}
	return replaceContents(b, nb)
}

// pickInputsForGenerator draws one visible variable of each of gen's
// declared InputKinds, in nb's current state.
func pickInputsForGenerator(nb *builder.Builder, gen CodeGenerator, rng *rand.Rand) ([]il.Variable, bool) {
	if len(gen.InputKinds) == 0 {
		return nil, true
	}
	inputs := make([]il.Variable, len(gen.InputKinds))
	for i, kind := range gen.InputKinds {
		candidates := visibleOfKind(nb, kind)
		if len(candidates) == 0 {
			return nil, false
		}
		inputs[i] = candidates[rng.Intn(len(candidates))]
	}
	return inputs, true
}

// nonBlockGenerators filters a generator list down to ones that don't
// open a block, for insertion sites (like CodeGenMutator) that splice
// in a flat instruction sequence rather than recursing into a body.
func nonBlockGenerators(gens []CodeGenerator) []CodeGenerator {
	var out []CodeGenerator
	for _, g := range gens {
		if !g.OpensBlock {
			out = append(out, g)
		}
	}
	return out
}
