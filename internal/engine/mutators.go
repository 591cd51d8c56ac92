package engine

import (
	"math/rand"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

// Mutator transforms a Builder already pre-filled with a parent
// program (spec.md §4.2). It must preserve invariants 1-5 or return an
// error so the engine can discard the candidate and record a failure
// against the mutator.
type Mutator struct {
	Name  string
	Apply func(b *builder.Builder, rng *rand.Rand) error
}

// inputMutator (spec.md §4.2): for a randomly-chosen instruction,
// replace one of its input variables with another variable visible at
// that position and of a compatible kind.
func inputMutator(b *builder.Builder, rng *rand.Rand) error {
	instrs := b.Instructions()
	candidates := indicesWithInputs(instrs)
	if len(candidates) == 0 {
		return errNoCandidate
	}
	idx := candidates[rng.Intn(len(candidates))]
	instr := instrs[idx]
	slot := rng.Intn(len(instr.Inputs))
	kind := kindOf(mustDefiningOpcode(instrs, instr.Inputs[slot]))

	replacement, ok := pickVisibleAt(instrs, idx, kind, rng)
	if !ok {
		return errNoCandidate
	}
	return rebuildWithInputChange(b, instrs, idx, slot, replacement)
}

// operationMutator (spec.md §4.2): mutate an operation's immediate
// parameters only — literals, comparator kinds, property names — never
// arity or block nesting.
func operationMutator(b *builder.Builder, rng *rand.Rand) error {
	instrs := b.Instructions()
	candidates := indicesWithMutableOp(instrs)
	if len(candidates) == 0 {
		return errNoCandidate
	}
	idx := candidates[rng.Intn(len(candidates))]
	mutated := mutateImmediate(instrs[idx].Operation, rng)
	return rebuildWithOperationChange(b, instrs, idx, mutated)
}

// codeGenMutator (spec.md §4.2): insert a short sequence of newly
// generated, non-block instructions at a random position whose current
// Context permits them. Implemented by replaying the parent up to a
// random cut point, invoking a handful of generators there, then
// replaying the remainder.
func codeGenMutator(b *builder.Builder, rng *rand.Rand) error {
	instrs := b.Instructions()
	cut := rng.Intn(len(instrs) + 1)

	nb := builder.New()
	for _, in := range instrs[:cut] {
		if err := replayInto(nb, in); err != nil {
			return err
		}
	}
	inserted := false
	n := rng.Intn(3) + 1
	for i := 0; i < n; i++ {
		gens := nonBlockGenerators(eligibleGenerators(nb))
		if len(gens) == 0 {
			break
		}
		gen := gens[rng.Intn(len(gens))]
		inputs, ok := pickInputsForGenerator(nb, gen, rng)
		if !ok {
			continue
		}
		if err := gen.Build(nb, rng, inputs); err != nil {
			return err
		}
		inserted = true
	}
	if !inserted {
		return errNoCandidate
	}
	remap := make(map[il.Variable]il.Variable)
	for _, in := range instrs[cut:] {
		if err := replayWithRemap(nb, in, remap, func(v il.Variable) (il.Variable, bool) { return v, true }); err != nil {
			return err
		}
	}
	return replaceContents(b, nb)
}

// spliceMutator (spec.md §4.2): take a contiguous instruction range
// from a donor program and insert it into the target, re-numbering
// variables. Rejects ranges that open/close blocks unevenly or need a
// Context unavailable at the insertion site.
func spliceMutator(donor il.Program) func(b *builder.Builder, rng *rand.Rand) error {
	return func(b *builder.Builder, rng *rand.Rand) error {
		donorInstrs := donor.Instructions()
		if len(donorInstrs) == 0 {
			return errNoCandidate
		}
		start := rng.Intn(len(donorInstrs))
		end := start + rng.Intn(len(donorInstrs)-start) + 1
		window := donorInstrs[start:end]
		if !isBalanced(window) {
			return errNoCandidate
		}

		target := b.Instructions()
		insertAt := rng.Intn(len(target) + 1)

		remap := make(map[il.Variable]il.Variable)
		nb := builder.New()
		onExternal := lookupOrBindExternal(nb, rng)
		for _, in := range target[:insertAt] {
			if err := replayWithRemap(nb, in, remap, onExternal); err != nil {
				return err
			}
		}
		requiredCtx := il.ContextEmpty
		for _, in := range window {
			requiredCtx = requiredCtx.Union(in.Operation.RequiredContext())
		}
		if !nb.CurrentContext().Contains(requiredCtx) {
			return errNoCandidate
		}
		donorRemap := make(map[il.Variable]il.Variable)
		for _, in := range window {
			if err := replayWithRemap(nb, in, donorRemap, onExternal); err != nil {
				return errNoCandidate
			}
		}
		for _, in := range target[insertAt:] {
			if err := replayWithRemap(nb, in, remap, onExternal); err != nil {
				return err
			}
		}
		return replaceContents(b, nb)
	}
}

// combineMutator (spec.md §4.2): concatenate another corpus program
// after a random position, re-numbering its variables.
func combineMutator(donor il.Program) func(b *builder.Builder, rng *rand.Rand) error {
	return func(b *builder.Builder, rng *rand.Rand) error {
		target := b.Instructions()
		insertAt := rng.Intn(len(target) + 1)

		nb := builder.New()
		onExternal := lookupOrBindExternal(nb, rng)
		remap := make(map[il.Variable]il.Variable)
		for _, in := range target[:insertAt] {
			if err := replayWithRemap(nb, in, remap, onExternal); err != nil {
				return err
			}
		}
		donorRemap := make(map[il.Variable]il.Variable)
		for _, in := range donor.Instructions() {
			if err := replayWithRemap(nb, in, donorRemap, onExternal); err != nil {
				return errNoCandidate
			}
		}
		for _, in := range target[insertAt:] {
			if err := replayWithRemap(nb, in, remap, onExternal); err != nil {
				return err
			}
		}
		return replaceContents(b, nb)
	}
}

// Mutators returns the fixed set of mutators that don't need a donor
// program bound in advance.
func Mutators() []Mutator {
	return []Mutator{
		{Name: "InputMutator", Apply: inputMutator},
		{Name: "OperationMutator", Apply: operationMutator},
		{Name: "CodeGenMutator", Apply: codeGenMutator},
	}
}

// DonorMutators returns SpliceMutator and CombineMutator bound to a
// specific donor program drawn from the corpus.
func DonorMutators(donor il.Program) []Mutator {
	return []Mutator{
		{Name: "SpliceMutator", Apply: spliceMutator(donor)},
		{Name: "CombineMutator", Apply: combineMutator(donor)},
	}
}
