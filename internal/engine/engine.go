// Package engine implements the Mutation/Generation Engine (spec.md
// §4.2): generating fresh programs from the code generator registry and
// mutating corpus samples by composing the five mutators, all built on
// top of the Builder so every candidate it ever returns already
// satisfies the IL's invariants.
package engine

import (
	"math/rand"
	"sync"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

// CorpusView is the slice of Corpus the engine needs: a source of
// parent and donor programs. Accepting this interface rather than a
// concrete Corpus type keeps the engine buildable (and testable)
// without the corpus package.
type CorpusView interface {
	IsEmpty() bool
	RandomParent() (il.Program, bool)
	RandomDonor() (il.Program, bool)
}

type mutatorStats struct {
	attempts   int
	successes  int
}

// Engine is the stateful, per-process driver of both engine modes
// (spec.md §4.2). Its zero value is not usable; construct with New.
type Engine struct {
	graph reachabilityGraph

	MaxProgramSize        int
	MinMutationsPerSample int
	MaxMutationsPerSample int
	MaxNestingDepth        int
	// CodeGenWeight is CodeGenMutator's selection weight before any
	// statistics have accumulated for it; every other mutator starts at
	// 1.0. It is a separate knob since CodeGenMutator alone can grow the
	// program in ways corpus-derived mutators can't (spec.md §4.2).
	CodeGenWeight float64

	mu    sync.Mutex
	stats map[string]*mutatorStats
}

// New constructs an Engine. maxProgramSize bounds GenerateProgram's
// instruction budget; minMutations/maxMutations bound how many
// mutations MutateProgram composes per candidate (spec.md §4.2: "2-5
// consecutive mutations, amortizing the cost of program setup").
func New(maxProgramSize, minMutations, maxMutations int, codeGenWeight float64) *Engine {
	return &Engine{
		graph:                 buildReachabilityGraph(),
		MaxProgramSize:        maxProgramSize,
		MinMutationsPerSample: minMutations,
		MaxMutationsPerSample: maxMutations,
		MaxNestingDepth:       3,
		CodeGenWeight:         codeGenWeight,
		stats:                 make(map[string]*mutatorStats),
	}
}

// FuzzOne produces one candidate program: Generative mode if the
// corpus is empty (or unavailable), Mutational mode otherwise (spec.md
// §4.7's "corpus empty -> generative, else mutational").
func (e *Engine) FuzzOne(rng *rand.Rand, corpus CorpusView) (il.Program, error) {
	if corpus == nil || corpus.IsEmpty() {
		return e.GenerateProgram(rng)
	}
	parent, ok := corpus.RandomParent()
	if !ok {
		return e.GenerateProgram(rng)
	}
	return e.mutateProgram(parent, rng, corpus)
}

// GenerateProgram builds a fresh program from scratch using the code
// generator registry (spec.md §4.2 Generative mode).
func (e *Engine) GenerateProgram(rng *rand.Rand) (il.Program, error) {
	b := builder.New()
	budget := rng.Intn(e.MaxProgramSize) + 1
	if err := e.generateBlock(b, rng, budget, 0); err != nil {
		return il.Program{}, err
	}
	return b.Finalize()
}

// generateBlock emits instructions into b until budget is exhausted,
// occasionally opening a nested block (up to MaxNestingDepth) and
// always closing whatever it opens before returning, so the caller
// never has to track block balance itself.
func (e *Engine) generateBlock(b *builder.Builder, rng *rand.Rand, budget, depth int) error {
	for budget > 0 {
		gens := eligibleGenerators(b)
		if len(gens) == 0 {
			return errNoCandidate
		}
		openers := blockOpeners(gens)
		wantsBlock := depth < e.MaxNestingDepth && len(openers) > 0 && rng.Intn(4) == 0
		if wantsBlock {
			gen := openers[rng.Intn(len(openers))]
			inputs, ok := pickInputsForGenerator(b, gen, rng)
			if !ok {
				budget--
				continue
			}
			if err := gen.Build(b, rng, inputs); err != nil {
				return err
			}
			inner := budget/2 + 1
			if err := e.generateBlock(b, rng, inner, depth+1); err != nil {
				return err
			}
			closer := gen.Closer()
			if err := emitClose(b, closer); err != nil {
				return err
			}
			budget -= inner
			continue
		}
		flat := nonBlockGenerators(gens)
		if len(flat) == 0 {
			budget--
			continue
		}
		gen := flat[rng.Intn(len(flat))]
		inputs, ok := pickInputsForGenerator(b, gen, rng)
		if !ok {
			budget--
			continue
		}
		if err := gen.Build(b, rng, inputs); err != nil {
			return err
		}
		budget--
	}
	return nil
}

// emitClose appends a block-closing operation that takes no inputs
// (every Closer in Generators is of this shape: EndIf/EndWhile/EndFor/
// EndFunctionDefinition all close without consuming a value).
func emitClose(b *builder.Builder, op il.Operation) error {
	return b.CloseBlock(op, nil)
}

func blockOpeners(gens []CodeGenerator) []CodeGenerator {
	var out []CodeGenerator
	for _, g := range gens {
		if g.OpensBlock {
			out = append(out, g)
		}
	}
	return out
}

// mutateProgram copies parent into a fresh Builder and applies
// MinMutationsPerSample to MaxMutationsPerSample consecutive mutations
// to it, discarding the whole candidate the
// moment any mutation signals a build-aborted invariant violation
// (spec.md §4.2) rather than trying to salvage a partial sequence.
func (e *Engine) mutateProgram(parent il.Program, rng *rand.Rand, corpus CorpusView) (il.Program, error) {
	b := builder.NewFromProgram(parent)
	spread := e.MaxMutationsPerSample - e.MinMutationsPerSample
	n := e.MinMutationsPerSample
	if spread > 0 {
		n += rng.Intn(spread + 1)
	}
	for i := 0; i < n; i++ {
		m, ok := e.pickMutator(rng, corpus)
		if !ok {
			return il.Program{}, errNoCandidate
		}
		err := m.Apply(b, rng)
		e.recordResult(m.Name, err == nil)
		if err != nil {
			return il.Program{}, err
		}
	}
	return b.Finalize()
}

// pickMutator draws one mutator using Laplace-smoothed empirical
// success rates as weights, so mutators that tend to produce valid
// candidates against this target are favored over time without ever
// fully starving the others (spec.md §4.2: "informed by a configured
// prior and per-mutator success statistics").
func (e *Engine) pickMutator(rng *rand.Rand, corpus CorpusView) (Mutator, bool) {
	pool := append([]Mutator{}, Mutators()...)
	if corpus != nil {
		if donor, ok := corpus.RandomDonor(); ok {
			pool = append(pool, DonorMutators(donor)...)
		}
	}
	if len(pool) == 0 {
		return Mutator{}, false
	}
	weights := make([]float64, len(pool))
	total := 0.0
	for i, m := range pool {
		w := e.weightOf(m.Name)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return pool[rng.Intn(len(pool))], true
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return pool[i], true
		}
	}
	return pool[len(pool)-1], true
}

func (e *Engine) weightOf(name string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		if name == "CodeGenMutator" {
			return e.CodeGenWeight
		}
		return 1.0
	}
	return float64(s.successes+1) / float64(s.attempts+2)
}

func (e *Engine) recordResult(name string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		s = &mutatorStats{}
		e.stats[name] = s
	}
	s.attempts++
	if success {
		s.successes++
	}
}
