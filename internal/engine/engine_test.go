package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

type fakeCorpus struct {
	programs []il.Program
}

func (f *fakeCorpus) IsEmpty() bool { return len(f.programs) == 0 }

func (f *fakeCorpus) RandomParent() (il.Program, bool) {
	if len(f.programs) == 0 {
		return il.Program{}, false
	}
	return f.programs[0], true
}

func (f *fakeCorpus) RandomDonor() (il.Program, bool) {
	return f.RandomParent()
}

func samplesProgram(t *testing.T) il.Program {
	t.Helper()
	b := builder.New()
	outs, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 1}, nil)
	require.NoError(t, err)
	outs2, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 2}, nil)
	require.NoError(t, err)
	_, err = b.Emit(il.Operation{Op: il.BinaryOperation, BinaryOp: il.BinaryAdd}, append(outs, outs2...))
	require.NoError(t, err)
	p, err := b.Finalize()
	require.NoError(t, err)
	return p
}

func TestGenerateProgramProducesValidProgram(t *testing.T) {
	e := New(40, 2, 5, 0.5)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		p, err := e.GenerateProgram(rng)
		require.NoError(t, err)
		require.NoError(t, p.Verify())
	}
}

func TestFuzzOneUsesGenerativeModeWhenCorpusEmpty(t *testing.T) {
	e := New(20, 2, 3, 0.5)
	rng := rand.New(rand.NewSource(2))
	p, err := e.FuzzOne(rng, &fakeCorpus{})
	require.NoError(t, err)
	require.NoError(t, p.Verify())
}

func TestFuzzOneUsesMutationalModeWithNonEmptyCorpus(t *testing.T) {
	e := New(20, 2, 3, 0.5)
	rng := rand.New(rand.NewSource(3))
	corpus := &fakeCorpus{programs: []il.Program{samplesProgram(t)}}

	successes := 0
	for i := 0; i < 50; i++ {
		p, err := e.FuzzOne(rng, corpus)
		if err != nil {
			continue
		}
		require.NoError(t, p.Verify())
		successes++
	}
	require.Greater(t, successes, 0, "expected at least one mutation to produce a valid program")
}

func TestMutatorStatsAffectSelectionWeight(t *testing.T) {
	e := New(20, 1, 1, 0.5)
	e.recordResult("InputMutator", true)
	e.recordResult("InputMutator", true)
	e.recordResult("OperationMutator", false)
	require.Greater(t, e.weightOf("InputMutator"), e.weightOf("OperationMutator"))
}

func TestGenerateBlockRespectsNestingDepth(t *testing.T) {
	e := New(60, 2, 5, 0.5)
	e.MaxNestingDepth = 1
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 10; i++ {
		p, err := e.GenerateProgram(rng)
		require.NoError(t, err)
		require.NoError(t, p.Verify())
		depth, maxDepth := 0, 0
		for _, instr := range p.Instructions() {
			if instr.ClosesBlock() {
				depth--
			}
			if instr.OpensBlock() {
				depth++
				if depth > maxDepth {
					maxDepth = depth
				}
			}
		}
		require.LessOrEqual(t, maxDepth, 1)
	}
}
