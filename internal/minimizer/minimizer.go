// Package minimizer implements the Minimizer (spec.md §4.6): given a
// program and the aspects it's interesting for, produce a smaller
// program that still reproduces them.
package minimizer

import (
	"context"
	"time"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/coverage"
	"ilfuzz/internal/execution"
	"ilfuzz/internal/il"
	"ilfuzz/internal/lifter"
)

// Executor is the slice of the Runner the minimizer needs: execute one
// script and report how it went.
type Executor interface {
	Run(ctx context.Context, script string, timeout time.Duration) (execution.Execution, error)
}

// Evaluator is the slice of the Coverage Evaluator the minimizer needs:
// clear the shared region before a candidate run, then ask whether the
// aspects being preserved are still present in it.
type Evaluator interface {
	PreExecute()
	HasAspects(aspects coverage.ProgramAspects) bool
}

// Lifter renders a candidate Program to source the Executor can run.
type Lifter interface {
	Lift(p il.Program, opts lifter.Options) (string, error)
}

// Minimizer reduces a program to a smaller one that still triggers the
// same interesting behavior (spec.md §4.6). The zero value is not
// usable; construct with New.
type Minimizer struct {
	runner            Executor
	evaluator         Evaluator
	lift              Lifter
	minimizationLimit float64
	execTimeout       time.Duration
}

// New constructs a Minimizer. minimizationLimit is the floor fraction
// of the original program size reduction passes refuse to go below
// (spec.md §4.6's "minimizationLimit" — avoids over-minimization that
// destroys future mutation potential).
func New(runner Executor, evaluator Evaluator, lift Lifter, minimizationLimit float64, execTimeout time.Duration) *Minimizer {
	return &Minimizer{
		runner:            runner,
		evaluator:         evaluator,
		lift:              lift,
		minimizationLimit: minimizationLimit,
		execTimeout:       execTimeout,
	}
}

// Minimize reduces program while it keeps producing aspects (or a
// superset of them) on re-execution.
func (m *Minimizer) Minimize(ctx context.Context, program il.Program, aspects coverage.ProgramAspects) il.Program {
	return m.reduce(program, func(p il.Program) bool {
		exec, ok := m.execute(ctx, p)
		if !ok || exec.Outcome != execution.Succeeded {
			return false
		}
		return m.evaluator.HasAspects(aspects)
	})
}

// MinimizeCrash reduces program while it keeps crashing, tolerating a
// different exit signal or stdout/stderr detail so long as it still
// crashes (spec.md §4.6: "tolerate slightly different crash details so
// long as the crash reproduces").
func (m *Minimizer) MinimizeCrash(ctx context.Context, program il.Program) il.Program {
	return m.reduce(program, func(p il.Program) bool {
		exec, ok := m.execute(ctx, p)
		return ok && exec.Outcome == execution.Crashed
	})
}

func (m *Minimizer) execute(ctx context.Context, p il.Program) (execution.Execution, bool) {
	m.evaluator.PreExecute()
	script, err := m.lift.Lift(p, lifter.Options{Minify: true})
	if err != nil {
		return execution.Execution{}, false
	}
	exec, err := m.runner.Run(ctx, script, m.execTimeout)
	if err != nil {
		return execution.Execution{}, false
	}
	return exec, true
}

// reduce iterates instruction-removal, block-collapse and literal
// simplification passes to a fixed point, per spec.md §4.6's "algorithm
// sketch". Each pass applies the first improving change it finds; the
// outer loop keeps calling passes until none of them change anything.
func (m *Minimizer) reduce(program il.Program, isInteresting func(il.Program) bool) il.Program {
	current := program
	floor := int(float64(current.Len()) * m.minimizationLimit)

	for {
		if next, ok := tryRemoveInstruction(current, isInteresting, floor); ok {
			current = next
			continue
		}
		if next, ok := tryCollapseBlock(current, isInteresting, floor); ok {
			current = next
			continue
		}
		if next, ok := trySimplifyLiteral(current, isInteresting); ok {
			current = next
			continue
		}
		return current
	}
}

// tryRemoveInstruction removes the first non-block-structural
// instruction whose absence still satisfies isInteresting, never
// letting the result drop below floor.
func tryRemoveInstruction(p il.Program, isInteresting func(il.Program) bool, floor int) (il.Program, bool) {
	instrs := p.Instructions()
	if len(instrs) <= floor {
		return il.Program{}, false
	}
	for i, instr := range instrs {
		if instr.OpensBlock() || instr.ClosesBlock() {
			continue
		}
		candidate, ok := rebuildExcluding(instrs, map[int]bool{i: true})
		if !ok || candidate.Len() < floor {
			continue
		}
		if isInteresting(candidate) {
			return candidate, true
		}
	}
	return il.Program{}, false
}

// tryCollapseBlock removes an entire matched block (opener through
// closer, body included) as one unit, for blocks whose presence isn't
// needed to keep reproducing the target behavior.
func tryCollapseBlock(p il.Program, isInteresting func(il.Program) bool, floor int) (il.Program, bool) {
	instrs := p.Instructions()
	for _, pair := range blockPairs(instrs) {
		start, end := pair[0], pair[1]
		excluded := make(map[int]bool, end-start+1)
		for i := start; i <= end; i++ {
			excluded[i] = true
		}
		candidate, ok := rebuildExcluding(instrs, excluded)
		if !ok || candidate.Len() < floor {
			continue
		}
		if isInteresting(candidate) {
			return candidate, true
		}
	}
	return il.Program{}, false
}

// trySimplifyLiteral replaces the first simplifiable literal immediate
// (towards its zero value) whose simplification still satisfies
// isInteresting. This pass never changes instruction count, so it
// isn't subject to the minimizationLimit floor.
func trySimplifyLiteral(p il.Program, isInteresting func(il.Program) bool) (il.Program, bool) {
	instrs := p.Instructions()
	for i, instr := range instrs {
		simplified, changed := simplifyLiteral(instr.Operation)
		if !changed {
			continue
		}
		candidate, ok := rebuildReplacing(instrs, i, simplified)
		if !ok {
			continue
		}
		if isInteresting(candidate) {
			return candidate, true
		}
	}
	return il.Program{}, false
}

func simplifyLiteral(op il.Operation) (il.Operation, bool) {
	switch op.Op {
	case il.LoadInteger:
		if op.IntValue != 0 {
			op.IntValue = 0
			return op, true
		}
	case il.LoadFloat:
		if op.FloatValue != 0 {
			op.FloatValue = 0
			return op, true
		}
	case il.LoadString:
		if op.StringValue != "" {
			op.StringValue = ""
			return op, true
		}
	case il.LoadBoolean:
		if op.BoolValue {
			op.BoolValue = false
			return op, true
		}
	}
	return op, false
}

// blockPairs returns the (start, end) instruction-index pairs of every
// top-level-within-p matched block, skipping connector instructions
// (BeginElse/BeginCatch, which both open and close) so an If/Else or
// Try/Catch is reported as one [BeginIf..EndIf] span rather than being
// split at the connector.
func blockPairs(instrs []il.Instruction) [][2]int {
	var stack []int
	var pairs [][2]int
	for i, instr := range instrs {
		attrs := instr.Attributes()
		opens := attrs.Has(il.AttrOpensBlock)
		closes := attrs.Has(il.AttrClosesBlock)
		switch {
		case opens && closes:
			// connector instruction, not a new nesting level
		case opens:
			stack = append(stack, i)
		case closes:
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pairs = append(pairs, [2]int{start, i})
		}
	}
	return pairs
}

// emit replays instr's operation into b through whichever of
// Emit/OpenBlock/CloseBlock its attributes require.
func emit(b *builder.Builder, op il.Operation, inputs []il.Variable) ([]il.Variable, error) {
	switch {
	case op.Attributes().Has(il.AttrOpensBlock):
		return b.OpenBlock(op, inputs)
	case op.Attributes().Has(il.AttrClosesBlock):
		return nil, b.CloseBlock(op, inputs)
	default:
		return b.Emit(op, inputs)
	}
}

// rebuildExcluding replays instrs into a fresh Builder, skipping every
// index in excluded and remapping surviving variable ids (since
// removing instructions shifts the dense id space). Returns ok=false
// if a surviving instruction needs a variable only an excluded one
// defined, or if the result fails to verify.
func rebuildExcluding(instrs []il.Instruction, excluded map[int]bool) (il.Program, bool) {
	b := builder.New()
	remap := make(map[il.Variable]il.Variable)
	for i, instr := range instrs {
		if excluded[i] {
			continue
		}
		inputs := make([]il.Variable, len(instr.Inputs))
		for j, v := range instr.Inputs {
			nv, ok := remap[v]
			if !ok {
				return il.Program{}, false
			}
			inputs[j] = nv
		}
		outputs, err := emit(b, instr.Operation, inputs)
		if err != nil {
			return il.Program{}, false
		}
		old := instr.AllOutputs()
		for k, ov := range old {
			if k < len(outputs) {
				remap[ov] = outputs[k]
			}
		}
	}
	p, err := b.Finalize()
	if err != nil {
		return il.Program{}, false
	}
	return p, true
}

// rebuildReplacing is rebuildExcluding's counterpart for literal
// simplification: every instruction replays unchanged except idx,
// which uses replacement's Operation (same arity, so no remap shift
// occurs, but the same remap machinery is reused for uniformity).
func rebuildReplacing(instrs []il.Instruction, idx int, replacement il.Operation) (il.Program, bool) {
	b := builder.New()
	remap := make(map[il.Variable]il.Variable)
	for i, instr := range instrs {
		op := instr.Operation
		if i == idx {
			op = replacement
		}
		inputs := make([]il.Variable, len(instr.Inputs))
		for j, v := range instr.Inputs {
			nv, ok := remap[v]
			if !ok {
				return il.Program{}, false
			}
			inputs[j] = nv
		}
		outputs, err := emit(b, op, inputs)
		if err != nil {
			return il.Program{}, false
		}
		old := instr.AllOutputs()
		for k, ov := range old {
			if k < len(outputs) {
				remap[ov] = outputs[k]
			}
		}
	}
	p, err := b.Finalize()
	if err != nil {
		return il.Program{}, false
	}
	return p, true
}
