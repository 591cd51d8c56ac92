// Package builder implements the IL Builder (spec.md §4.1): incremental
// Program construction that maintains the invariants in il.Program.Verify
// as each instruction is emitted, rather than checking them after the
// fact. Mutators and code generators are built against this type.
package builder

import (
	"fmt"

	"ilfuzz/internal/il"
)

// BuildAbortedError is the "well-defined build-aborted signal" spec.md
// §4.1 requires in release builds when an emission would violate an
// invariant. In Debug mode the same condition panics instead (spec.md
// §9: "the rewrite... becomes abort-on-invariant-violation in debug and
// surfaced errors in release where recoverable").
type BuildAbortedError struct {
	Reason string
}

func (e *BuildAbortedError) Error() string { return "builder: build aborted: " + e.Reason }

type blockFrame struct {
	opener        il.Opcode
	parentContext il.Context
	sawElse       bool
	sawCatch      bool
}

// Builder incrementally constructs an il.Program. The zero value is not
// usable; call New.
type Builder struct {
	// Debug makes invariant violations panic instead of returning a
	// BuildAbortedError, for use in tests and development builds where
	// a violating mutator indicates a programmer error worth crashing
	// on immediately (spec.md §9).
	Debug bool

	instructions []il.Instruction
	nextVar      il.Variable

	contextStack []il.Context
	blocks       []blockFrame

	// scopes mirrors il.Program.Verify's visibility scopes: the set of
	// variables defined in each currently-open scope, innermost last.
	scopes []map[il.Variable]bool

	// named mirrors scopes but maps source-level identifiers to
	// variables, used only by scopeLookup during source→IL compilation
	// and splicing (spec.md §4.1).
	named []map[string]il.Variable
}

// New returns a Builder ready to emit at the top level (javascript
// context, empty block stack).
func New() *Builder {
	return &Builder{
		contextStack: []il.Context{il.ContextJavaScript},
		scopes:       []map[il.Variable]bool{make(map[il.Variable]bool)},
		named:        []map[string]il.Variable{make(map[string]il.Variable)},
	}
}

// NewFromProgram returns a Builder pre-filled with parent's
// instructions, used by the Mutational engine mode (spec.md §4.2: "copy
// a parent program into a new Builder"). parent must already be
// well-formed; the variable counter and top-level scope are primed from
// it so that further emission continues the numbering correctly.
func NewFromProgram(parent il.Program) *Builder {
	b := New()
	for _, instr := range parent.Instructions() {
		b.replay(instr)
	}
	return b
}

// replay re-applies an already-valid instruction's bookkeeping
// (context/scope/variable-counter updates) without re-validating it,
// used to seed a Builder from an existing Program.
func (b *Builder) replay(instr il.Instruction) {
	b.instructions = append(b.instructions, instr)
	op := instr.Operation
	switch op.Op {
	case il.BeginElse:
		b.popScope()
		b.blocks[len(b.blocks)-1].sawElse = true
		b.pushScope(il.ContextEmpty, true)
	case il.BeginCatch:
		b.popScope()
		b.blocks[len(b.blocks)-1].sawCatch = true
		b.pushScope(op.ContextToOpen(), true)
		for _, v := range instr.InnerOutputs {
			b.bind(v)
		}
		b.advanceCounter(instr)
		return
	default:
		if instr.OpensBlock() {
			for _, v := range instr.Outputs {
				b.bind(v)
			}
			b.blocks = append(b.blocks, blockFrame{opener: op.Op, parentContext: b.currentContext()})
			b.pushScope(op.ContextToOpen(), instr.Attributes().Has(il.AttrPropagatesSurroundingContext))
			for _, v := range instr.InnerOutputs {
				b.bind(v)
			}
			b.advanceCounter(instr)
			return
		}
		if instr.ClosesBlock() {
			b.popScope()
			if len(b.blocks) > 0 {
				b.blocks = b.blocks[:len(b.blocks)-1]
			}
			for _, v := range instr.Outputs {
				b.bind(v)
			}
			b.advanceCounter(instr)
			return
		}
	}
	for _, v := range instr.Outputs {
		b.bind(v)
	}
	b.advanceCounter(instr)
}

func (b *Builder) bind(v il.Variable) {
	b.scopes[len(b.scopes)-1][v] = true
}

func (b *Builder) advanceCounter(instr il.Instruction) {
	for _, v := range instr.AllOutputs() {
		if v+1 > b.nextVar {
			b.nextVar = v + 1
		}
	}
}

func (b *Builder) currentContext() il.Context { return b.contextStack[len(b.contextStack)-1] }

func (b *Builder) pushScope(ctxToOpen il.Context, propagate bool) {
	next := ctxToOpen
	if propagate {
		next = b.currentContext().Union(ctxToOpen)
	}
	b.contextStack = append(b.contextStack, next)
	b.scopes = append(b.scopes, make(map[il.Variable]bool))
	b.named = append(b.named, make(map[string]il.Variable))
}

func (b *Builder) popScope() {
	b.contextStack = b.contextStack[:len(b.contextStack)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	b.named = b.named[:len(b.named)-1]
}

func (b *Builder) fail(reason string) error {
	if b.Debug {
		panic(&BuildAbortedError{reason})
	}
	return &BuildAbortedError{reason}
}

func (b *Builder) allocOutputs(n int) []il.Variable {
	out := make([]il.Variable, n)
	for i := range out {
		out[i] = b.nextVar
		b.nextVar++
	}
	return out
}

func (b *Builder) isVisible(v il.Variable) bool {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if b.scopes[i][v] {
			return true
		}
	}
	return false
}

func (b *Builder) checkInputs(inputs []il.Variable) error {
	for _, in := range inputs {
		if !b.isVisible(in) {
			return b.fail(fmt.Sprintf("input %s not visible at current position", in))
		}
	}
	return nil
}

// CurrentContext returns the innermost Context frame on the stack
// (spec.md §4.1): the union with its enclosing frames for blocks that
// propagate context, only the block's own Context for those that don't.
func (b *Builder) CurrentContext() il.Context { return b.currentContext() }

// NumVariables returns how many variables have been allocated so far.
func (b *Builder) NumVariables() int { return int(b.nextVar) }

// Instructions returns a copy of the instructions emitted so far, for
// callers (code generators, mutators) that need to inspect what
// defines a given variable before the program is finalized.
func (b *Builder) Instructions() []il.Instruction {
	out := make([]il.Instruction, len(b.instructions))
	copy(out, b.instructions)
	return out
}

// ResetFrom discards everything emitted so far and replays instrs from
// a clean state, as if New() had been called and instrs replayed one
// at a time. Used by mutators that build a replacement instruction
// sequence in a scratch Builder and then commit it back into the
// Builder the engine handed them.
func (b *Builder) ResetFrom(instrs []il.Instruction) {
	b.instructions = nil
	b.nextVar = 0
	b.contextStack = []il.Context{il.ContextJavaScript}
	b.blocks = nil
	b.scopes = []map[il.Variable]bool{make(map[il.Variable]bool)}
	b.named = []map[string]il.Variable{make(map[string]il.Variable)}
	for _, instr := range instrs {
		b.replay(instr)
	}
}

// Emit appends a non-block instruction. It allocates fresh output
// variables, rejects the call if operation's RequiredContext is not a
// subset of CurrentContext, and rejects inputs not visible at this
// position. Block-opening/closing operations must go through OpenBlock/
// CloseBlock instead.
func (b *Builder) Emit(op il.Operation, inputs []il.Variable) ([]il.Variable, error) {
	if op.Attributes().Has(il.AttrOpensBlock) || op.Attributes().Has(il.AttrClosesBlock) {
		return nil, b.fail(fmt.Sprintf("%s must be emitted via OpenBlock/CloseBlock", op.Op))
	}
	if !b.currentContext().Contains(op.RequiredContext()) {
		return nil, b.fail(fmt.Sprintf("%s requires context %s, have %s", op.Op, op.RequiredContext(), b.currentContext()))
	}
	if err := b.checkInputs(inputs); err != nil {
		return nil, err
	}
	if int(b.nextVar)+op.NumOutputs() > il.MaxVariables {
		return nil, b.fail("variable counter would exceed MaxVariables")
	}
	outputs := b.allocOutputs(op.NumOutputs())
	for _, v := range outputs {
		b.bind(v)
	}
	b.instructions = append(b.instructions, il.Instruction{Operation: op, Inputs: inputs, Outputs: outputs})
	return outputs, nil
}

// OpenBlock emits a block-opening instruction and pushes the Context
// frame it declares. It returns the "header outputs": the operation's
// outer outputs (e.g. a function's own value, visible after the block
// closes too) followed by its inner outputs (e.g. loop/parameter/
// exception variables, visible only inside the block).
func (b *Builder) OpenBlock(op il.Operation, inputs []il.Variable) ([]il.Variable, error) {
	if !op.Attributes().Has(il.AttrOpensBlock) {
		return nil, b.fail(fmt.Sprintf("%s does not open a block", op.Op))
	}
	if op.Op == il.BeginElse {
		return b.openElse(op)
	}
	if op.Op == il.BeginCatch {
		return b.openCatch(op)
	}
	if !b.currentContext().Contains(op.RequiredContext()) {
		return nil, b.fail(fmt.Sprintf("%s requires context %s, have %s", op.Op, op.RequiredContext(), b.currentContext()))
	}
	if err := b.checkInputs(inputs); err != nil {
		return nil, err
	}
	outer := b.allocOutputs(op.NumOutputs())
	for _, v := range outer {
		b.bind(v)
	}
	b.blocks = append(b.blocks, blockFrame{opener: op.Op, parentContext: b.currentContext()})
	b.pushScope(op.ContextToOpen(), op.Attributes().Has(il.AttrPropagatesSurroundingContext))
	inner := b.allocOutputs(op.NumInnerOutputs())
	for _, v := range inner {
		b.bind(v)
	}
	b.instructions = append(b.instructions, il.Instruction{Operation: op, Inputs: inputs, Outputs: outer, InnerOutputs: inner})
	return append(append([]il.Variable{}, outer...), inner...), nil
}

func (b *Builder) openElse(op il.Operation) ([]il.Variable, error) {
	if len(b.blocks) == 0 || b.blocks[len(b.blocks)-1].opener != il.BeginIf || b.blocks[len(b.blocks)-1].sawElse {
		return nil, b.fail("BeginElse without a matching open BeginIf")
	}
	b.popScope()
	b.blocks[len(b.blocks)-1].sawElse = true
	b.pushScope(il.ContextEmpty, true)
	b.instructions = append(b.instructions, il.Instruction{Operation: op})
	return nil, nil
}

func (b *Builder) openCatch(op il.Operation) ([]il.Variable, error) {
	if len(b.blocks) == 0 || b.blocks[len(b.blocks)-1].opener != il.BeginTry || b.blocks[len(b.blocks)-1].sawCatch {
		return nil, b.fail("BeginCatch without a matching open BeginTry")
	}
	b.popScope()
	b.blocks[len(b.blocks)-1].sawCatch = true
	b.pushScope(op.ContextToOpen(), true)
	inner := b.allocOutputs(op.NumInnerOutputs())
	for _, v := range inner {
		b.bind(v)
	}
	b.instructions = append(b.instructions, il.Instruction{Operation: op, InnerOutputs: inner})
	return inner, nil
}

// CloseBlock emits a block-closing instruction, restoring the
// surrounding Context.
func (b *Builder) CloseBlock(op il.Operation, inputs []il.Variable) error {
	if !op.Attributes().Has(il.AttrClosesBlock) {
		return b.fail(fmt.Sprintf("%s does not close a block", op.Op))
	}
	if len(b.blocks) == 0 {
		return b.fail(fmt.Sprintf("%s closes a block but none is open", op.Op))
	}
	top := b.blocks[len(b.blocks)-1]
	ok := false
	switch op.Op {
	case il.EndIf:
		ok = top.opener == il.BeginIf || top.opener == il.BeginElse
	case il.EndTry:
		ok = top.opener == il.BeginTry && top.sawCatch
	default:
		ok = closerFor[top.opener] == op.Op
	}
	if !ok {
		return b.fail(fmt.Sprintf("%s does not match open block %s", op.Op, top.opener))
	}
	if err := b.checkInputs(inputs); err != nil {
		return err
	}
	b.popScope()
	b.blocks = b.blocks[:len(b.blocks)-1]
	outputs := b.allocOutputs(op.NumOutputs())
	for _, v := range outputs {
		b.bind(v)
	}
	b.instructions = append(b.instructions, il.Instruction{Operation: op, Inputs: inputs, Outputs: outputs})
	return nil
}

var closerFor = map[il.Opcode]il.Opcode{
	il.BeginFunctionDefinition: il.EndFunctionDefinition,
	il.BeginWhile:              il.EndWhile,
	il.BeginDoWhile:            il.EndDoWhile,
	il.BeginFor:                il.EndFor,
	il.BeginForIn:              il.EndForIn,
	il.BeginForOf:              il.EndForOf,
	il.BeginWith:               il.EndWith,
}

// ScopeLookupResult is the closed {InScope, NotFound} result of
// scopeLookup (spec.md §4.1).
type ScopeLookupResult struct {
	variable il.Variable
	found    bool
}

// Found reports whether the identifier resolved to a variable.
func (r ScopeLookupResult) Found() bool { return r.found }

// Variable returns the resolved variable; valid only if Found() is true.
func (r ScopeLookupResult) Variable() il.Variable { return r.variable }

// ScopeLookup resolves a textual identifier to a variable in the
// innermost scope providing it. Used only during source→IL compilation
// and splicing, where named bindings from the original source/donor
// program need to be re-attached to builder-local variables.
func (b *Builder) ScopeLookup(identifier string) ScopeLookupResult {
	for i := len(b.named) - 1; i >= 0; i-- {
		if v, ok := b.named[i][identifier]; ok {
			return ScopeLookupResult{variable: v, found: true}
		}
	}
	return ScopeLookupResult{}
}

// BindIdentifier associates identifier with v in the innermost scope,
// making it resolvable by a later ScopeLookup.
func (b *Builder) BindIdentifier(identifier string, v il.Variable) {
	b.named[len(b.named)-1][identifier] = v
}

// VisibleVariables returns the variable numbers defined in enclosing
// scopes at the current position, filtered by an optional predicate. A
// nil filter returns every visible variable.
func (b *Builder) VisibleVariables(filter func(il.Variable) bool) []il.Variable {
	var out []il.Variable
	seen := make(map[il.Variable]bool)
	for i := len(b.scopes) - 1; i >= 0; i-- {
		for v := range b.scopes[i] {
			if seen[v] {
				continue
			}
			seen[v] = true
			if filter == nil || filter(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Finalize sanity-checks block balance and returns an immutable
// Program. Finalize fails if any block is still open.
func (b *Builder) Finalize() (il.Program, error) {
	if len(b.blocks) != 0 {
		return il.Program{}, b.fail(fmt.Sprintf("%d block(s) left unclosed", len(b.blocks)))
	}
	p := il.NewProgram(b.instructions)
	if err := p.Verify(); err != nil {
		return il.Program{}, b.fail(err.Error())
	}
	return p, nil
}
