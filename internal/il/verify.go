package il

import "fmt"

// InvariantError reports a specific §3 invariant violated by a Program,
// at the instruction index where the violation was detected. Builders
// surface this as a build-aborted signal (see builder package);
// Verify surfaces it directly to callers that load a Program from
// elsewhere (e.g. deserialization, corpus import).
type InvariantError struct {
	Index   int
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("il: invariant violated at instruction %d: %s", e.Index, e.Message)
}

type blockFrame struct {
	opener        Opcode
	parentContext Context
	sawElse       bool // If-blocks: whether BeginElse has already been consumed
	sawCatch      bool // Try-blocks: whether BeginCatch has already been consumed
}

// closerFor maps straightforward (one-opener, one-closer) block pairs.
// If/Else/EndIf and Try/Catch/EndTry are handled specially in Verify.
var closerFor = map[Opcode]Opcode{
	BeginFunctionDefinition: EndFunctionDefinition,
	BeginWhile:              EndWhile,
	BeginDoWhile:            EndDoWhile,
	BeginFor:                EndFor,
	BeginForIn:              EndForIn,
	BeginForOf:              EndForOf,
	BeginWith:               EndWith,
}

// Verify checks every invariant in spec.md §3 and returns the first
// violation found, or nil if p is well-formed.
func (p Program) Verify() error {
	nextVar := Variable(0)
	defined := make(map[Variable]bool, p.NumVariables())
	scopes := []map[Variable]bool{make(map[Variable]bool)}
	contextStack := []Context{ContextJavaScript}
	var blocks []blockFrame

	currentContext := func() Context { return contextStack[len(contextStack)-1] }

	isVisible := func(v Variable) bool {
		for i := len(scopes) - 1; i >= 0; i-- {
			if scopes[i][v] {
				return true
			}
		}
		return false
	}

	assign := func(idx int, v Variable) error {
		if v >= MaxVariables {
			return &InvariantError{idx, fmt.Sprintf("variable %d exceeds MaxVariables", v)}
		}
		if defined[v] {
			return &InvariantError{idx, fmt.Sprintf("variable %s assigned more than once", v)}
		}
		if v != nextVar {
			return &InvariantError{idx, fmt.Sprintf("variable numbering not dense: expected %s, got %s", nextVar, v)}
		}
		defined[v] = true
		scopes[len(scopes)-1][v] = true
		nextVar++
		return nil
	}

	pushScope := func(ctxToOpen Context, propagate bool) {
		parent := currentContext()
		next := ctxToOpen
		if propagate {
			next = parent.Union(ctxToOpen)
		}
		contextStack = append(contextStack, next)
		scopes = append(scopes, make(map[Variable]bool))
	}

	popScope := func() {
		contextStack = contextStack[:len(contextStack)-1]
		scopes = scopes[:len(scopes)-1]
	}

	for idx, instr := range p.instructions {
		op := instr.Operation

		// Invariant 4: context discipline. Reassign/Dup/etc. that sit
		// inside a block still must satisfy their own requirement, but
		// block-closers are exempt from the check against the *inner*
		// context since they execute as the transition back out.
		if !instr.ClosesBlock() {
			if !currentContext().Contains(op.RequiredContext()) {
				return &InvariantError{idx, fmt.Sprintf("opcode %s requires context %s, have %s", op.Op, op.RequiredContext(), currentContext())}
			}
		}

		// Invariant 1: definition-before-use, checked before this
		// instruction's own outputs are registered (SSA forbids
		// self-reference).
		for _, in := range instr.Inputs {
			if !defined[in] {
				return &InvariantError{idx, fmt.Sprintf("input %s used before definition", in)}
			}
			if !isVisible(in) {
				return &InvariantError{idx, fmt.Sprintf("input %s not visible in current scope", in)}
			}
		}

		switch op.Op {
		case BeginElse:
			if len(blocks) == 0 || blocks[len(blocks)-1].opener != BeginIf || blocks[len(blocks)-1].sawElse {
				return &InvariantError{idx, "BeginElse without a matching open BeginIf"}
			}
			popScope()
			blocks[len(blocks)-1].sawElse = true
			pushScope(ContextEmpty, true)

		case BeginCatch:
			if len(blocks) == 0 || blocks[len(blocks)-1].opener != BeginTry || blocks[len(blocks)-1].sawCatch {
				return &InvariantError{idx, "BeginCatch without a matching open BeginTry"}
			}
			popScope()
			blocks[len(blocks)-1].sawCatch = true
			pushScope(op.ContextToOpen(), true)
			for _, v := range instr.InnerOutputs {
				if err := assign(idx, v); err != nil {
					return err
				}
			}
			continue

		default:
			if instr.OpensBlock() {
				for _, v := range instr.Outputs {
					if err := assign(idx, v); err != nil {
						return err
					}
				}
				blocks = append(blocks, blockFrame{opener: op.Op, parentContext: currentContext()})
				pushScope(op.ContextToOpen(), instr.Attributes().Has(AttrPropagatesSurroundingContext))
				for _, v := range instr.InnerOutputs {
					if err := assign(idx, v); err != nil {
						return err
					}
				}
				continue
			}

			if instr.ClosesBlock() {
				if len(blocks) == 0 {
					return &InvariantError{idx, fmt.Sprintf("%s closes a block but none is open", op.Op)}
				}
				top := blocks[len(blocks)-1]
				ok := false
				switch op.Op {
				case EndIf:
					ok = top.opener == BeginIf || top.opener == BeginElse
				case EndTry:
					ok = top.opener == BeginTry && top.sawCatch
				default:
					ok = closerFor[top.opener] == op.Op
				}
				if !ok {
					return &InvariantError{idx, fmt.Sprintf("%s does not match open block %s", op.Op, top.opener)}
				}
				if !currentContext().Contains(op.RequiredContext()) {
					return &InvariantError{idx, fmt.Sprintf("opcode %s requires context %s, have %s", op.Op, op.RequiredContext(), currentContext())}
				}
				popScope()
				blocks = blocks[:len(blocks)-1]
				for _, v := range instr.Outputs {
					if err := assign(idx, v); err != nil {
						return err
					}
				}
				continue
			}
		}

		for _, v := range instr.Outputs {
			if err := assign(idx, v); err != nil {
				return err
			}
		}
	}

	if len(blocks) != 0 {
		return &InvariantError{len(p.instructions), fmt.Sprintf("%d block(s) left unclosed", len(blocks))}
	}
	if int(nextVar) != p.NumVariables() {
		return &InvariantError{len(p.instructions), "variable numbering has gaps"}
	}
	return nil
}
