// Package il's Program type and its global well-formedness invariants
// (spec.md §3):
//
//  1. Definition-before-use: every input variable is defined at an
//     earlier index, in a scope enclosing the use site.
//  2. Single static assignment: each variable number is an output of
//     exactly one instruction.
//  3. Block balance: every block-opening opcode is matched by exactly
//     one block-closing opcode of the same kind; blocks nest but never
//     cross; If may include one intermediate Else, Try one Catch.
//  4. Context discipline: every instruction's RequiredContext must be a
//     subset of the Context active at its position.
//  5. Variable numbering density: variable ids are consecutive integers
//     in the insertion order of their defining instruction, starting at
//     zero.
package il

import "fmt"

// Program is an immutable, ordered Instruction sequence. Programs are
// produced by a Builder and, once finalized, never mutated in place —
// every transformation (mutation, splicing, minimization) builds a new
// Program via a fresh Builder (spec.md §9 design note).
type Program struct {
	instructions []Instruction
}

// NewProgram wraps an already-valid instruction slice. Callers that did
// not build the slice through a Builder must call Verify before trusting
// the result.
func NewProgram(instructions []Instruction) Program {
	cp := make([]Instruction, len(instructions))
	copy(cp, instructions)
	return Program{instructions: cp}
}

// Instructions returns the Program's instruction sequence. The returned
// slice is owned by the caller but instructions themselves should be
// treated as read-only; use a Builder to derive a modified Program.
func (p Program) Instructions() []Instruction { return p.instructions }

// Len returns the number of instructions in the Program.
func (p Program) Len() int { return len(p.instructions) }

// NumVariables returns the number of distinct variables the Program
// assigns — by invariant 5 this also equals one past the highest
// variable id in the Program.
func (p Program) NumVariables() int {
	n := 0
	for _, instr := range p.instructions {
		n += len(instr.Outputs) + len(instr.InnerOutputs)
	}
	return n
}

// IsEmpty reports whether the Program has zero instructions. An empty
// Program is valid (spec.md §8) and lifts/executes as a no-op.
func (p Program) IsEmpty() bool { return len(p.instructions) == 0 }

// Clone returns a deep-enough copy of p suitable for a Builder to treat
// as a parent (instruction and operand slices are copied; Operation
// immediates, being value types or already-immutable slices, are
// shared).
func (p Program) Clone() Program {
	instrs := make([]Instruction, len(p.instructions))
	for i, in := range p.instructions {
		instrs[i] = Instruction{
			Operation:    in.Operation,
			Inputs:       append([]Variable(nil), in.Inputs...),
			Outputs:      append([]Variable(nil), in.Outputs...),
			InnerOutputs: append([]Variable(nil), in.InnerOutputs...),
		}
	}
	return Program{instructions: instrs}
}

func (p Program) String() string {
	return fmt.Sprintf("Program[%d instructions, %d variables]", p.Len(), p.NumVariables())
}
