// Package lifter defines the Lifter interface consumed from outside the
// fuzzer core (spec.md §6.3). The IL→target-language lifter body is an
// explicit Non-goal (spec.md §1, SPEC_FULL §13): it is a separate tool
// in the real system, reached only through this interface. This
// package carries the contract the scheduler and minimizer depend on,
// plus a minimal stub implementation used in tests and as the CLI's
// placeholder before a real lifter is wired in.
package lifter

import (
	"fmt"
	"strings"

	"ilfuzz/internal/il"
)

// Options mirrors spec.md §6.3's lift() options.
type Options struct {
	Minify          bool
	IncludeComments bool
	IncludeTypes    bool
	IncludeHistory  bool
}

// Lifter produces source code semantically equivalent to an il.Program
// under the target language's evaluation semantics. The core makes no
// assumption about the exact surface form it returns.
type Lifter interface {
	Lift(p il.Program, opts Options) (string, error)
}

// Stub is a minimal Lifter that renders each instruction as a
// pseudo-code line rather than real target-language source. It exists
// so the scheduler, minimizer, and CLI have something to run against
// without depending on a real lifter's implementation, which is out of
// scope here (spec.md §1: "IL→target-language lifter" is reached only
// through the Lifter interface).
type Stub struct{}

func (Stub) Lift(p il.Program, opts Options) (string, error) {
	var b strings.Builder
	for i, instr := range p.Instructions() {
		if opts.IncludeComments {
			fmt.Fprintf(&b, "// instr %d\n", i)
		}
		fmt.Fprintf(&b, "%s(%v) -> %v\n", instr.Operation.Op, instr.Inputs, instr.AllOutputs())
	}
	return b.String(), nil
}
