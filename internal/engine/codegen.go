package engine

import (
	"math/rand"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/il"
)

// CodeGenerator is spec.md §4.2's "named unit declaring requiredContext,
// a list of input value-type predicates, and a builder callback". Build
// receives inputs already chosen to satisfy InputKinds; OpensBlock
// generators additionally get their matching block closed by the
// caller (Engine.generateBlock) once their body has been produced.
type CodeGenerator struct {
	Name            string
	RequiredContext il.Context
	// ContextToOpen is the Context this generator's block makes
	// available inside it; zero for non-block-opening generators. Used
	// by the context-reachability graph.
	ContextToOpen il.Context
	OpensBlock    bool
	InputKinds    []ValueKind
	Build         func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error
	// Closer returns the operation that closes this generator's block.
	// Only meaningful when OpensBlock is true.
	Closer func() il.Operation
}

func randInt64(rng *rand.Rand) int64 { return rng.Int63n(2000) - 1000 }

func randString(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_$"
	n := rng.Intn(8) + 1
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(buf)
}

// Generators is the fixed registry of code generators the engine draws
// from in both Generative mode and CodeGenMutator.
var Generators = []CodeGenerator{
	{
		Name: "LoadInteger",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: randInt64(rng)}, nil)
			return err
		},
	},
	{
		Name: "LoadFloat",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadFloat, FloatValue: rng.Float64() * 1000}, nil)
			return err
		},
	},
	{
		Name: "LoadString",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadString, StringValue: randString(rng)}, nil)
			return err
		},
	},
	{
		Name: "LoadBoolean",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadBoolean, BoolValue: rng.Intn(2) == 0}, nil)
			return err
		},
	},
	{
		Name: "LoadNull",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadNull}, nil)
			return err
		},
	},
	{
		Name: "LoadUndefined",
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadUndefined}, nil)
			return err
		},
	},
	{
		Name:       "BinaryOperation",
		InputKinds: []ValueKind{KindNumber, KindNumber},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			op := il.BinaryOp(rng.Intn(int(il.BinaryLogicalOr) + 1))
			_, err := b.Emit(il.Operation{Op: il.BinaryOperation, BinaryOp: op}, inputs)
			return err
		},
	},
	{
		Name:       "UnaryOperation",
		InputKinds: []ValueKind{KindNumber},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			op := il.UnaryOp(rng.Intn(int(il.UnaryPostDec) + 1))
			_, err := b.Emit(il.Operation{Op: il.UnaryOperation, UnaryOp: op}, inputs)
			return err
		},
	},
	{
		Name:       "Compare",
		InputKinds: []ValueKind{KindAny, KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			cmp := il.Comparator(rng.Intn(int(il.CompareGreaterThanOrEqual) + 1))
			_, err := b.Emit(il.Operation{Op: il.Compare, Comparator: cmp}, inputs)
			return err
		},
	},
	{
		Name:       "CreateArray",
		InputKinds: []ValueKind{KindAny, KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.CreateArray, Spreads: make([]bool, len(inputs))}, inputs)
			return err
		},
	},
	{
		Name:       "CreateObject",
		InputKinds: []ValueKind{KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			names := make([]string, len(inputs))
			for i := range names {
				names[i] = randString(rng)
			}
			_, err := b.Emit(il.Operation{Op: il.CreateObject, PropertyNames: names}, inputs)
			return err
		},
	},
	{
		Name:       "LoadProperty",
		InputKinds: []ValueKind{KindObject},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.LoadProperty, StringValue: randString(rng)}, inputs)
			return err
		},
	},
	{
		Name:       "TypeOf",
		InputKinds: []ValueKind{KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.TypeOf}, inputs)
			return err
		},
	},
	{
		Name:       "Dup",
		InputKinds: []ValueKind{KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.Dup}, inputs)
			return err
		},
	},
	{
		Name:            "BeginIf",
		OpensBlock:      true,
		InputKinds:      []ValueKind{KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.OpenBlock(il.Operation{Op: il.BeginIf}, inputs)
			return err
		},
		Closer: func() il.Operation { return il.Operation{Op: il.EndIf} },
	},
	{
		Name:          "BeginWhile",
		OpensBlock:    true,
		ContextToOpen: il.ContextLoop,
		InputKinds:    []ValueKind{KindAny, KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			cmp := il.Comparator(rng.Intn(int(il.CompareGreaterThanOrEqual) + 1))
			_, err := b.OpenBlock(il.Operation{Op: il.BeginWhile, Comparator: cmp}, inputs)
			return err
		},
		Closer: func() il.Operation { return il.Operation{Op: il.EndWhile} },
	},
	{
		Name:          "BeginFor",
		OpensBlock:    true,
		ContextToOpen: il.ContextLoop,
		InputKinds:    []ValueKind{KindNumber, KindNumber},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			cmp := il.Comparator(rng.Intn(int(il.CompareGreaterThanOrEqual) + 1))
			_, err := b.OpenBlock(il.Operation{Op: il.BeginFor, Comparator: cmp}, inputs)
			return err
		},
		Closer: func() il.Operation { return il.Operation{Op: il.EndFor} },
	},
	{
		Name:          "BeginFunctionDefinition",
		OpensBlock:    true,
		ContextToOpen: il.ContextSubroutine,
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			n := rng.Intn(3)
			_, err := b.OpenBlock(il.Operation{Op: il.BeginFunctionDefinition, FunctionKind: il.FunctionPlain, NumParameters: n}, nil)
			return err
		},
		Closer: func() il.Operation { return il.Operation{Op: il.EndFunctionDefinition} },
	},
}

// loopOnlyGenerators (Break and Continue) are only offered inside a loop
// context; kept separate from Generators since they need requiredContext
// gating that the simple registry entries above don't otherwise use.
var loopOnlyGenerators = []CodeGenerator{
	{
		Name:            "Break",
		RequiredContext: il.ContextLoop,
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.Break}, nil)
			return err
		},
	},
	{
		Name:            "Continue",
		RequiredContext: il.ContextLoop,
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.Continue}, nil)
			return err
		},
	},
}

// subroutineOnlyGenerators require subroutine context (only offered
// inside a function body).
var subroutineOnlyGenerators = []CodeGenerator{
	{
		Name:            "Return",
		RequiredContext: il.ContextSubroutine,
		InputKinds:      []ValueKind{KindAny},
		Build: func(b *builder.Builder, rng *rand.Rand, inputs []il.Variable) error {
			_, err := b.Emit(il.Operation{Op: il.Return}, inputs)
			return err
		},
	},
}

// eligibleGenerators returns every generator whose RequiredContext is
// satisfied by the builder's current context.
func eligibleGenerators(b *builder.Builder) []CodeGenerator {
	var out []CodeGenerator
	cur := b.CurrentContext()
	for _, g := range Generators {
		if cur.Contains(g.RequiredContext) {
			out = append(out, g)
		}
	}
	if cur.Contains(il.ContextLoop) {
		out = append(out, loopOnlyGenerators...)
	}
	if cur.Contains(il.ContextSubroutine) {
		out = append(out, subroutineOnlyGenerators...)
	}
	return out
}
