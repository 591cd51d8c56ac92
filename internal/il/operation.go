package il

// Attributes is the attribute set spec.md §3 requires every Operation to
// carry, at minimum: opensBlock, closesBlock, isBlockStart, isBlockEnd,
// propagatesSurroundingContext, isMutable, isJumpTarget.
type Attributes uint16

const (
	AttrNone Attributes = 0
	// AttrOpensBlock marks an opcode that begins a new block (Begin*).
	AttrOpensBlock Attributes = 1 << iota
	// AttrClosesBlock marks an opcode that ends a block (End*).
	AttrClosesBlock
	// AttrIsBlockStart marks the first instruction of a (possibly
	// multi-part, e.g. If/Else) block group.
	AttrIsBlockStart
	// AttrIsBlockEnd marks the last instruction of a block group.
	AttrIsBlockEnd
	// AttrPropagatesSurroundingContext means the Context available
	// inside the block is the union of the surrounding Context and
	// ContextToOpen, rather than a replacement of it (e.g. a loop
	// nested in a subroutine keeps Subroutine available inside).
	AttrPropagatesSurroundingContext
	// AttrIsMutable marks operations whose immediate parameters an
	// OperationMutator may rewrite without touching arity or context.
	AttrIsMutable
	// AttrIsJumpTarget marks instructions Break/Continue may target.
	AttrIsJumpTarget
)

func (a Attributes) Has(b Attributes) bool { return a&b == b }

// opcodeInfo is the static metadata for one Opcode: its fixed output
// arity, its block/context behavior and its mutability.
type opcodeInfo struct {
	attrs           Attributes
	numOutputs      int
	numInnerOutputs int
	requiredContext Context
	contextToOpen   Context
	variadicInputs  bool // arbitrary/operation-dependent input count (calls, array/object construction, combine)
}

var opcodeTable = [numOpcodes]opcodeInfo{
	LoadInteger:         {attrs: AttrIsMutable, numOutputs: 1},
	LoadFloat:           {attrs: AttrIsMutable, numOutputs: 1},
	LoadBigInt:          {attrs: AttrIsMutable, numOutputs: 1},
	LoadString:          {attrs: AttrIsMutable, numOutputs: 1},
	LoadRegExp:          {attrs: AttrIsMutable, numOutputs: 1},
	LoadBoolean:         {attrs: AttrIsMutable, numOutputs: 1},
	LoadNull:            {numOutputs: 1},
	LoadUndefined:       {numOutputs: 1},
	LoadBuiltin:         {attrs: AttrIsMutable, numOutputs: 1},

	BinaryOperation: {attrs: AttrIsMutable, numOutputs: 1, variadicInputs: false},
	UnaryOperation:  {attrs: AttrIsMutable, numOutputs: 1},
	Compare:         {attrs: AttrIsMutable, numOutputs: 1},

	CreateObject:          {attrs: AttrIsMutable, numOutputs: 1, variadicInputs: true},
	LoadProperty:          {attrs: AttrIsMutable, numOutputs: 1},
	StoreProperty:         {attrs: AttrIsMutable, numOutputs: 0},
	LoadComputedProperty:  {numOutputs: 1},
	StoreComputedProperty: {numOutputs: 0},

	CreateArray: {numOutputs: 1, variadicInputs: true},

	BeginFunctionDefinition: {
		attrs:           AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget,
		numOutputs:      1, // the function value itself, usable for recursive calls
		numInnerOutputs: 0, // overridden per-instance by NumParameters (see Operation.NumInnerOutputs)
		contextToOpen:   ContextSubroutine,
	},
	EndFunctionDefinition: {attrs: AttrClosesBlock | AttrIsBlockEnd},

	CallFunction:           {numOutputs: 1, variadicInputs: true},
	CallFunctionWithSpread: {numOutputs: 1, variadicInputs: true},
	CallMethod:             {attrs: AttrIsMutable, numOutputs: 1, variadicInputs: true},
	CallMethodWithSpread:   {attrs: AttrIsMutable, numOutputs: 1, variadicInputs: true},

	BeginIf:   {attrs: AttrOpensBlock | AttrIsBlockStart | AttrPropagatesSurroundingContext},
	BeginElse: {attrs: AttrOpensBlock | AttrClosesBlock | AttrPropagatesSurroundingContext},
	EndIf:     {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginWhile: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget | AttrPropagatesSurroundingContext, contextToOpen: ContextLoop},
	EndWhile:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginDoWhile: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget | AttrPropagatesSurroundingContext, contextToOpen: ContextLoop},
	EndDoWhile:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginFor: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget | AttrPropagatesSurroundingContext, numInnerOutputs: 1, contextToOpen: ContextLoop},
	EndFor:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginForIn: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget | AttrPropagatesSurroundingContext, numInnerOutputs: 1, contextToOpen: ContextLoop},
	EndForIn:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginForOf: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrIsJumpTarget | AttrPropagatesSurroundingContext, numInnerOutputs: 1, contextToOpen: ContextLoop},
	EndForOf:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginTry:   {attrs: AttrOpensBlock | AttrIsBlockStart | AttrPropagatesSurroundingContext},
	BeginCatch: {attrs: AttrOpensBlock | AttrClosesBlock | AttrPropagatesSurroundingContext, numInnerOutputs: 1, contextToOpen: ContextCatch},
	EndTry:     {attrs: AttrClosesBlock | AttrIsBlockEnd},

	BeginWith: {attrs: AttrOpensBlock | AttrIsBlockStart | AttrPropagatesSurroundingContext, contextToOpen: ContextWith},
	EndWith:   {attrs: AttrClosesBlock | AttrIsBlockEnd},

	Throw:         {},
	Break:         {requiredContext: ContextLoop},
	Continue:      {requiredContext: ContextLoop},
	Return:        {requiredContext: ContextSubroutine},
	Yield:         {numOutputs: 1, requiredContext: ContextGenerator},
	YieldEach:     {requiredContext: ContextGenerator},
	Await:         {numOutputs: 1, requiredContext: ContextAsync},
	TypeOf:        {numOutputs: 1},
	Reassign:      {},
	Dup:           {numOutputs: 1},
	LoadFromScope: {attrs: AttrIsMutable, numOutputs: 1},
}

// Operation is the typed node describing one IL action: an Opcode plus
// its operation-immediate parameters (spec.md §3). A single struct
// carries every opcode's immediates, following the tagged-instruction
// convention of a fixed-shape record interpreted by Op, rather than one
// Go type per opcode — the same representation a bytecode-VM instruction
// record uses, just with named fields instead of byte-packed operands.
type Operation struct {
	Op Opcode

	IntValue     int64
	FloatValue   float64
	StringValue  string
	StringValue2 string
	BoolValue    bool

	Comparator   Comparator
	BinaryOp     BinaryOp
	UnaryOp      UnaryOp
	FunctionKind FunctionKind

	// NumParameters is BeginFunctionDefinition's parameter count; those
	// parameters are the block's inner outputs.
	NumParameters int

	// PropertyNames pairs 1:1 with CreateObject's inputs.
	PropertyNames []string

	// Spreads marks, for CreateArray/CallFunctionWithSpread/
	// CallMethodWithSpread, which inputs (in order) are spread rather
	// than single elements/arguments.
	Spreads []bool
}

func (o Operation) info() opcodeInfo { return opcodeTable[o.Op] }

// Attributes returns the operation's attribute set.
func (o Operation) Attributes() Attributes { return o.info().attrs }

// NumOutputs returns the number of (outer) output variables this
// operation produces.
func (o Operation) NumOutputs() int { return o.info().numOutputs }

// NumInnerOutputs returns the number of variables visible only inside
// the block this operation opens (loop variables, catch's exception
// variable, a function's parameters).
func (o Operation) NumInnerOutputs() int {
	if o.Op == BeginFunctionDefinition {
		return o.NumParameters
	}
	return o.info().numInnerOutputs
}

// RequiredContext returns the Context that must be a subset of the
// Context active at this instruction's position.
func (o Operation) RequiredContext() Context { return o.info().requiredContext }

// ContextToOpen returns the Context a block-opening operation makes
// available inside its block. Zero for non-block-openers.
func (o Operation) ContextToOpen() Context {
	base := o.info().contextToOpen
	if o.Op == BeginFunctionDefinition {
		if o.FunctionKind.IsGenerator() {
			base = base.Union(ContextGenerator)
		}
		if o.FunctionKind.IsAsync() {
			base = base.Union(ContextAsync)
		}
	}
	return base
}

// IsVariadicInputs reports whether this opcode accepts an
// operation-dependent number of input variables (calls, array/object
// construction) rather than a fixed arity baked into opcodeTable.
func (o Operation) IsVariadicInputs() bool { return o.info().variadicInputs }
