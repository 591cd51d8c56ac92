package il

// Opcode identifies the kind of action an Instruction performs. Opcodes
// form a closed enumeration: every Opcode the engine can ever emit is
// listed here, and opcodeTable (in operation.go) carries the arity and
// context metadata for each one.
type Opcode uint8

const (
	// Loads
	LoadInteger Opcode = iota
	LoadFloat
	LoadBigInt
	LoadString
	LoadRegExp
	LoadBoolean
	LoadNull
	LoadUndefined
	LoadBuiltin

	// Arithmetic, comparison, unary
	BinaryOperation
	UnaryOperation
	Compare

	// Objects
	CreateObject
	LoadProperty
	StoreProperty
	LoadComputedProperty
	StoreComputedProperty

	// Arrays
	CreateArray

	// Functions (block pair)
	BeginFunctionDefinition
	EndFunctionDefinition

	// Calls
	CallFunction
	CallFunctionWithSpread
	CallMethod
	CallMethodWithSpread

	// Control flow blocks
	BeginIf
	BeginElse
	EndIf

	BeginWhile
	EndWhile

	BeginDoWhile
	EndDoWhile

	BeginFor
	EndFor

	BeginForIn
	EndForIn

	BeginForOf
	EndForOf

	BeginTry
	BeginCatch
	EndTry

	BeginWith
	EndWith

	// Non-block control
	Throw
	Break
	Continue
	Return
	Yield
	YieldEach
	Await
	TypeOf
	Reassign
	Dup
	LoadFromScope

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	LoadInteger:              "LoadInteger",
	LoadFloat:                "LoadFloat",
	LoadBigInt:                "LoadBigInt",
	LoadString:                "LoadString",
	LoadRegExp:                "LoadRegExp",
	LoadBoolean:                "LoadBoolean",
	LoadNull:                  "LoadNull",
	LoadUndefined:              "LoadUndefined",
	LoadBuiltin:                "LoadBuiltin",
	BinaryOperation:            "BinaryOperation",
	UnaryOperation:             "UnaryOperation",
	Compare:                    "Compare",
	CreateObject:               "CreateObject",
	LoadProperty:               "LoadProperty",
	StoreProperty:              "StoreProperty",
	LoadComputedProperty:       "LoadComputedProperty",
	StoreComputedProperty:      "StoreComputedProperty",
	CreateArray:                "CreateArray",
	BeginFunctionDefinition:    "BeginFunctionDefinition",
	EndFunctionDefinition:      "EndFunctionDefinition",
	CallFunction:               "CallFunction",
	CallFunctionWithSpread:     "CallFunctionWithSpread",
	CallMethod:                 "CallMethod",
	CallMethodWithSpread:       "CallMethodWithSpread",
	BeginIf:                    "BeginIf",
	BeginElse:                  "BeginElse",
	EndIf:                      "EndIf",
	BeginWhile:                 "BeginWhile",
	EndWhile:                   "EndWhile",
	BeginDoWhile:               "BeginDoWhile",
	EndDoWhile:                 "EndDoWhile",
	BeginFor:                   "BeginFor",
	EndFor:                     "EndFor",
	BeginForIn:                 "BeginForIn",
	EndForIn:                   "EndForIn",
	BeginForOf:                 "BeginForOf",
	EndForOf:                   "EndForOf",
	BeginTry:                   "BeginTry",
	BeginCatch:                 "BeginCatch",
	EndTry:                     "EndTry",
	BeginWith:                  "BeginWith",
	EndWith:                    "EndWith",
	Throw:                      "Throw",
	Break:                      "Break",
	Continue:                   "Continue",
	Return:                     "Return",
	Yield:                      "Yield",
	YieldEach:                  "YieldEach",
	Await:                      "Await",
	TypeOf:                     "TypeOf",
	Reassign:                   "Reassign",
	Dup:                        "Dup",
	LoadFromScope:              "LoadFromScope",
}

func (op Opcode) String() string {
	if op >= numOpcodes {
		return "UnknownOpcode"
	}
	return opcodeNames[op]
}

// FunctionKind is a bit-set immediate on BeginFunctionDefinition,
// combining with the base "plain function" case per spec.md §3
// ("plain/arrow/async/generator x with/without async").
type FunctionKind uint8

const (
	FunctionPlain     FunctionKind = 0
	FunctionArrow     FunctionKind = 1 << 0
	FunctionAsync     FunctionKind = 1 << 1
	FunctionGenerator FunctionKind = 1 << 2
)

func (k FunctionKind) IsAsync() bool     { return k&FunctionAsync != 0 }
func (k FunctionKind) IsGenerator() bool { return k&FunctionGenerator != 0 }
func (k FunctionKind) IsArrow() bool     { return k&FunctionArrow != 0 }

// Comparator is the immediate operand of Compare and of loop-header
// opcodes that embed a condition (BeginWhile, BeginDoWhile, BeginFor).
type Comparator uint8

const (
	CompareEqual Comparator = iota
	CompareNotEqual
	CompareLessThan
	CompareLessThanOrEqual
	CompareGreaterThan
	CompareGreaterThanOrEqual
)

// BinaryOp is the immediate operand of BinaryOperation.
type BinaryOp uint8

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMod
	BinaryBitAnd
	BinaryBitOr
	BinaryBitXor
	BinaryLShift
	BinaryRShift
	BinaryLogicalAnd
	BinaryLogicalOr
)

// UnaryOp is the immediate operand of UnaryOperation.
type UnaryOp uint8

const (
	UnaryMinus UnaryOp = iota
	UnaryPlus
	UnaryLogicalNot
	UnaryBitwiseNot
	UnaryPreInc
	UnaryPreDec
	UnaryPostInc
	UnaryPostDec
)
