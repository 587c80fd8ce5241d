package wasm

// Instruction is one element of a function body or constant expression, prior to validation
// and compilation. The decoder and the text parser both produce []Instruction; the validator
// and compiler (internal/compiler) consume it and never see raw bytes or tokens again.
type Instruction interface {
	Opcode() Opcode
}

// BlockType describes the input/output arity of a structured block. Empty is the common
// abbreviated form (no params, no results); ValType covers the single-result shorthand;
// HasType/Type cover the general multi-value form added by the multi-value proposal.
type BlockType struct {
	Empty   bool
	ValType ValueType
	HasType bool
	Type    TypeIndex
}

// OpHeader carries the opcode common to every Instruction. It is exported (unlike a private
// embedded base) so that decoder/parser packages outside wasm can populate it in a composite
// literal: wasm.InsLoad{OpHeader: wasm.OpHeader{Op: wasm.OpI32Load}, MemArg: ma}.
type OpHeader struct{ Op Opcode }

func (h OpHeader) Opcode() Opcode { return h.Op }

func Op(op Opcode) OpHeader { return OpHeader{Op: op} }

// Control flow.

type InsUnreachable struct{ OpHeader }
type InsNop struct{ OpHeader }

type InsBlock struct {
	OpHeader
	BlockType BlockType
}

type InsLoop struct {
	OpHeader
	BlockType BlockType
}

type InsIf struct {
	OpHeader
	BlockType BlockType
}

type InsElse struct{ OpHeader }
type InsEnd struct{ OpHeader }

type InsBr struct {
	OpHeader
	Label LabelIndex
}

type InsBrIf struct {
	OpHeader
	Label LabelIndex
}

type InsBrTable struct {
	OpHeader
	Labels  []LabelIndex
	Default LabelIndex
}

type InsReturn struct{ OpHeader }

type InsCall struct {
	OpHeader
	Func FuncIndex
}

type InsCallIndirect struct {
	OpHeader
	Type  TypeIndex
	Table TableIndex
}

// Parametric.

type InsDrop struct{ OpHeader }
type InsSelect struct{ OpHeader }

type InsSelectTyped struct {
	OpHeader
	Types []ValueType
}

// Variable access.

type InsLocalGet struct {
	OpHeader
	Local LocalIndex
}
type InsLocalSet struct {
	OpHeader
	Local LocalIndex
}
type InsLocalTee struct {
	OpHeader
	Local LocalIndex
}
type InsGlobalGet struct {
	OpHeader
	Global GlobalIndex
}
type InsGlobalSet struct {
	OpHeader
	Global GlobalIndex
}

// Table.

type InsTableGet struct {
	OpHeader
	Table TableIndex
}
type InsTableSet struct {
	OpHeader
	Table TableIndex
}
type InsTableSize struct {
	OpHeader
	Table TableIndex
}
type InsTableGrow struct {
	OpHeader
	Table TableIndex
}
type InsTableFill struct {
	OpHeader
	Table TableIndex
}
type InsTableCopy struct {
	OpHeader
	Dst TableIndex
	Src TableIndex
}
type InsTableInit struct {
	OpHeader
	Elem  ElemIndex
	Table TableIndex
}
type InsElemDrop struct {
	OpHeader
	Elem ElemIndex
}

// Memory.

type MemArg struct {
	Align  uint32 // log2 of the natural alignment hint
	Offset uint32
}

type InsLoad struct {
	OpHeader
	MemArg MemArg
}
type InsStore struct {
	OpHeader
	MemArg MemArg
}
type InsMemorySize struct{ OpHeader }
type InsMemoryGrow struct{ OpHeader }
type InsMemoryCopy struct{ OpHeader }
type InsMemoryFill struct{ OpHeader }
type InsMemoryInit struct {
	OpHeader
	Data DataIndex
}
type InsDataDrop struct {
	OpHeader
	Data DataIndex
}

// Constants.

type InsI32Const struct {
	OpHeader
	Value int32
}
type InsI64Const struct {
	OpHeader
	Value int64
}
type InsF32Const struct {
	OpHeader
	Value float32
}
type InsF64Const struct {
	OpHeader
	Value float64
}

// References.

type InsRefNull struct {
	OpHeader
	Type RefType
}
type InsRefIsNull struct{ OpHeader }
type InsRefFunc struct {
	OpHeader
	Func FuncIndex
}

// InsNumeric covers every comparison/arithmetic/conversion opcode that takes no immediate
// operand; its type rule is looked up from a table keyed by Opcode in internal/compiler.
type InsNumeric struct{ OpHeader }

// InsVectorStub stands in for any 0xFD-prefixed SIMD instruction. The sub-opcode is retained
// only for diagnostics; SIMD execution is out of scope and the validator rejects these.
type InsVectorStub struct {
	OpHeader
	SubOpcode uint32
}

// NewNumeric builds the generic no-immediate instruction for op, used by both the decoder
// and the text parser for the 136 arithmetic/comparison/conversion opcodes (0x45–0xC4 plus
// the eight saturating truncations).
func NewNumeric(op Opcode) Instruction { return InsNumeric{Op(op)} }

// Expr is a sequence of instructions ending implicitly at the matching `end`; used for
// function bodies and for the restricted constant expressions in globals/elem/data offsets.
type Expr struct {
	Instrs []Instruction
}
