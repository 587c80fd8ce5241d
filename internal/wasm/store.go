package wasm

import "context"

// CompiledFunction is what the validator/compiler (internal/compiler) produces for one
// function body: flat bytecode plus the side-tables the interpreter needs to execute it
// without re-scanning. It is declared here, rather than in internal/compiler, so that
// FunctionInstance can hold one without an import cycle (compiler depends on wasm, not
// the reverse).
type CompiledFunction struct {
	Type           *FunctionType
	LocalTypes     []ValueType // beyond the parameters
	Code           []CompiledInstr
	MaxStackHeight int
}

// CompiledOp identifies a compiled instruction. Most are a direct lowering of one
// wasm.Instruction; control-flow ones carry pre-resolved targets instead of the structured
// nesting the source had, per the compiler's flattening pass.
type CompiledOp int

const (
	COpUnreachable CompiledOp = iota
	COpNop
	COpBr          // Target, PopCount, Arity: branch unconditionally
	COpBrIf        // Target, PopCount, Arity: pop i32; branch if nonzero
	COpIfNot       // Target: pop i32; branch to else-or-end if zero (the compiled form of `if`)
	COpBrTable     // Table []BrTarget, Default BrTarget
	COpReturn
	COpCall        // Index: module function index (imports first), mapped to a FuncAddr at run time
	COpCallIndirect
	COpDrop
	COpSelect
	COpLocalGet
	COpLocalSet
	COpLocalTee
	COpGlobalGet
	COpGlobalSet
	COpTableGet
	COpTableSet
	COpTableSize
	COpTableGrow
	COpTableFill
	COpTableCopy
	COpTableInit
	COpElemDrop
	COpLoad
	COpStore
	COpMemorySize
	COpMemoryGrow
	COpMemoryCopy
	COpMemoryFill
	COpMemoryInit
	COpDataDrop
	COpI32Const
	COpI64Const
	COpF32Const
	COpF64Const
	COpRefNull
	COpRefIsNull
	COpRefFunc
	COpNumeric // Numeric: a fixed-arity arithmetic/comparison/conversion opcode
)

// BrTarget is one entry of a compiled br_table (or the single target of br/br_if): the PC to
// jump to, how many result values to preserve, and how many stack values beneath them to drop.
type BrTarget struct {
	PC       int
	Arity    int
	PopCount int
}

// CompiledInstr is one element of a CompiledFunction's flattened bytecode.
type CompiledInstr struct {
	Op      CompiledOp
	Index   uint32 // local/global/func/table/mem/elem/data index, as appropriate for Op
	Index2  uint32 // second index, for *.copy/*.init pairs
	I32     int32
	I64     int64
	F32     float32
	F64     float64
	MemArg  MemArg
	Numeric Opcode // the original opcode, for COpNumeric/COpLoad/COpStore/COpRefNull/COpSelect-typed dispatch
	Types   []ValueType // select t's explicit result types

	Target  BrTarget
	Table   []BrTarget
	Default BrTarget
}

// HostFunction is a function instance implemented by the embedder (the spectest module's
// print* functions, for example) rather than compiled from Wasm bytecode.
type HostFunction struct {
	Type *FunctionType
	Func func(ctx context.Context, args []uint64) ([]uint64, error)
}

// FunctionInstance is a sum type over {WasmFunc, HostFunc}; Compiled is nil for a host
// function and Host is nil for a Wasm-defined one.
type FunctionInstance struct {
	Compiled *CompiledFunction
	Host     *HostFunction
	Module   *ModuleInstance // owning instance; nil for functions not yet attached
}

func (f *FunctionInstance) Type() *FunctionType {
	if f.Compiled != nil {
		return f.Compiled.Type
	}
	return f.Host.Type
}

func (f *FunctionInstance) IsHost() bool { return f.Host != nil }

// TableInstance is a growable vector of references, bounded by Type.Limits.
type TableInstance struct {
	Type     TableType
	Elements []Reference
}

// MemoryInstance is a growable byte vector whose length is always a multiple of PageSize.
type MemoryInstance struct {
	Type  MemoryType
	Bytes []byte
}

func (m *MemoryInstance) PageCount() uint32 { return uint32(len(m.Bytes) / PageSize) }

// GlobalInstance holds one mutable-or-not global's current value.
type GlobalInstance struct {
	Type  GlobalType
	Value Value
}

// ElementInstance backs table.init; Dropped zeroes Refs while leaving the slot addressable.
type ElementInstance struct {
	Type    RefType
	Refs    []Reference
	Dropped bool
}

// DataInstance backs memory.init; Dropped zeroes Bytes while leaving the slot addressable.
type DataInstance struct {
	Bytes   []byte
	Dropped bool
}

// Store owns every resource allocated by every instantiated module for the lifetime of a
// single Runtime. Addresses returned here are stable for the Store's lifetime; nothing is
// ever removed, only (for elem/data) dropped in place.
type Store struct {
	Functions []*FunctionInstance
	Tables    []*TableInstance
	Memories  []*MemoryInstance
	Globals   []*GlobalInstance
	Elements  []*ElementInstance
	Datas     []*DataInstance
}

func NewStore() *Store { return &Store{} }

func (s *Store) AddFunction(f *FunctionInstance) FuncAddr {
	s.Functions = append(s.Functions, f)
	return FuncAddr(len(s.Functions) - 1)
}

func (s *Store) AddTable(t *TableInstance) TableAddr {
	s.Tables = append(s.Tables, t)
	return TableAddr(len(s.Tables) - 1)
}

func (s *Store) AddMemory(m *MemoryInstance) MemAddr {
	s.Memories = append(s.Memories, m)
	return MemAddr(len(s.Memories) - 1)
}

func (s *Store) AddGlobal(g *GlobalInstance) GlobalAddr {
	s.Globals = append(s.Globals, g)
	return GlobalAddr(len(s.Globals) - 1)
}

func (s *Store) AddElement(e *ElementInstance) ElemAddr {
	s.Elements = append(s.Elements, e)
	return ElemAddr(len(s.Elements) - 1)
}

func (s *Store) AddData(d *DataInstance) DataAddr {
	s.Datas = append(s.Datas, d)
	return DataAddr(len(s.Datas) - 1)
}

// ExternVal is a tagged store address identifying one export or import binding. Exactly one
// of the four fields is meaningful, selected by Kind (an ExternType).
type ExternVal struct {
	Kind   ImportKind
	Func   FuncAddr
	Table  TableAddr
	Memory MemAddr
	Global GlobalAddr
}

// ModuleInstance is the per-instantiation, immutable-after-construction view of a Module:
// dense address arrays per index space (imports occupy the low indices, exactly as the
// module's own numbering requires) plus the published export table.
type ModuleInstance struct {
	Store *Store

	Types   []*FunctionType
	Funcs   []FuncAddr
	Tables  []TableAddr
	Mems    []MemAddr
	Globals []GlobalAddr
	Elems   []ElemAddr
	Datas   []DataAddr

	Exports map[string]ExternVal

	Name string
	ID   ModuleID
}

func (mi *ModuleInstance) ExportedFunction(name string) (*FunctionInstance, bool) {
	ev, ok := mi.Exports[name]
	if !ok || ev.Kind != ExternTypeFunc {
		return nil, false
	}
	return mi.Store.Functions[ev.Func], true
}

func (mi *ModuleInstance) ExportedGlobal(name string) (*GlobalInstance, bool) {
	ev, ok := mi.Exports[name]
	if !ok || ev.Kind != ExternTypeGlobal {
		return nil, false
	}
	return mi.Store.Globals[ev.Global], true
}

func (mi *ModuleInstance) ExportedMemory(name string) (*MemoryInstance, bool) {
	ev, ok := mi.Exports[name]
	if !ok || ev.Kind != ExternTypeMemory {
		return nil, false
	}
	return mi.Store.Memories[ev.Memory], true
}

func (mi *ModuleInstance) ExportedTable(name string) (*TableInstance, bool) {
	ev, ok := mi.Exports[name]
	if !ok || ev.Kind != ExternTypeTable {
		return nil, false
	}
	return mi.Store.Tables[ev.Table], true
}
