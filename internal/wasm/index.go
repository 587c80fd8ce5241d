package wasm

import "fmt"

// IndexSpace is a phantom marker identifying which numbering space an Index belongs to:
// function, type, table, memory, global, data, elem, local, or label. Each is numbered
// independently per the core spec.
type IndexSpace interface {
	indexSpaceName() string
}

type (
	funcSpace   struct{}
	typeSpace   struct{}
	tableSpace  struct{}
	memSpace    struct{}
	globalSpace struct{}
	dataSpace   struct{}
	elemSpace   struct{}
	localSpace  struct{}
	labelSpace  struct{}
)

func (funcSpace) indexSpaceName() string   { return "func" }
func (typeSpace) indexSpaceName() string   { return "type" }
func (tableSpace) indexSpaceName() string  { return "table" }
func (memSpace) indexSpaceName() string    { return "memory" }
func (globalSpace) indexSpaceName() string { return "global" }
func (dataSpace) indexSpaceName() string   { return "data" }
func (elemSpace) indexSpaceName() string   { return "elem" }
func (localSpace) indexSpaceName() string  { return "local" }
func (labelSpace) indexSpaceName() string  { return "label" }

// FuncSpace, TypeSpace, etc. are the zero-value markers used to parameterize Index.
var (
	FuncSpace   funcSpace
	TypeSpace   typeSpace
	TableSpace  tableSpace
	MemSpace    memSpace
	GlobalSpace globalSpace
	DataSpace   dataSpace
	ElemSpace   elemSpace
	LocalSpace  localSpace
	LabelSpace  labelSpace
)

// Index is a semantic integer tagged by its index space S. It may carry a symbolic name
// instead of, or in addition to, a numeral; Resolved reports whether Num is authoritative.
// The binary decoder and the text parser, which looks names up while parsing, both produce
// resolved indices.
//
// The space parameter prevents, for example, a Index[TableSpace] from being used where
// an Index[FuncSpace] is expected, without requiring a class hierarchy.
type Index[S IndexSpace] struct {
	Num      uint32
	Name     string // symbolic name ("$foo"), set only prior to resolution
	resolved bool
}

// ResolvedIndex constructs an already-numeric index, as produced directly by the binary decoder.
func ResolvedIndex[S IndexSpace](n uint32) Index[S] {
	return Index[S]{Num: n, resolved: true}
}

// SymbolicIndex constructs an index carrying only a name, to be completed by Resolve. The text
// parser does not produce these; it resolves names as it parses.
func SymbolicIndex[S IndexSpace](name string) Index[S] {
	return Index[S]{Name: name}
}

// NumericIndex constructs an unresolved-but-numeric index (a bare integer written in the text format).
func NumericIndex[S IndexSpace](n uint32) Index[S] {
	return Index[S]{Num: n}
}

// Resolved reports whether Num is authoritative (no symbolic name needs lookup).
func (i Index[S]) Resolved() bool {
	return i.resolved || i.Name == ""
}

// Resolve returns a copy of i with Num set to n and marked resolved.
func (i Index[S]) Resolve(n uint32) Index[S] {
	i.Num = n
	i.resolved = true
	i.Name = ""
	return i
}

func (i Index[S]) String() string {
	if i.Name != "" {
		return i.Name
	}
	return fmt.Sprintf("%d", i.Num)
}

type (
	FuncIndex   = Index[funcSpace]
	TypeIndex   = Index[typeSpace]
	TableIndex  = Index[tableSpace]
	MemIndex    = Index[memSpace]
	GlobalIndex = Index[globalSpace]
	DataIndex   = Index[dataSpace]
	ElemIndex   = Index[elemSpace]
	LocalIndex  = Index[localSpace]
	LabelIndex  = Index[labelSpace]
)

// NewFuncIndex and friends construct an already-resolved index for their space. These exist
// because the marker types (funcSpace, typeSpace, ...) are unexported: generic instantiation
// like Index[funcSpace] can only happen inside this package, so every other package goes
// through one of these constructors instead of calling ResolvedIndex directly.
func NewFuncIndex(n uint32) FuncIndex     { return ResolvedIndex[funcSpace](n) }
func NewTypeIndex(n uint32) TypeIndex     { return ResolvedIndex[typeSpace](n) }
func NewTableIndex(n uint32) TableIndex   { return ResolvedIndex[tableSpace](n) }
func NewMemIndex(n uint32) MemIndex       { return ResolvedIndex[memSpace](n) }
func NewGlobalIndex(n uint32) GlobalIndex { return ResolvedIndex[globalSpace](n) }
func NewDataIndex(n uint32) DataIndex     { return ResolvedIndex[dataSpace](n) }
func NewElemIndex(n uint32) ElemIndex     { return ResolvedIndex[elemSpace](n) }
func NewLocalIndex(n uint32) LocalIndex   { return ResolvedIndex[localSpace](n) }
func NewLabelIndex(n uint32) LabelIndex   { return ResolvedIndex[labelSpace](n) }

// SymbolicFuncIndex and friends construct a not-yet-resolved index carrying a textual name.
// The text parser does not call them; it resolves names as it parses.
func SymbolicFuncIndex(name string) FuncIndex     { return SymbolicIndex[funcSpace](name) }
func SymbolicTypeIndex(name string) TypeIndex     { return SymbolicIndex[typeSpace](name) }
func SymbolicTableIndex(name string) TableIndex   { return SymbolicIndex[tableSpace](name) }
func SymbolicMemIndex(name string) MemIndex       { return SymbolicIndex[memSpace](name) }
func SymbolicGlobalIndex(name string) GlobalIndex { return SymbolicIndex[globalSpace](name) }
func SymbolicDataIndex(name string) DataIndex     { return SymbolicIndex[dataSpace](name) }
func SymbolicElemIndex(name string) ElemIndex     { return SymbolicIndex[elemSpace](name) }
func SymbolicLocalIndex(name string) LocalIndex   { return SymbolicIndex[localSpace](name) }
func SymbolicLabelIndex(name string) LabelIndex   { return SymbolicIndex[labelSpace](name) }

// NumericFuncIndex and friends construct an unresolved-but-numeric index (a bare integer
// written in the text format). The text parser does not call them.
func NumericFuncIndex(n uint32) FuncIndex     { return NumericIndex[funcSpace](n) }
func NumericTypeIndex(n uint32) TypeIndex     { return NumericIndex[typeSpace](n) }
func NumericTableIndex(n uint32) TableIndex   { return NumericIndex[tableSpace](n) }
func NumericMemIndex(n uint32) MemIndex       { return NumericIndex[memSpace](n) }
func NumericGlobalIndex(n uint32) GlobalIndex { return NumericIndex[globalSpace](n) }
func NumericDataIndex(n uint32) DataIndex     { return NumericIndex[dataSpace](n) }
func NumericElemIndex(n uint32) ElemIndex     { return NumericIndex[elemSpace](n) }
func NumericLocalIndex(n uint32) LocalIndex   { return NumericIndex[localSpace](n) }
func NumericLabelIndex(n uint32) LabelIndex   { return NumericIndex[labelSpace](n) }
