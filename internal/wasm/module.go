package wasm

// Module is the pipeline-neutral in-memory representation of a WebAssembly module. Both the
// binary decoder and the text parser produce a *Module; the validator/compiler
// consumes it to produce a *CompiledModule; the instantiator consumes both to populate a Store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#modules%E2%91%A0
type Module struct {
	TypeSection    []*FunctionType
	ImportSection  []*Import
	FunctionSection []TypeIndex // one entry per locally-defined function, indexing TypeSection
	CodeSection    []*Code      // index-correlated with FunctionSection
	TableSection   []*Table
	MemorySection  []*Memory
	GlobalSection  []*Global
	ExportSection  []*Export
	StartSection   *FuncIndex
	ElementSection []*ElementSegment
	DataSection    []*DataSegment
	DataCountSection *uint32

	// NameSection holds debug names decoded from the custom "name" section, if present.
	NameSection *NameSection

	// ID is set by the binary decoder from section entry counts and local types; the text
	// parser leaves it zero. It is copied to the ModuleInstance; no cache is keyed on it.
	ID ModuleID
}

// ModuleID is an opaque 32-byte identifier derived from a decoded module.
type ModuleID [32]byte

// ImportKind mirrors api.ExternType but is named separately here because an Import's Kind
// selects one of four mutually exclusive descriptor fields below.
type ImportKind = byte

// Import is a single imported function, table, memory, or global.
type Import struct {
	Module, Name string
	Kind         ImportKind

	DescFunc   TypeIndex
	DescTable  TableType
	DescMem    MemoryType
	DescGlobal GlobalType
}

// Table is a locally-defined table (as opposed to an imported one).
type Table struct {
	Type TableType
}

// Memory is a locally-defined memory.
type Memory struct {
	Type MemoryType
}

// Global is a locally-defined global: its type and its constant initializer expression.
type Global struct {
	Type GlobalType
	Init Expr
}

// Code is the body of one locally-defined function: its expanded local variable types
// (beyond the parameters, which come from the function's FunctionType) and its expression.
type Code struct {
	LocalTypes []ValueType
	Body       Expr
}

// Export makes a func/table/memory/global available to the instantiator's caller under Name.
type Export struct {
	Name  string
	Kind  ImportKind
	Index uint32
}

// ElemMode classifies how an element segment's contents are used.
type ElemMode byte

const (
	ElemModeActive ElemMode = iota
	ElemModePassive
	ElemModeDeclarative
)

// ElementSegment initializes a range of a table (active), is available for table.init
// (passive), or exists only to pre-declare function references (declarative, never copied).
type ElementSegment struct {
	Mode    ElemMode
	Table   TableIndex // only meaningful when Mode == ElemModeActive
	Offset  Expr       // only meaningful when Mode == ElemModeActive
	Type    RefType
	Init    []Expr // each a constant expression yielding one Reference (ref.func or ref.null)
}

// DataMode classifies how a data segment's bytes are used.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment initializes a range of memory (active) or is available for memory.init (passive).
type DataSegment struct {
	Mode   DataMode
	Memory MemIndex // only meaningful when Mode == DataModeActive
	Offset Expr     // only meaningful when Mode == DataModeActive
	Init   []byte
}

// NameSection holds the optional debug names decoded from custom section "name".
type NameSection struct {
	ModuleName    string
	FunctionNames map[uint32]string
	LocalNames    map[uint32]map[uint32]string
}

// ImportedFunctionCount returns how many entries of ImportSection are functions; these
// occupy FuncIndex 0..n before any locally-defined function.
func (m *Module) ImportedFunctionCount() (n uint32) {
	for _, i := range m.ImportSection {
		if i.Kind == ExternTypeFunc {
			n++
		}
	}
	return
}

// ImportedTableCount, ImportedMemoryCount, ImportedGlobalCount mirror ImportedFunctionCount
// for their respective index spaces.
func (m *Module) ImportedTableCount() (n uint32) {
	for _, i := range m.ImportSection {
		if i.Kind == ExternTypeTable {
			n++
		}
	}
	return
}

func (m *Module) ImportedMemoryCount() (n uint32) {
	for _, i := range m.ImportSection {
		if i.Kind == ExternTypeMemory {
			n++
		}
	}
	return
}

func (m *Module) ImportedGlobalCount() (n uint32) {
	for _, i := range m.ImportSection {
		if i.Kind == ExternTypeGlobal {
			n++
		}
	}
	return
}

// TypeOfFunction returns the FunctionType for the function numbered by the func index space
// (imports first, then locally-defined functions).
func (m *Module) TypeOfFunction(idx uint32) *FunctionType {
	importedFuncs := m.ImportedFunctionCount()
	if idx < importedFuncs {
		var n uint32
		for _, i := range m.ImportSection {
			if i.Kind != ExternTypeFunc {
				continue
			}
			if n == idx {
				return m.TypeSection[i.DescFunc.Num]
			}
			n++
		}
		return nil
	}
	local := idx - importedFuncs
	if int(local) >= len(m.FunctionSection) {
		return nil
	}
	return m.TypeSection[m.FunctionSection[local].Num]
}
