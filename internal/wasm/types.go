package wasm

import (
	"bytes"
	"fmt"

	"github.com/jblebrun/wazir/api"
)

// ValueType re-exports api.ValueType so the module/store packages don't need to import
// api everywhere a value type appears.
type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeFuncref   = api.ValueTypeFuncref
	ValueTypeExternref = api.ValueTypeExternref
)

// FunctionType is a pair of parameter and result value type vectors.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType struct {
	Params  []ValueType
	Results []ValueType

	// cachedKey memoizes String, used as a structural equality key when interning types
	// during text-format typeuse resolution and when type-checking call_indirect.
	cachedKey string
}

// String returns a structural signature such as "i32i64_i32", used both for human-readable
// error messages and as a deduplication key.
func (t *FunctionType) String() string {
	if t.cachedKey != "" {
		return t.cachedKey
	}
	var b bytes.Buffer
	for _, p := range t.Params {
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteByte('_')
	for _, r := range t.Results {
		b.WriteString(api.ValueTypeName(r))
	}
	t.cachedKey = b.String()
	return t.cachedKey
}

// EqualsSignature reports whether t and other have identical parameter and result types.
func (t *FunctionType) EqualsSignature(params, results []ValueType) bool {
	return bytes.Equal(t.Params, params) && bytes.Equal(t.Results, results)
}

// Limits bound the size of a table or memory: Min is required, Max is optional.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#limits%E2%91%A0
type Limits struct {
	Min uint32
	Max *uint32
}

func (l Limits) String() string {
	if l.Max != nil {
		return fmt.Sprintf("{min:%d,max:%d}", l.Min, *l.Max)
	}
	return fmt.Sprintf("{min:%d}", l.Min)
}

// RefType is the element type of a table: funcref or externref.
type RefType = ValueType

// TableType is a Limits paired with the table's reference type.
type TableType struct {
	Limits
	RefType RefType
}

// PageSize is the fixed size of a single unit of memory growth.
const PageSize = 65536

// MemoryType bounds the size of a linear memory, in pages.
type MemoryType struct {
	Limits
}

// GlobalType is a value type together with its mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}
