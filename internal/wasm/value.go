package wasm

import (
	"math"
)

// RefKind distinguishes the three reference forms a table slot or ref-typed Value may hold.
type RefKind byte

const (
	RefNull RefKind = iota
	RefFunc
	RefExtern
)

// Reference is one of: null, a function address, or an opaque extern handle.
//
// See https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/exec/runtime.html#values
type Reference struct {
	Kind     RefKind
	FuncAddr FuncAddr
	Extern   uintptr
}

// NullRef is the null reference, valid for both funcref and externref tables.
var NullRef = Reference{Kind: RefNull}

func FuncRef(addr FuncAddr) Reference { return Reference{Kind: RefFunc, FuncAddr: addr} }
func ExternRef(v uintptr) Reference   { return Reference{Kind: RefExtern, Extern: v} }

func (r Reference) IsNull() bool { return r.Kind == RefNull }

// Value is a tagged union over the four numeric value types and the two reference types,
// used at module-construction boundaries (constant expressions, globals, call arguments
// and results). The interpreter's hot value stack instead stores raw uint64 words, since
// ValueType there is always known statically from the compiled bytecode.
type Value struct {
	Type ValueType
	Num  uint64 // bit pattern for i32 (low 32 bits)/i64/f32 (low 32 bits)/f64
	Ref  Reference
}

func I32Value(v uint32) Value { return Value{Type: ValueTypeI32, Num: uint64(v)} }
func I64Value(v uint64) Value { return Value{Type: ValueTypeI64, Num: v} }
func F32Value(v float32) Value {
	return Value{Type: ValueTypeF32, Num: uint64(math.Float32bits(v))}
}
func F64Value(v float64) Value { return Value{Type: ValueTypeF64, Num: math.Float64bits(v)} }
func RefValue(t ValueType, r Reference) Value {
	return Value{Type: t, Ref: r}
}

func (v Value) I32() uint32    { return uint32(v.Num) }
func (v Value) I64() uint64    { return v.Num }
func (v Value) F32() float32   { return math.Float32frombits(uint32(v.Num)) }
func (v Value) F64() float64   { return math.Float64frombits(v.Num) }
func (v Value) IsRef() bool    { return v.Type == ValueTypeFuncref || v.Type == ValueTypeExternref }

// ToStackWord encodes v in the representation used by the interpreter's value stack: numeric
// bit patterns pass through, references are encoded as a FuncAddr+1 (0 means null) for funcref,
// or the raw uintptr for externref.
func (v Value) ToStackWord() uint64 {
	if !v.IsRef() {
		return v.Num
	}
	if v.Type == ValueTypeFuncref {
		if v.Ref.IsNull() {
			return 0
		}
		return uint64(v.Ref.FuncAddr) + 1
	}
	return uint64(v.Ref.Extern)
}
