// Package api includes types and constants shared by the public Runtime surface and
// the internal module pipeline (decoder, text parser, validator/compiler, interpreter).
package api

import "fmt"

// ValueType describes the type of a WebAssembly value: a numeric type or a reference type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit IEEE-754 float.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit IEEE-754 float.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncref is a nullable reference to a function.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is a nullable opaque host reference.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the WebAssembly text format name of t, or "unknown" if t is not valid.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsReferenceType returns true if t is funcref or externref.
func IsReferenceType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// ExternType classifies an import or export.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the text format field name for et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// Module is a post-instantiation view of a WebAssembly module: its exports and identity.
//
// Note: this is an interface for decoupling; all implementations live in this module.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns the single memory defined by this module, or nil.
	Memory() Memory

	// ExportedFunction looks up an exported function by name, or nil if not exported.
	ExportedFunction(name string) Function

	// ExportedMemory looks up an exported memory by name, or nil if not exported.
	ExportedMemory(name string) Memory

	// ExportedGlobal looks up an exported global by name, or nil if not exported or not exported as a global.
	ExportedGlobal(name string) Global

	// Close releases resources held by this module. Idempotent.
	Close() error
}

// Function is an exported, callable function.
type Function interface {
	// Call invokes the function with the given arguments, returning its results or an error.
	//
	// Errors include api errors (ArgumentCountError), runtime errors (Trap), and host-defined errors.
	Call(params ...uint64) ([]uint64, error)

	// Definition describes the function's static signature.
	Definition() FunctionDefinition
}

// FunctionDefinition describes a function's signature independent of any instantiation.
type FunctionDefinition interface {
	// ParamTypes are the value types of the function's parameters, in order.
	ParamTypes() []ValueType
	// ResultTypes are the value types of the function's results, in order.
	ResultTypes() []ValueType
	// DebugName is a human-readable name used in traces and error messages.
	DebugName() string
}

// Global is an exported mutable or immutable global variable.
type Global interface {
	Type() ValueType
	Get() uint64
}

// MutableGlobal is a Global that can be updated; a type assertion from Global.
type MutableGlobal interface {
	Global
	Set(uint64)
}

// Memory is an exported linear memory.
type Memory interface {
	// Size returns the current length of the memory's backing buffer in bytes.
	Size() uint32
	// Grow increases Size by deltaPages pages (64KiB each), returning the previous page count,
	// or false if the growth would exceed the memory's limits.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
	// Read returns a view of byteCount bytes starting at byteOffset, or false if out of range.
	Read(byteOffset, byteCount uint32) ([]byte, bool)
	// Write copies v into the memory starting at byteOffset, or returns false if out of range.
	Write(byteOffset uint32, v []byte) bool
}
