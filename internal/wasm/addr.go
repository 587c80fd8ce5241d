package wasm

// Addresses are type-safe wrappers over a dense vector index into the Store.
// Each resource kind gets its own named type so that, for example, a FuncAddr
// can never be passed where a TableAddr is expected.

type FuncAddr uint32
type TableAddr uint32
type MemAddr uint32
type GlobalAddr uint32
type ElemAddr uint32
type DataAddr uint32

// ModuleInstanceAddr identifies a ModuleInstance registered with a Store.
type ModuleInstanceAddr uint32
