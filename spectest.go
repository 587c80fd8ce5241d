package wazir

import (
	"context"

	"github.com/google/uuid"

	"github.com/jblebrun/wazir/internal/wasm"
)

// registerSpectestModule installs the "spectest" host module every .wast script assumes is
// importable: a handful of globals and a table/memory of fixed shape, plus print* functions
// whose bodies are no-ops (their only job is to exist with the right signature).
func (r *Runtime) registerSpectestModule() {
	mi := &wasm.ModuleInstance{Store: r.store, Name: "spectest", Exports: map[string]wasm.ExternVal{}}

	addFunc := func(name string, params ...wasm.ValueType) {
		ft := &wasm.FunctionType{Params: params}
		host := &wasm.HostFunction{
			Type: ft,
			Func: func(ctx context.Context, args []uint64) ([]uint64, error) { return nil, nil },
		}
		addr := r.store.AddFunction(&wasm.FunctionInstance{Host: host, Module: mi})
		mi.Funcs = append(mi.Funcs, addr)
		mi.Exports[name] = wasm.ExternVal{Kind: wasm.ExternTypeFunc, Func: addr}
	}
	addFunc("print")
	addFunc("print_i32", wasm.ValueTypeI32)
	addFunc("print_i64", wasm.ValueTypeI64)
	addFunc("print_f32", wasm.ValueTypeF32)
	addFunc("print_f64", wasm.ValueTypeF64)
	addFunc("print_i32_f32", wasm.ValueTypeI32, wasm.ValueTypeF32)
	addFunc("print_f64_f64", wasm.ValueTypeF64, wasm.ValueTypeF64)

	addGlobal := func(name string, t wasm.ValueType, v wasm.Value) {
		addr := r.store.AddGlobal(&wasm.GlobalInstance{Type: wasm.GlobalType{ValType: t}, Value: v})
		mi.Globals = append(mi.Globals, addr)
		mi.Exports[name] = wasm.ExternVal{Kind: wasm.ExternTypeGlobal, Global: addr}
	}
	addGlobal("global_i32", wasm.ValueTypeI32, wasm.I32Value(666))
	addGlobal("global_i64", wasm.ValueTypeI64, wasm.I64Value(666))
	addGlobal("global_f32", wasm.ValueTypeF32, wasm.F32Value(666))
	addGlobal("global_f64", wasm.ValueTypeF64, wasm.F64Value(666))

	tableMax := uint32(20)
	elems := make([]wasm.Reference, 10)
	for i := range elems {
		elems[i] = wasm.NullRef
	}
	tableAddr := r.store.AddTable(&wasm.TableInstance{
		Type:     wasm.TableType{Limits: wasm.Limits{Min: 10, Max: &tableMax}, RefType: wasm.ValueTypeFuncref},
		Elements: elems,
	})
	mi.Tables = append(mi.Tables, tableAddr)
	mi.Exports["table"] = wasm.ExternVal{Kind: wasm.ExternTypeTable, Table: tableAddr}

	memMax := uint32(2)
	memAddr := r.store.AddMemory(&wasm.MemoryInstance{
		Type:  wasm.MemoryType{Limits: wasm.Limits{Min: 1, Max: &memMax}},
		Bytes: make([]byte, wasm.PageSize),
	})
	mi.Mems = append(mi.Mems, memAddr)
	mi.Exports["memory"] = wasm.ExternVal{Kind: wasm.ExternTypeMemory, Memory: memAddr}

	inst := &ModuleInstance{rt: r, inner: mi, handle: uuid.New()}
	r.byName["spectest"] = inst
	r.byHandle[inst.handle] = inst
}
