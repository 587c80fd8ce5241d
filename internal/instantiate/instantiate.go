// Package instantiate links a compiler.CompiledModule against a wasm.Store: it resolves
// imports, allocates tables/memories/globals, copies active element/data segments, publishes
// exports, and invokes the start function.
package instantiate

import (
	"context"

	"github.com/jblebrun/wazir/internal/compiler"
	"github.com/jblebrun/wazir/internal/interpreter"
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// Imports resolves one "module" name to its published ExternVals, mirroring how a Runtime's
// module registry is consulted during instantiation.
type Imports interface {
	Lookup(module, name string) (wasm.ExternVal, bool)
}

// Instantiate builds a *wasm.ModuleInstance for cm in store, resolving every import against
// imports, running every active element/data segment, and invoking the start function (if
// any) before returning. maxCallDepth bounds the start function's own call chain (0 selects
// the interpreter's default).
func Instantiate(ctx context.Context, store *wasm.Store, cm *compiler.CompiledModule, name string, imports Imports, maxCallDepth int) (*wasm.ModuleInstance, error) {
	m := cm.Module
	mi := &wasm.ModuleInstance{Store: store, Name: name, ID: m.ID, Exports: map[string]wasm.ExternVal{}}

	if err := resolveImports(store, m, mi, imports); err != nil {
		return nil, err
	}

	mi.Types = m.TypeSection
	for _, cf := range cm.Functions {
		addr := store.AddFunction(&wasm.FunctionInstance{Compiled: cf, Module: mi})
		mi.Funcs = append(mi.Funcs, addr)
	}

	for _, t := range m.TableSection {
		elems := make([]wasm.Reference, t.Type.Limits.Min)
		for i := range elems {
			elems[i] = wasm.NullRef
		}
		addr := store.AddTable(&wasm.TableInstance{Type: t.Type, Elements: elems})
		mi.Tables = append(mi.Tables, addr)
	}
	for _, mem := range m.MemorySection {
		addr := store.AddMemory(&wasm.MemoryInstance{Type: mem.Type, Bytes: make([]byte, mem.Type.Limits.Min*wasm.PageSize)})
		mi.Mems = append(mi.Mems, addr)
	}
	for _, g := range m.GlobalSection {
		v, err := evalConst(store, mi, g.Init)
		if err != nil {
			return nil, err
		}
		addr := store.AddGlobal(&wasm.GlobalInstance{Type: g.Type, Value: v})
		mi.Globals = append(mi.Globals, addr)
	}

	for _, seg := range m.ElementSection {
		refs := make([]wasm.Reference, len(seg.Init))
		for i, init := range seg.Init {
			v, err := evalConst(store, mi, init)
			if err != nil {
				return nil, err
			}
			refs[i] = v.Ref
		}
		elemInst := &wasm.ElementInstance{Type: seg.Type, Refs: refs}
		if seg.Mode == wasm.ElemModeDeclarative {
			elemInst.Dropped = true
			elemInst.Refs = nil
		}
		addr := store.AddElement(elemInst)
		mi.Elems = append(mi.Elems, addr)

		if seg.Mode == wasm.ElemModeActive {
			offV, err := evalConst(store, mi, seg.Offset)
			if err != nil {
				return nil, err
			}
			off := offV.I32()
			table := store.Tables[mi.Tables[seg.Table.Num]]
			if uint64(off)+uint64(len(refs)) > uint64(len(table.Elements)) {
				return nil, newErr(KindElemOutOfBounds, "out of bounds table access")
			}
			copy(table.Elements[off:], refs)
		}
	}

	for _, seg := range m.DataSection {
		data := &wasm.DataInstance{Bytes: append([]byte(nil), seg.Init...)}
		addr := store.AddData(data)
		mi.Datas = append(mi.Datas, addr)

		if seg.Mode == wasm.DataModeActive {
			offV, err := evalConst(store, mi, seg.Offset)
			if err != nil {
				return nil, err
			}
			off := offV.I32()
			mem := store.Memories[mi.Mems[seg.Memory.Num]]
			if uint64(off)+uint64(len(seg.Init)) > uint64(len(mem.Bytes)) {
				return nil, newErr(KindDataOutOfBounds, "out of bounds memory access")
			}
			copy(mem.Bytes[off:], seg.Init)
		}
	}

	for _, ex := range m.ExportSection {
		mi.Exports[ex.Name] = exportVal(mi, ex)
	}

	if m.StartSection != nil {
		fn := store.Functions[mi.Funcs[m.StartSection.Num]]
		in := interpreter.New(maxCallDepth)
		if _, err := in.Call(ctx, store, fn, nil); err != nil {
			return nil, err
		}
	}

	return mi, nil
}

func exportVal(mi *wasm.ModuleInstance, ex *wasm.Export) wasm.ExternVal {
	switch ex.Kind {
	case wasm.ExternTypeFunc:
		return wasm.ExternVal{Kind: ex.Kind, Func: mi.Funcs[ex.Index]}
	case wasm.ExternTypeTable:
		return wasm.ExternVal{Kind: ex.Kind, Table: mi.Tables[ex.Index]}
	case wasm.ExternTypeMemory:
		return wasm.ExternVal{Kind: ex.Kind, Memory: mi.Mems[ex.Index]}
	case wasm.ExternTypeGlobal:
		return wasm.ExternVal{Kind: ex.Kind, Global: mi.Globals[ex.Index]}
	}
	return wasm.ExternVal{}
}

func resolveImports(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance, imports Imports) *werr.Error {
	for _, imp := range m.ImportSection {
		ev, ok := imports.Lookup(imp.Module, imp.Name)
		if !ok {
			return newErr(KindUnknownImport, "unknown import %s.%s", imp.Module, imp.Name)
		}
		if ev.Kind != imp.Kind {
			return newErr(KindImportMismatch, "import %s.%s: kind mismatch", imp.Module, imp.Name)
		}
		switch imp.Kind {
		case wasm.ExternTypeFunc:
			want := m.TypeSection[imp.DescFunc.Num]
			got := store.Functions[ev.Func].Type()
			if !got.EqualsSignature(want.Params, want.Results) {
				return newErr(KindImportMismatch, "import %s.%s: function signature mismatch", imp.Module, imp.Name)
			}
			mi.Funcs = append(mi.Funcs, ev.Func)
		case wasm.ExternTypeTable:
			got := store.Tables[ev.Table].Type
			if !limitsCompatible(got.Limits, imp.DescTable.Limits) || got.RefType != imp.DescTable.RefType {
				return newErr(KindImportMismatch, "import %s.%s: table type mismatch", imp.Module, imp.Name)
			}
			mi.Tables = append(mi.Tables, ev.Table)
		case wasm.ExternTypeMemory:
			got := store.Memories[ev.Memory].Type
			if !limitsCompatible(got.Limits, imp.DescMem.Limits) {
				return newErr(KindImportMismatch, "import %s.%s: memory type mismatch", imp.Module, imp.Name)
			}
			mi.Mems = append(mi.Mems, ev.Memory)
		case wasm.ExternTypeGlobal:
			got := store.Globals[ev.Global].Type
			if got.ValType != imp.DescGlobal.ValType || got.Mutable != imp.DescGlobal.Mutable {
				return newErr(KindImportMismatch, "import %s.%s: global type mismatch", imp.Module, imp.Name)
			}
			mi.Globals = append(mi.Globals, ev.Global)
		}
	}
	return nil
}

// limitsCompatible reports whether an actual (got) limits pair satisfies an import's declared
// (want) limits: the actual minimum must be at least as large, and if the import requires a
// maximum, the actual must both have one and keep it at or below the required bound.
func limitsCompatible(got, want wasm.Limits) bool {
	if got.Min < want.Min {
		return false
	}
	if want.Max == nil {
		return true
	}
	return got.Max != nil && *got.Max <= *want.Max
}
