package instantiate

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// evalConst evaluates a restricted constant expression (already validated by internal/compiler)
// to its runtime Value. mi must already have every global that may legally be referenced
// (imports, and for globals themselves, every import preceding the one being initialized).
func evalConst(store *wasm.Store, mi *wasm.ModuleInstance, expr wasm.Expr) (wasm.Value, *werr.Error) {
	ins := expr.Instrs[0]
	switch ins := ins.(type) {
	case wasm.InsI32Const:
		return wasm.I32Value(uint32(ins.Value)), nil
	case wasm.InsI64Const:
		return wasm.I64Value(uint64(ins.Value)), nil
	case wasm.InsF32Const:
		return wasm.F32Value(ins.Value), nil
	case wasm.InsF64Const:
		return wasm.F64Value(ins.Value), nil
	case wasm.InsRefNull:
		return wasm.RefValue(ins.Type, wasm.NullRef), nil
	case wasm.InsRefFunc:
		return wasm.RefValue(wasm.ValueTypeFuncref, wasm.FuncRef(mi.Funcs[ins.Func.Num])), nil
	case wasm.InsGlobalGet:
		g := store.Globals[mi.Globals[ins.Global.Num]]
		return g.Value, nil
	}
	return wasm.Value{}, nil
}
