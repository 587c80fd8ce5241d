package compiler

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// validateConst checks a restricted constant expression (global initializer, elem/data
// segment offset, element init entry) against the core spec's const-expr grammar: only
// const/ref.null/ref.func, plus global.get of an imported immutable global, and exactly
// one resulting value of type want. importedGlobals holds only the module's imported globals,
// since a constant expression may not reference a locally defined global.
func validateConst(mc *moduleCtx, importedGlobals []wasm.GlobalType, expr wasm.Expr, want wasm.ValueType) *werr.Error {
	if len(expr.Instrs) == 0 {
		return newErr(KindInvalidConstantExpression, "empty constant expression")
	}
	last := expr.Instrs[len(expr.Instrs)-1]
	if _, ok := last.(wasm.InsEnd); !ok {
		return newErr(KindInvalidConstantExpression, "constant expression missing end")
	}
	body := expr.Instrs[:len(expr.Instrs)-1]
	if len(body) != 1 {
		return newErr(KindInvalidConstantExpression, "constant expression must contain exactly one instruction")
	}
	var got wasm.ValueType
	switch ins := body[0].(type) {
	case wasm.InsI32Const:
		got = i32
	case wasm.InsI64Const:
		got = i64
	case wasm.InsF32Const:
		got = f32
	case wasm.InsF64Const:
		got = f64
	case wasm.InsRefNull:
		got = ins.Type
	case wasm.InsRefFunc:
		if int(ins.Func.Num) >= len(mc.funcTypes) {
			return newErr(KindUnknownFunction, "unknown function %d", ins.Func.Num)
		}
		got = wasm.ValueTypeFuncref
	case wasm.InsGlobalGet:
		idx := ins.Global.Num
		if int(idx) >= len(importedGlobals) {
			return newErr(KindInvalidConstantExpression, "constant expression may only reference an imported global")
		}
		gt := importedGlobals[idx]
		if gt.Mutable {
			return newErr(KindInvalidConstantExpression, "constant expression may not reference a mutable global")
		}
		got = gt.ValType
	default:
		return newErr(KindInvalidConstantExpression, "instruction not allowed in a constant expression")
	}
	if got != want {
		return newErr(KindTypeMismatch, "type mismatch: constant expression expected %s, got %s", vtName(want), vtName(got))
	}
	return nil
}

// validateModuleConsts checks every global initializer, table/memory segment offset, and
// element init entry in m against the const-expr grammar.
func validateModuleConsts(m *wasm.Module, mc *moduleCtx) *werr.Error {
	var importedGlobals []wasm.GlobalType
	for _, imp := range m.ImportSection {
		if imp.Kind == wasm.ExternTypeGlobal {
			importedGlobals = append(importedGlobals, imp.DescGlobal)
		}
	}
	for i, g := range m.GlobalSection {
		if err := validateConst(mc, importedGlobals, g.Init, g.Type.ValType); err != nil {
			return err.In("global[" + itoa(uint32(i)) + "]")
		}
	}
	for i, el := range m.ElementSection {
		if el.Mode == wasm.ElemModeActive {
			if int(el.Table.Num) >= len(mc.tableTypes) {
				return newErr(KindUnknownTable, "unknown table %d", el.Table.Num)
			}
			if err := validateConst(mc, importedGlobals, el.Offset, i32); err != nil {
				return err.In("elem[" + itoa(uint32(i)) + "]")
			}
		}
		for j, init := range el.Init {
			if err := validateConst(mc, importedGlobals, init, el.Type); err != nil {
				return err.In("elem[" + itoa(uint32(i)) + "].init[" + itoa(uint32(j)) + "]")
			}
		}
	}
	for i, d := range m.DataSection {
		if d.Mode == wasm.DataModeActive {
			if int(d.Memory.Num) >= len(mc.memTypes) {
				return newErr(KindUnknownMemory, "unknown memory %d", d.Memory.Num)
			}
			if err := validateConst(mc, importedGlobals, d.Offset, i32); err != nil {
				return err.In("data[" + itoa(uint32(i)) + "]")
			}
		}
	}
	return nil
}
