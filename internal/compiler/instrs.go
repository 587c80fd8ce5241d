package compiler

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

func (fc *funcCompiler) blockTypeSig(bt wasm.BlockType) ([]wasm.ValueType, []wasm.ValueType, *werr.Error) {
	if bt.Empty {
		return nil, nil, nil
	}
	if !bt.HasType {
		return nil, []wasm.ValueType{bt.ValType}, nil
	}
	idx := bt.Type.Num
	if int(idx) >= len(fc.mc.m.TypeSection) {
		return nil, nil, newErr(KindUnknownType, "unknown type %d", idx)
	}
	ft := fc.mc.m.TypeSection[idx]
	return ft.Params, ft.Results, nil
}

func (fc *funcCompiler) compileOne(ins wasm.Instruction) *werr.Error {
	op := ins.Opcode()
	if feat, need := requiresFeature(op); need && !fc.features.Has(feat) {
		return newErr(KindUnsupportedFeature, "opcode %#x requires a disabled feature", uint16(op))
	}

	switch ins := ins.(type) {
	case wasm.InsUnreachable:
		fc.emit(wasm.CompiledInstr{Op: wasm.COpUnreachable})
		fc.unreachable()
	case wasm.InsNop:
		fc.emit(wasm.CompiledInstr{Op: wasm.COpNop})

	case wasm.InsBlock:
		params, results, err := fc.blockTypeSig(ins.BlockType)
		if err != nil {
			return err
		}
		if err := fc.popExpects(params); err != nil {
			return err
		}
		fc.pushCtrl(wasm.OpBlock, params, results)
	case wasm.InsLoop:
		params, results, err := fc.blockTypeSig(ins.BlockType)
		if err != nil {
			return err
		}
		if err := fc.popExpects(params); err != nil {
			return err
		}
		f := fc.pushCtrl(wasm.OpLoop, params, results)
		f.startPC = len(fc.code)
	case wasm.InsIf:
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		params, results, err := fc.blockTypeSig(ins.BlockType)
		if err != nil {
			return err
		}
		if err := fc.popExpects(params); err != nil {
			return err
		}
		f := fc.pushCtrl(wasm.OpIf, params, results)
		f.ifJumpIdx = fc.emit(wasm.CompiledInstr{Op: wasm.COpIfNot})
	case wasm.InsElse:
		f := fc.ctrl[len(fc.ctrl)-1]
		if f.op != wasm.OpIf {
			return newErr(KindTypeMismatch, "else without matching if")
		}
		if err := fc.popExpects(f.endTypes); err != nil {
			return err
		}
		if fc.height != f.height {
			return newErr(KindUnusedValues, "type mismatch: unused values before else")
		}
		idx := fc.emit(wasm.CompiledInstr{Op: wasm.COpBr})
		f.elseBrIdx = idx
		f.patches = append(f.patches, patchRef{idx: idx, which: -2})
		if f.ifJumpIdx >= 0 {
			fc.code[f.ifJumpIdx].Target.PC = idx + 1
			f.ifJumpIdx = -1
		}
		f.op = wasm.OpElse
		f.unreachable = false
		fc.pushVals(f.startTypes)
	case wasm.InsEnd:
		f, err := fc.popCtrl()
		if err != nil {
			return err
		}
		endPC := len(fc.code)
		if f.op == wasm.OpIf && f.ifJumpIdx >= 0 {
			fc.code[f.ifJumpIdx].Target.PC = endPC
		}
		fc.patchFrame(f, endPC)
		fc.pushVals(f.endTypes)

	case wasm.InsBr:
		f, err := fc.frameAt(ins.Label.Num)
		if err != nil {
			return err
		}
		idx := fc.emit(wasm.CompiledInstr{Op: wasm.COpBr})
		fc.code[idx].Target = fc.branchTarget(f, idx, -2)
		if err := fc.popExpects(f.labelTypes()); err != nil {
			return err
		}
		fc.unreachable()
	case wasm.InsBrIf:
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		f, err := fc.frameAt(ins.Label.Num)
		if err != nil {
			return err
		}
		if err := fc.popExpects(f.labelTypes()); err != nil {
			return err
		}
		fc.pushVals(f.labelTypes())
		idx := fc.emit(wasm.CompiledInstr{Op: wasm.COpBrIf})
		fc.code[idx].Target = fc.branchTarget(f, idx, -2)
	case wasm.InsBrTable:
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		def, err := fc.frameAt(ins.Default.Num)
		if err != nil {
			return err
		}
		defTypes := def.labelTypes()
		if err := fc.popExpects(defTypes); err != nil {
			return err
		}
		idx := fc.emit(wasm.CompiledInstr{Op: wasm.COpBrTable, Table: make([]wasm.BrTarget, len(ins.Labels))})
		for i, lbl := range ins.Labels {
			lf, err := fc.frameAt(lbl.Num)
			if err != nil {
				return err
			}
			if len(lf.labelTypes()) != len(defTypes) {
				return newErr(KindTypeMismatch, "br_table labels must have matching arity")
			}
			fc.code[idx].Table[i] = fc.branchTarget(lf, idx, i)
		}
		fc.code[idx].Default = fc.branchTarget(def, idx, -1)
		if err := fc.popExpects(defTypes); err != nil {
			return err
		}
		fc.unreachable()
	case wasm.InsReturn:
		f := fc.ctrl[0]
		arity := len(f.endTypes)
		pop := fc.height - f.height - arity
		if pop < 0 {
			pop = 0
		}
		if err := fc.popExpects(f.endTypes); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpReturn, Target: wasm.BrTarget{Arity: arity, PopCount: pop}})
		fc.unreachable()

	case wasm.InsCall:
		idx := ins.Func.Num
		if int(idx) >= len(fc.mc.funcTypes) {
			return newErr(KindUnknownFunction, "unknown function %d", idx)
		}
		ft := fc.mc.funcTypes[idx]
		if err := fc.popExpects(ft.Params); err != nil {
			return err
		}
		fc.pushVals(ft.Results)
		fc.emit(wasm.CompiledInstr{Op: wasm.COpCall, Index: idx})
	case wasm.InsCallIndirect:
		if int(ins.Table.Num) >= len(fc.mc.tableTypes) {
			return newErr(KindUnknownTable, "unknown table %d", ins.Table.Num)
		}
		if fc.mc.tableTypes[ins.Table.Num].RefType != wasm.ValueTypeFuncref {
			return newErr(KindTypeMismatch, "call_indirect requires a funcref table")
		}
		if int(ins.Type.Num) >= len(fc.mc.m.TypeSection) {
			return newErr(KindUnknownType, "unknown type %d", ins.Type.Num)
		}
		ft := fc.mc.m.TypeSection[ins.Type.Num]
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpects(ft.Params); err != nil {
			return err
		}
		fc.pushVals(ft.Results)
		fc.emit(wasm.CompiledInstr{Op: wasm.COpCallIndirect, Index: ins.Type.Num, Index2: ins.Table.Num})

	case wasm.InsDrop:
		if _, err := fc.popVal(); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpDrop})
	case wasm.InsSelect:
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		b, err := fc.popVal()
		if err != nil {
			return err
		}
		a, err := fc.popVal()
		if err != nil {
			return err
		}
		if a.known && b.known && a.t != b.t {
			return newErr(KindTypeMismatch, "select operands must have the same type")
		}
		result := a
		if !a.known {
			result = b
		}
		fc.pushVal(result)
		fc.emit(wasm.CompiledInstr{Op: wasm.COpSelect})
	case wasm.InsSelectTyped:
		if len(ins.Types) != 1 {
			return newErr(KindTypeMismatch, "select with explicit types must name exactly one type")
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(ins.Types[0]); err != nil {
			return err
		}
		if err := fc.popExpect(ins.Types[0]); err != nil {
			return err
		}
		fc.pushVal(known(ins.Types[0]))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpSelect, Types: ins.Types})

	case wasm.InsLocalGet:
		idx := ins.Local.Num
		if int(idx) >= len(fc.locals) {
			return newErr(KindUnknownLocal, "unknown local %d", idx)
		}
		fc.pushVal(known(fc.locals[idx]))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpLocalGet, Index: idx})
	case wasm.InsLocalSet:
		idx := ins.Local.Num
		if int(idx) >= len(fc.locals) {
			return newErr(KindUnknownLocal, "unknown local %d", idx)
		}
		if err := fc.popExpect(fc.locals[idx]); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpLocalSet, Index: idx})
	case wasm.InsLocalTee:
		idx := ins.Local.Num
		if int(idx) >= len(fc.locals) {
			return newErr(KindUnknownLocal, "unknown local %d", idx)
		}
		if err := fc.popExpect(fc.locals[idx]); err != nil {
			return err
		}
		fc.pushVal(known(fc.locals[idx]))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpLocalTee, Index: idx})
	case wasm.InsGlobalGet:
		idx := ins.Global.Num
		if int(idx) >= len(fc.mc.globalTypes) {
			return newErr(KindUnknownGlobal, "unknown global %d", idx)
		}
		fc.pushVal(known(fc.mc.globalTypes[idx].ValType))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpGlobalGet, Index: idx})
	case wasm.InsGlobalSet:
		idx := ins.Global.Num
		if int(idx) >= len(fc.mc.globalTypes) {
			return newErr(KindUnknownGlobal, "unknown global %d", idx)
		}
		gt := fc.mc.globalTypes[idx]
		if !gt.Mutable {
			return newErr(KindGlobalImmutable, "global %d is immutable", idx)
		}
		if err := fc.popExpect(gt.ValType); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpGlobalSet, Index: idx})

	case wasm.InsTableGet:
		tt, err := fc.tableType(ins.Table.Num)
		if err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.pushVal(known(tt.RefType))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableGet, Index: ins.Table.Num})
	case wasm.InsTableSet:
		tt, err := fc.tableType(ins.Table.Num)
		if err != nil {
			return err
		}
		if err := fc.popExpect(tt.RefType); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableSet, Index: ins.Table.Num})
	case wasm.InsTableSize:
		if _, err := fc.tableType(ins.Table.Num); err != nil {
			return err
		}
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableSize, Index: ins.Table.Num})
	case wasm.InsTableGrow:
		tt, err := fc.tableType(ins.Table.Num)
		if err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(tt.RefType); err != nil {
			return err
		}
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableGrow, Index: ins.Table.Num})
	case wasm.InsTableFill:
		tt, err := fc.tableType(ins.Table.Num)
		if err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(tt.RefType); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableFill, Index: ins.Table.Num})
	case wasm.InsTableCopy:
		if _, err := fc.tableType(ins.Dst.Num); err != nil {
			return err
		}
		if _, err := fc.tableType(ins.Src.Num); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableCopy, Index: ins.Dst.Num, Index2: ins.Src.Num})
	case wasm.InsTableInit:
		if _, err := fc.tableType(ins.Table.Num); err != nil {
			return err
		}
		if int(ins.Elem.Num) >= len(fc.mc.m.ElementSection) {
			return newErr(KindUnknownElem, "unknown elem segment %d", ins.Elem.Num)
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpTableInit, Index: ins.Elem.Num, Index2: ins.Table.Num})
	case wasm.InsElemDrop:
		if int(ins.Elem.Num) >= len(fc.mc.m.ElementSection) {
			return newErr(KindUnknownElem, "unknown elem segment %d", ins.Elem.Num)
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpElemDrop, Index: ins.Elem.Num})

	case wasm.InsLoad:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		if ins.MemArg.Align > naturalAlignment(op) {
			return newErr(KindAlignment, "alignment %d too large for opcode %#x", ins.MemArg.Align, uint16(op))
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.pushVal(known(loadStoreValueType(op)))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpLoad, Numeric: op, MemArg: ins.MemArg})
	case wasm.InsStore:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		if ins.MemArg.Align > naturalAlignment(op) {
			return newErr(KindAlignment, "alignment %d too large for opcode %#x", ins.MemArg.Align, uint16(op))
		}
		if err := fc.popExpect(loadStoreValueType(op)); err != nil {
			return err
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpStore, Numeric: op, MemArg: ins.MemArg})
	case wasm.InsMemorySize:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpMemorySize})
	case wasm.InsMemoryGrow:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		if err := fc.popExpect(i32); err != nil {
			return err
		}
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpMemoryGrow})
	case wasm.InsMemoryCopy:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		for i := 0; i < 3; i++ {
			if err := fc.popExpect(i32); err != nil {
				return err
			}
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpMemoryCopy})
	case wasm.InsMemoryFill:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		for i := 0; i < 3; i++ {
			if err := fc.popExpect(i32); err != nil {
				return err
			}
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpMemoryFill})
	case wasm.InsMemoryInit:
		if len(fc.mc.memTypes) == 0 {
			return newErr(KindUnknownMemory, "unknown memory 0")
		}
		if int(ins.Data.Num) >= len(fc.mc.m.DataSection) {
			return newErr(KindUnknownData, "unknown data segment %d", ins.Data.Num)
		}
		for i := 0; i < 3; i++ {
			if err := fc.popExpect(i32); err != nil {
				return err
			}
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpMemoryInit, Index: ins.Data.Num})
	case wasm.InsDataDrop:
		if int(ins.Data.Num) >= len(fc.mc.m.DataSection) {
			return newErr(KindUnknownData, "unknown data segment %d", ins.Data.Num)
		}
		fc.emit(wasm.CompiledInstr{Op: wasm.COpDataDrop, Index: ins.Data.Num})

	case wasm.InsI32Const:
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpI32Const, I32: ins.Value})
	case wasm.InsI64Const:
		fc.pushVal(known(i64))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpI64Const, I64: ins.Value})
	case wasm.InsF32Const:
		fc.pushVal(known(f32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpF32Const, F32: ins.Value})
	case wasm.InsF64Const:
		fc.pushVal(known(f64))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpF64Const, F64: ins.Value})

	case wasm.InsRefNull:
		fc.pushVal(known(ins.Type))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpRefNull, Index: uint32(ins.Type)})
	case wasm.InsRefIsNull:
		v, err := fc.popVal()
		if err != nil {
			return err
		}
		if v.known && v.t != wasm.ValueTypeFuncref && v.t != wasm.ValueTypeExternref {
			return newErr(KindTypeMismatch, "ref.is_null requires a reference type")
		}
		fc.pushVal(known(i32))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpRefIsNull})
	case wasm.InsRefFunc:
		if int(ins.Func.Num) >= len(fc.mc.funcTypes) {
			return newErr(KindUnknownFunction, "unknown function %d", ins.Func.Num)
		}
		fc.pushVal(known(wasm.ValueTypeFuncref))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpRefFunc, Index: ins.Func.Num})

	case wasm.InsVectorStub:
		return newErr(KindUnsupportedFeature, "SIMD instructions are not supported")

	case wasm.InsNumeric:
		pops, push, ok := numericRule(op)
		if !ok {
			return newErr(KindUnsupportedFeature, "unrecognized numeric opcode %#x", uint16(op))
		}
		if err := fc.popExpects(pops); err != nil {
			return err
		}
		fc.pushVal(known(push))
		fc.emit(wasm.CompiledInstr{Op: wasm.COpNumeric, Numeric: op})

	default:
		return newErr(KindUnsupportedFeature, "unhandled instruction")
	}
	return nil
}

func (fc *funcCompiler) tableType(idx uint32) (wasm.TableType, *werr.Error) {
	if int(idx) >= len(fc.mc.tableTypes) {
		return wasm.TableType{}, newErr(KindUnknownTable, "unknown table %d", idx)
	}
	return fc.mc.tableTypes[idx], nil
}
