package compiler

import "github.com/jblebrun/wazir/internal/wasm"

const (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
	f32 = wasm.ValueTypeF32
	f64 = wasm.ValueTypeF64
)

// numericRule returns the fixed pop/push type signature for every opcode that carries no
// immediate operand: the 128 comparison/arithmetic/conversion instructions (0x45–0xC4) plus the
// saturating-truncation extended ones. Used by the validator's InsNumeric rule.
func numericRule(op wasm.Opcode) (pops []wasm.ValueType, push wasm.ValueType, ok bool) {
	switch {
	case op == wasm.OpI32Eqz:
		return []wasm.ValueType{i32}, i32, true
	case op == wasm.OpI64Eqz:
		return []wasm.ValueType{i64}, i32, true
	case op >= wasm.OpI32Eq && op <= wasm.OpI32GeU:
		return []wasm.ValueType{i32, i32}, i32, true
	case op >= wasm.OpI64Eq && op <= wasm.OpI64GeU:
		return []wasm.ValueType{i64, i64}, i32, true
	case op >= wasm.OpF32Eq && op <= wasm.OpF32Ge:
		return []wasm.ValueType{f32, f32}, i32, true
	case op >= wasm.OpF64Eq && op <= wasm.OpF64Ge:
		return []wasm.ValueType{f64, f64}, i32, true
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Popcnt:
		return []wasm.ValueType{i32}, i32, true
	case op >= wasm.OpI32Add && op <= wasm.OpI32Rotr:
		return []wasm.ValueType{i32, i32}, i32, true
	case op >= wasm.OpI64Clz && op <= wasm.OpI64Popcnt:
		return []wasm.ValueType{i64}, i64, true
	case op >= wasm.OpI64Add && op <= wasm.OpI64Rotr:
		return []wasm.ValueType{i64, i64}, i64, true
	case op >= wasm.OpF32Abs && op <= wasm.OpF32Sqrt:
		return []wasm.ValueType{f32}, f32, true
	case op >= wasm.OpF32Add && op <= wasm.OpF32Copysign:
		return []wasm.ValueType{f32, f32}, f32, true
	case op >= wasm.OpF64Abs && op <= wasm.OpF64Sqrt:
		return []wasm.ValueType{f64}, f64, true
	case op >= wasm.OpF64Add && op <= wasm.OpF64Copysign:
		return []wasm.ValueType{f64, f64}, f64, true
	case op == wasm.OpI32WrapI64:
		return []wasm.ValueType{i64}, i32, true
	case op == wasm.OpI32TruncF32S || op == wasm.OpI32TruncF32U:
		return []wasm.ValueType{f32}, i32, true
	case op == wasm.OpI32TruncF64S || op == wasm.OpI32TruncF64U:
		return []wasm.ValueType{f64}, i32, true
	case op == wasm.OpI64ExtendI32S || op == wasm.OpI64ExtendI32U:
		return []wasm.ValueType{i32}, i64, true
	case op == wasm.OpI64TruncF32S || op == wasm.OpI64TruncF32U:
		return []wasm.ValueType{f32}, i64, true
	case op == wasm.OpI64TruncF64S || op == wasm.OpI64TruncF64U:
		return []wasm.ValueType{f64}, i64, true
	case op == wasm.OpF32ConvertI32S || op == wasm.OpF32ConvertI32U:
		return []wasm.ValueType{i32}, f32, true
	case op == wasm.OpF32ConvertI64S || op == wasm.OpF32ConvertI64U:
		return []wasm.ValueType{i64}, f32, true
	case op == wasm.OpF32DemoteF64:
		return []wasm.ValueType{f64}, f32, true
	case op == wasm.OpF64ConvertI32S || op == wasm.OpF64ConvertI32U:
		return []wasm.ValueType{i32}, f64, true
	case op == wasm.OpF64ConvertI64S || op == wasm.OpF64ConvertI64U:
		return []wasm.ValueType{i64}, f64, true
	case op == wasm.OpF64PromoteF32:
		return []wasm.ValueType{f32}, f64, true
	case op == wasm.OpI32ReinterpretF32:
		return []wasm.ValueType{f32}, i32, true
	case op == wasm.OpI64ReinterpretF64:
		return []wasm.ValueType{f64}, i64, true
	case op == wasm.OpF32ReinterpretI32:
		return []wasm.ValueType{i32}, f32, true
	case op == wasm.OpF64ReinterpretI64:
		return []wasm.ValueType{i64}, f64, true
	case op == wasm.OpI32Extend8S || op == wasm.OpI32Extend16S:
		return []wasm.ValueType{i32}, i32, true
	case op == wasm.OpI64Extend8S || op == wasm.OpI64Extend16S || op == wasm.OpI64Extend32S:
		return []wasm.ValueType{i64}, i64, true
	case op == wasm.OpI32TruncSatF32S || op == wasm.OpI32TruncSatF32U:
		return []wasm.ValueType{f32}, i32, true
	case op == wasm.OpI32TruncSatF64S || op == wasm.OpI32TruncSatF64U:
		return []wasm.ValueType{f64}, i32, true
	case op == wasm.OpI64TruncSatF32S || op == wasm.OpI64TruncSatF32U:
		return []wasm.ValueType{f32}, i64, true
	case op == wasm.OpI64TruncSatF64S || op == wasm.OpI64TruncSatF64U:
		return []wasm.ValueType{f64}, i64, true
	}
	return nil, 0, false
}

// requiresFeature reports the proposal feature gating op, if any.
func requiresFeature(op wasm.Opcode) (wasm.Features, bool) {
	switch {
	case op == wasm.OpI32Extend8S || op == wasm.OpI32Extend16S || op == wasm.OpI64Extend8S ||
		op == wasm.OpI64Extend16S || op == wasm.OpI64Extend32S:
		return wasm.FeatureSignExtensionOps, true
	case op == wasm.OpI32TruncSatF32S || op == wasm.OpI32TruncSatF32U || op == wasm.OpI32TruncSatF64S ||
		op == wasm.OpI32TruncSatF64U || op == wasm.OpI64TruncSatF32S || op == wasm.OpI64TruncSatF32U ||
		op == wasm.OpI64TruncSatF64S || op == wasm.OpI64TruncSatF64U:
		return wasm.FeatureNonTrappingFloatToIntConversion, true
	case op == wasm.OpMemoryInit || op == wasm.OpDataDrop || op == wasm.OpMemoryCopy || op == wasm.OpMemoryFill ||
		op == wasm.OpTableInit || op == wasm.OpElemDrop || op == wasm.OpTableCopy:
		return wasm.FeatureBulkMemoryOperations, true
	case op == wasm.OpTableGet || op == wasm.OpTableSet || op == wasm.OpTableGrow || op == wasm.OpTableSize ||
		op == wasm.OpTableFill || op == wasm.OpRefNull || op == wasm.OpRefIsNull || op == wasm.OpRefFunc ||
		op == wasm.OpSelectT:
		return wasm.FeatureReferenceTypes, true
	}
	return 0, false
}

func naturalAlignment(op wasm.Opcode) uint32 {
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U,
		wasm.OpI32Store8, wasm.OpI64Store8:
		return 0
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI32Store16, wasm.OpI64Store16:
		return 1
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U,
		wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		return 2
	case wasm.OpI64Load, wasm.OpF64Load, wasm.OpI64Store, wasm.OpF64Store:
		return 3
	}
	return 0
}

func loadStoreValueType(op wasm.Opcode) wasm.ValueType {
	switch op {
	case wasm.OpI32Load, wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI32Store, wasm.OpI32Store8, wasm.OpI32Store16:
		return i32
	case wasm.OpI64Load, wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U, wasm.OpI64Store, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		return i64
	case wasm.OpF32Load, wasm.OpF32Store:
		return f32
	case wasm.OpF64Load, wasm.OpF64Store:
		return f64
	}
	return 0
}

func isStore(op wasm.Opcode) bool {
	switch op {
	case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		return true
	}
	return false
}
