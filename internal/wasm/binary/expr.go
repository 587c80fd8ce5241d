package binary

import (
	"github.com/jblebrun/wazir/internal/wasm"
)

// decodeExpr reads instructions until a terminal `end` (0x0b) or, for `if`, either `else` or
// `end`; those terminal instructions are appended to Instrs so the validator/compiler can see
// block structure without a side channel. Top-level callers (global/elem/data initializers,
// and function bodies) strip or interpret the terminal themselves.
func decodeExpr(r *countingReader) (wasm.Expr, error) {
	var instrs []wasm.Instruction
	depth := 0
	for {
		ins, err := decodeInstruction(r)
		if err != nil {
			return wasm.Expr{}, err
		}
		instrs = append(instrs, ins)
		switch ins.Opcode() {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			if depth == 0 {
				return wasm.Expr{Instrs: instrs}, nil
			}
			depth--
		}
	}
}

// decodeBlockType reads a blocktype: the single byte 0x40 (empty), one of the six valtype
// bytes (single-result shorthand), or a non-negative signed LEB128 s33 type index (the
// multi-value proposal's general form).
func decodeBlockType(r *countingReader) (wasm.BlockType, error) {
	first, err := r.readByte()
	if err != nil {
		return wasm.BlockType{}, err
	}
	switch first {
	case 0x40:
		return wasm.BlockType{Empty: true}, nil
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return wasm.BlockType{ValType: first}, nil
	}
	idx, err := decodeBlockTypeIndex(r, first)
	if err != nil {
		return wasm.BlockType{}, err
	}
	return wasm.BlockType{HasType: true, Type: wasm.NewTypeIndex(idx)}, nil
}

// decodeBlockTypeIndex finishes decoding a signed LEB128 s33 whose first byte has already
// been read, returning it as an unsigned type index (block type indices are never negative).
func decodeBlockTypeIndex(r *countingReader, first byte) (uint32, error) {
	var result int64
	var shift uint32
	b := first
	for {
		chunk := int64(b & 0x7f)
		result |= chunk << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			return 0, newErr(KindLEB128Overflow, "blocktype index LEB128 overflow")
		}
		var err error
		b, err = r.readByte()
		if err != nil {
			return 0, err
		}
	}
	if shift < 33 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if result < 0 {
		return 0, newErr(KindInvalidValueType, "invalid blocktype: negative type index %d", result)
	}
	return uint32(result), nil
}

func decodeMemArg(r *countingReader) (wasm.MemArg, error) {
	align, err := r.readU32()
	if err != nil {
		return wasm.MemArg{}, err
	}
	offset, err := r.readU32()
	if err != nil {
		return wasm.MemArg{}, err
	}
	return wasm.MemArg{Align: align, Offset: offset}, nil
}

func decodeInstruction(r *countingReader) (wasm.Instruction, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	op := wasm.Opcode(b)

	switch op {
	case wasm.OpUnreachable, wasm.OpNop, wasm.OpElse, wasm.OpEnd, wasm.OpReturn,
		wasm.OpDrop, wasm.OpSelect, wasm.OpMemorySize, wasm.OpMemoryGrow, wasm.OpRefIsNull:
		return simple(op), nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		bt, err := decodeBlockType(r)
		if err != nil {
			return nil, err
		}
		switch op {
		case wasm.OpBlock:
			return wasm.InsBlock{OpHeader: wasm.Op(op), BlockType: bt}, nil
		case wasm.OpLoop:
			return wasm.InsLoop{OpHeader: wasm.Op(op), BlockType: bt}, nil
		default:
			return wasm.InsIf{OpHeader: wasm.Op(op), BlockType: bt}, nil
		}

	case wasm.OpBr, wasm.OpBrIf:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if op == wasm.OpBr {
			return wasm.InsBr{OpHeader: wasm.Op(op), Label: wasm.NewLabelIndex(idx)}, nil
		}
		return wasm.InsBrIf{OpHeader: wasm.Op(op), Label: wasm.NewLabelIndex(idx)}, nil

	case wasm.OpBrTable:
		n, err := r.readU32()
		if err != nil {
			return nil, err
		}
		labels := make([]uint32, n)
		for i := range labels {
			labels[i], err = r.readU32()
			if err != nil {
				return nil, err
			}
		}
		def, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsBrTable{OpHeader: wasm.Op(op), Labels: resolvedLabels(labels), Default: wasm.NewLabelIndex(def)}, nil

	case wasm.OpCall:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsCall{OpHeader: wasm.Op(op), Func: wasm.NewFuncIndex(idx)}, nil

	case wasm.OpCallIndirect:
		typeIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		tableIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsCallIndirect{
			OpHeader: wasm.Op(op),
			Type:     wasm.NewTypeIndex(typeIdx),
			Table:    wasm.NewTableIndex(tableIdx),
		}, nil

	case wasm.OpSelectT:
		n, err := r.readU32()
		if err != nil {
			return nil, err
		}
		types := make([]wasm.ValueType, n)
		for i := range types {
			types[i], err = decodeValueType(r)
			if err != nil {
				return nil, err
			}
		}
		return wasm.InsSelectTyped{OpHeader: wasm.Op(op), Types: types}, nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		li := wasm.NewLocalIndex(idx)
		switch op {
		case wasm.OpLocalGet:
			return wasm.InsLocalGet{OpHeader: wasm.Op(op), Local: li}, nil
		case wasm.OpLocalSet:
			return wasm.InsLocalSet{OpHeader: wasm.Op(op), Local: li}, nil
		default:
			return wasm.InsLocalTee{OpHeader: wasm.Op(op), Local: li}, nil
		}

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		gi := wasm.NewGlobalIndex(idx)
		if op == wasm.OpGlobalGet {
			return wasm.InsGlobalGet{OpHeader: wasm.Op(op), Global: gi}, nil
		}
		return wasm.InsGlobalSet{OpHeader: wasm.Op(op), Global: gi}, nil

	case wasm.OpTableGet, wasm.OpTableSet:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		ti := wasm.NewTableIndex(idx)
		if op == wasm.OpTableGet {
			return wasm.InsTableGet{OpHeader: wasm.Op(op), Table: ti}, nil
		}
		return wasm.InsTableSet{OpHeader: wasm.Op(op), Table: ti}, nil

	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U:
		ma, err := decodeMemArg(r)
		if err != nil {
			return nil, err
		}
		return wasm.InsLoad{OpHeader: wasm.Op(op), MemArg: ma}, nil

	case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		ma, err := decodeMemArg(r)
		if err != nil {
			return nil, err
		}
		return wasm.InsStore{OpHeader: wasm.Op(op), MemArg: ma}, nil

	case wasm.OpI32Const:
		v, err := r.readI32()
		if err != nil {
			return nil, err
		}
		return wasm.InsI32Const{OpHeader: wasm.Op(op), Value: v}, nil

	case wasm.OpI64Const:
		v, err := r.readI64()
		if err != nil {
			return nil, err
		}
		return wasm.InsI64Const{OpHeader: wasm.Op(op), Value: v}, nil

	case wasm.OpF32Const:
		v, err := decodeF32(r)
		if err != nil {
			return nil, err
		}
		return wasm.InsF32Const{OpHeader: wasm.Op(op), Value: v}, nil

	case wasm.OpF64Const:
		v, err := decodeF64(r)
		if err != nil {
			return nil, err
		}
		return wasm.InsF64Const{OpHeader: wasm.Op(op), Value: v}, nil

	case wasm.OpRefNull:
		rt, err := decodeRefType(r)
		if err != nil {
			return nil, err
		}
		return wasm.InsRefNull{OpHeader: wasm.Op(op), Type: rt}, nil

	case wasm.OpRefFunc:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsRefFunc{OpHeader: wasm.Op(op), Func: wasm.NewFuncIndex(idx)}, nil

	case 0xfc:
		return decodeExtended(r)

	case 0xfd:
		return decodeVector(r)
	}

	if isNumericOpcode(op) {
		return simple(op), nil
	}
	return nil, newErr(KindInvalidOpcode, "invalid opcode: %#x", b)
}

func simple(op wasm.Opcode) wasm.Instruction {
	h := wasm.Op(op)
	switch op {
	case wasm.OpUnreachable:
		return wasm.InsUnreachable{OpHeader: h}
	case wasm.OpNop:
		return wasm.InsNop{OpHeader: h}
	case wasm.OpElse:
		return wasm.InsElse{OpHeader: h}
	case wasm.OpEnd:
		return wasm.InsEnd{OpHeader: h}
	case wasm.OpReturn:
		return wasm.InsReturn{OpHeader: h}
	case wasm.OpDrop:
		return wasm.InsDrop{OpHeader: h}
	case wasm.OpSelect:
		return wasm.InsSelect{OpHeader: h}
	case wasm.OpMemorySize:
		return wasm.InsMemorySize{OpHeader: h}
	case wasm.OpMemoryGrow:
		return wasm.InsMemoryGrow{OpHeader: h}
	case wasm.OpRefIsNull:
		return wasm.InsRefIsNull{OpHeader: h}
	}
	return wasm.NewNumeric(op)
}

func isNumericOpcode(op wasm.Opcode) bool {
	return op >= wasm.OpI32Eqz && op <= wasm.OpI64Extend32S
}

func resolvedLabels(nums []uint32) []wasm.LabelIndex {
	out := make([]wasm.LabelIndex, len(nums))
	for i, n := range nums {
		out[i] = wasm.NewLabelIndex(n)
	}
	return out
}

func decodeExtended(r *countingReader) (wasm.Instruction, error) {
	sub, err := r.readU32()
	if err != nil {
		return nil, err
	}
	op := wasm.Opcode(0x0100 | wasm.Opcode(sub&0xff))
	h := wasm.Op(op)
	switch op {
	case wasm.OpI32TruncSatF32S, wasm.OpI32TruncSatF32U, wasm.OpI32TruncSatF64S, wasm.OpI32TruncSatF64U,
		wasm.OpI64TruncSatF32S, wasm.OpI64TruncSatF32U, wasm.OpI64TruncSatF64S, wasm.OpI64TruncSatF64U:
		return wasm.NewNumeric(op), nil
	case wasm.OpMemoryInit:
		dataIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if _, err := r.readByte(); err != nil { // reserved memory index, must be 0
			return nil, err
		}
		return wasm.InsMemoryInit{OpHeader: h, Data: wasm.NewDataIndex(dataIdx)}, nil
	case wasm.OpDataDrop:
		dataIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsDataDrop{OpHeader: h, Data: wasm.NewDataIndex(dataIdx)}, nil
	case wasm.OpMemoryCopy:
		if _, err := r.readByte(); err != nil {
			return nil, err
		}
		if _, err := r.readByte(); err != nil {
			return nil, err
		}
		return wasm.InsMemoryCopy{OpHeader: h}, nil
	case wasm.OpMemoryFill:
		if _, err := r.readByte(); err != nil {
			return nil, err
		}
		return wasm.InsMemoryFill{OpHeader: h}, nil
	case wasm.OpTableInit:
		elemIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		tableIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsTableInit{OpHeader: h, Elem: wasm.NewElemIndex(elemIdx), Table: wasm.NewTableIndex(tableIdx)}, nil
	case wasm.OpElemDrop:
		elemIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsElemDrop{OpHeader: h, Elem: wasm.NewElemIndex(elemIdx)}, nil
	case wasm.OpTableCopy:
		dst, err := r.readU32()
		if err != nil {
			return nil, err
		}
		src, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return wasm.InsTableCopy{OpHeader: h, Dst: wasm.NewTableIndex(dst), Src: wasm.NewTableIndex(src)}, nil
	case wasm.OpTableGrow, wasm.OpTableSize, wasm.OpTableFill:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		ti := wasm.NewTableIndex(idx)
		switch op {
		case wasm.OpTableGrow:
			return wasm.InsTableGrow{OpHeader: h, Table: ti}, nil
		case wasm.OpTableSize:
			return wasm.InsTableSize{OpHeader: h, Table: ti}, nil
		default:
			return wasm.InsTableFill{OpHeader: h, Table: ti}, nil
		}
	}
	return nil, newErr(KindInvalidSecondaryOpcode, "invalid secondary opcode in 0xFC space: %#x", sub)
}

// decodeVector decodes the sub-opcode of a 0xFD-prefixed (SIMD) instruction and returns a
// placeholder. Immediates are not decoded, so only a SIMD instruction without immediates
// leaves the reader at the next instruction; such a module is then rejected by the validator.
func decodeVector(r *countingReader) (wasm.Instruction, error) {
	sub, err := r.readU32()
	if err != nil {
		return nil, err
	}
	op := wasm.VectorOpcode(sub)
	return wasm.InsVectorStub{OpHeader: wasm.Op(op), SubOpcode: sub}, nil
}
