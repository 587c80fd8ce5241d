package interpreter

import (
	"encoding/binary"
	"math"

	"github.com/jblebrun/wazir/internal/wasm"
)

func (in *Interpreter) execMemory(store *wasm.Store, fn *wasm.FunctionInstance, ins *wasm.CompiledInstr, stack []uint64) ([]uint64, error) {
	mem := store.Memories[fn.Module.Mems[0]]

	switch ins.Op {
	case wasm.COpLoad:
		addr := uint32(pop(&stack))
		off := uint64(addr) + uint64(ins.MemArg.Offset)
		v, err := loadValue(mem, off, ins.Numeric)
		if err != nil {
			return nil, err
		}
		stack = append(stack, v)
	case wasm.COpStore:
		v := pop(&stack)
		addr := uint32(pop(&stack))
		off := uint64(addr) + uint64(ins.MemArg.Offset)
		if err := storeValue(mem, off, ins.Numeric, v); err != nil {
			return nil, err
		}

	case wasm.COpMemorySize:
		stack = append(stack, uint64(mem.PageCount()))
	case wasm.COpMemoryGrow:
		delta := uint32(pop(&stack))
		old := mem.PageCount()
		newPages := uint64(old) + uint64(delta)
		if mem.Type.Max != nil && newPages > uint64(*mem.Type.Max) {
			stack = append(stack, uint64(uint32(0xFFFFFFFF)))
			break
		}
		if uint64(newPages)*wasm.PageSize > math.MaxInt32 {
			stack = append(stack, uint64(uint32(0xFFFFFFFF)))
			break
		}
		grown := make([]byte, newPages*wasm.PageSize)
		copy(grown, mem.Bytes)
		mem.Bytes = grown
		stack = append(stack, uint64(old))

	case wasm.COpMemoryCopy:
		n := uint32(pop(&stack))
		src := uint32(pop(&stack))
		dst := uint32(pop(&stack))
		if uint64(src)+uint64(n) > uint64(len(mem.Bytes)) || uint64(dst)+uint64(n) > uint64(len(mem.Bytes)) {
			return nil, newErr(KindOutOfBoundsMemory, "out of bounds memory access")
		}
		copy(mem.Bytes[dst:dst+n], mem.Bytes[src:src+n])
	case wasm.COpMemoryFill:
		n := uint32(pop(&stack))
		val := byte(pop(&stack))
		dst := uint32(pop(&stack))
		if uint64(dst)+uint64(n) > uint64(len(mem.Bytes)) {
			return nil, newErr(KindOutOfBoundsMemory, "out of bounds memory access")
		}
		for i := uint32(0); i < n; i++ {
			mem.Bytes[dst+i] = val
		}
	case wasm.COpMemoryInit:
		data := store.Datas[fn.Module.Datas[ins.Index]]
		n := uint32(pop(&stack))
		src := uint32(pop(&stack))
		dst := uint32(pop(&stack))
		srcLen := uint32(0)
		if !data.Dropped {
			srcLen = uint32(len(data.Bytes))
		}
		if uint64(src)+uint64(n) > uint64(srcLen) || uint64(dst)+uint64(n) > uint64(len(mem.Bytes)) {
			return nil, newErr(KindOutOfBoundsMemory, "out of bounds memory access")
		}
		copy(mem.Bytes[dst:dst+n], data.Bytes[src:src+n])
	case wasm.COpDataDrop:
		data := store.Datas[fn.Module.Datas[ins.Index]]
		data.Dropped = true
		data.Bytes = nil
	}
	return stack, nil
}

func loadValue(mem *wasm.MemoryInstance, off uint64, op wasm.Opcode) (uint64, error) {
	var width uint64
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		width = 1
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U:
		width = 2
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		width = 4
	case wasm.OpI64Load, wasm.OpF64Load:
		width = 8
	}
	if off+width > uint64(len(mem.Bytes)) {
		return 0, newErr(KindOutOfBoundsMemory, "out of bounds memory access")
	}
	b := mem.Bytes[off : off+width]
	switch op {
	case wasm.OpI32Load:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case wasm.OpI64Load:
		return binary.LittleEndian.Uint64(b), nil
	case wasm.OpF32Load:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case wasm.OpF64Load:
		return binary.LittleEndian.Uint64(b), nil
	case wasm.OpI32Load8S:
		return uint64(uint32(int32(int8(b[0])))), nil
	case wasm.OpI32Load8U:
		return uint64(b[0]), nil
	case wasm.OpI32Load16S:
		return uint64(uint32(int32(int16(binary.LittleEndian.Uint16(b))))), nil
	case wasm.OpI32Load16U:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case wasm.OpI64Load8S:
		return uint64(int64(int8(b[0]))), nil
	case wasm.OpI64Load8U:
		return uint64(b[0]), nil
	case wasm.OpI64Load16S:
		return uint64(int64(int16(binary.LittleEndian.Uint16(b)))), nil
	case wasm.OpI64Load16U:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case wasm.OpI64Load32S:
		return uint64(int64(int32(binary.LittleEndian.Uint32(b)))), nil
	case wasm.OpI64Load32U:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
	return 0, nil
}

func storeValue(mem *wasm.MemoryInstance, off uint64, op wasm.Opcode, v uint64) error {
	var width uint64
	switch op {
	case wasm.OpI32Store8, wasm.OpI64Store8:
		width = 1
	case wasm.OpI32Store16, wasm.OpI64Store16:
		width = 2
	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		width = 4
	case wasm.OpI64Store, wasm.OpF64Store:
		width = 8
	}
	if off+width > uint64(len(mem.Bytes)) {
		return newErr(KindOutOfBoundsMemory, "out of bounds memory access")
	}
	b := mem.Bytes[off : off+width]
	switch op {
	case wasm.OpI32Store, wasm.OpF32Store:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case wasm.OpI64Store, wasm.OpF64Store:
		binary.LittleEndian.PutUint64(b, v)
	case wasm.OpI32Store8, wasm.OpI64Store8:
		b[0] = byte(v)
	case wasm.OpI32Store16, wasm.OpI64Store16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case wasm.OpI64Store32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
	return nil
}
