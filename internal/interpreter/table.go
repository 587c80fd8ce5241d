package interpreter

import "github.com/jblebrun/wazir/internal/wasm"

func (in *Interpreter) execTable(store *wasm.Store, fn *wasm.FunctionInstance, ins *wasm.CompiledInstr, stack []uint64) ([]uint64, error) {
	switch ins.Op {
	case wasm.COpTableGet:
		table := store.Tables[fn.Module.Tables[ins.Index]]
		idx := uint32(pop(&stack))
		if int(idx) >= len(table.Elements) {
			return nil, newErr(KindOutOfBoundsTable, "out of bounds table access")
		}
		stack = append(stack, refToWord(table.Elements[idx]))

	case wasm.COpTableSet:
		table := store.Tables[fn.Module.Tables[ins.Index]]
		ref := refFromWord(table.Type.RefType, pop(&stack)).Ref
		idx := uint32(pop(&stack))
		if int(idx) >= len(table.Elements) {
			return nil, newErr(KindOutOfBoundsTable, "out of bounds table access")
		}
		table.Elements[idx] = ref

	case wasm.COpTableSize:
		table := store.Tables[fn.Module.Tables[ins.Index]]
		stack = append(stack, uint64(len(table.Elements)))

	case wasm.COpTableGrow:
		table := store.Tables[fn.Module.Tables[ins.Index]]
		n := uint32(pop(&stack))
		ref := refFromWord(table.Type.RefType, pop(&stack)).Ref
		oldSize := uint32(len(table.Elements))
		newSize := oldSize + n
		if table.Type.Max != nil && newSize > *table.Type.Max {
			stack = append(stack, uint64(uint32(0xFFFFFFFF)))
			break
		}
		grown := make([]wasm.Reference, newSize)
		copy(grown, table.Elements)
		for i := oldSize; i < newSize; i++ {
			grown[i] = ref
		}
		table.Elements = grown
		stack = append(stack, uint64(oldSize))

	case wasm.COpTableFill:
		table := store.Tables[fn.Module.Tables[ins.Index]]
		n := uint32(pop(&stack))
		ref := refFromWord(table.Type.RefType, pop(&stack)).Ref
		dst := uint32(pop(&stack))
		if uint64(dst)+uint64(n) > uint64(len(table.Elements)) {
			return nil, newErr(KindOutOfBoundsTable, "out of bounds table access")
		}
		for i := uint32(0); i < n; i++ {
			table.Elements[dst+i] = ref
		}

	case wasm.COpTableCopy:
		dstTable := store.Tables[fn.Module.Tables[ins.Index]]
		srcTable := store.Tables[fn.Module.Tables[ins.Index2]]
		n := uint32(pop(&stack))
		src := uint32(pop(&stack))
		dst := uint32(pop(&stack))
		if uint64(src)+uint64(n) > uint64(len(srcTable.Elements)) || uint64(dst)+uint64(n) > uint64(len(dstTable.Elements)) {
			return nil, newErr(KindOutOfBoundsTable, "out of bounds table access")
		}
		copy(dstTable.Elements[dst:dst+n], srcTable.Elements[src:src+n])

	case wasm.COpTableInit:
		table := store.Tables[fn.Module.Tables[ins.Index2]]
		elem := store.Elements[fn.Module.Elems[ins.Index]]
		n := uint32(pop(&stack))
		src := uint32(pop(&stack))
		dst := uint32(pop(&stack))
		srcLen := uint32(0)
		if !elem.Dropped {
			srcLen = uint32(len(elem.Refs))
		}
		if uint64(src)+uint64(n) > uint64(srcLen) || uint64(dst)+uint64(n) > uint64(len(table.Elements)) {
			return nil, newErr(KindOutOfBoundsTable, "out of bounds table access")
		}
		for i := uint32(0); i < n; i++ {
			table.Elements[dst+i] = elem.Refs[src+i]
		}

	case wasm.COpElemDrop:
		elem := store.Elements[fn.Module.Elems[ins.Index]]
		elem.Dropped = true
		elem.Refs = nil
	}
	return stack, nil
}

func refToWord(r wasm.Reference) uint64 {
	if r.IsNull() {
		return 0
	}
	if r.Kind == wasm.RefFunc {
		return uint64(r.FuncAddr) + 1
	}
	return uint64(r.Extern)
}
