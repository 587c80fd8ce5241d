package binary

import (
	"github.com/jblebrun/wazir/internal/wasm"
)

// Section IDs, in the canonical order required by the core spec (with custom sections,
// id 0, permitted between any other pair, and DataCount, id 12, placed between Element
// and Code).
const (
	sectionCustom    = 0
	sectionType      = 1
	sectionImport    = 2
	sectionFunction  = 3
	sectionTable     = 4
	sectionMemory    = 5
	sectionGlobal    = 6
	sectionExport    = 7
	sectionStart     = 8
	sectionElement   = 9
	sectionCode      = 10
	sectionData      = 11
	sectionDataCount = 12
)

func decodeTypeSection(r *countingReader) ([]*wasm.FunctionType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.FunctionType, n)
	for i := range out {
		ft, err := decodeFunctionType(r)
		if err != nil {
			return nil, err
		}
		out[i] = ft
	}
	return out, nil
}

func decodeImportSection(r *countingReader) ([]*wasm.Import, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Import, n)
	for i := range out {
		mod, err := decodeName(r)
		if err != nil {
			return nil, err
		}
		name, err := decodeName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		imp := &wasm.Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case wasm.ExternTypeFunc:
			idx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			imp.DescFunc = wasm.NewTypeIndex(idx)
		case wasm.ExternTypeTable:
			tt, err := decodeTableType(r)
			if err != nil {
				return nil, err
			}
			imp.DescTable = tt
		case wasm.ExternTypeMemory:
			mt, err := decodeMemoryType(r)
			if err != nil {
				return nil, err
			}
			imp.DescMem = mt
		case wasm.ExternTypeGlobal:
			gt, err := decodeGlobalType(r)
			if err != nil {
				return nil, err
			}
			imp.DescGlobal = gt
		default:
			return nil, newErr(KindMalformedImportKind, "malformed import kind: %#x", kind)
		}
		out[i] = imp
	}
	return out, nil
}

func decodeFunctionSection(r *countingReader) ([]wasm.TypeIndex, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.TypeIndex, n)
	for i := range out {
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.NewTypeIndex(idx)
	}
	return out, nil
}

func decodeTableSection(r *countingReader) ([]*wasm.Table, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Table, n)
	for i := range out {
		tt, err := decodeTableType(r)
		if err != nil {
			return nil, err
		}
		out[i] = &wasm.Table{Type: tt}
	}
	return out, nil
}

func decodeMemorySection(r *countingReader) ([]*wasm.Memory, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Memory, n)
	for i := range out {
		mt, err := decodeMemoryType(r)
		if err != nil {
			return nil, err
		}
		out[i] = &wasm.Memory{Type: mt}
	}
	return out, nil
}

func decodeGlobalSection(r *countingReader) ([]*wasm.Global, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Global, n)
	for i := range out {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, err
		}
		init, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		out[i] = &wasm.Global{Type: gt, Init: init}
	}
	return out, nil
}

func decodeExportSection(r *countingReader) ([]*wasm.Export, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Export, n)
	for i := range out {
		name, err := decodeName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch kind {
		case wasm.ExternTypeFunc, wasm.ExternTypeTable, wasm.ExternTypeMemory, wasm.ExternTypeGlobal:
		default:
			return nil, newErr(KindInvalidExportType, "invalid export kind: %#x", kind)
		}
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		out[i] = &wasm.Export{Name: name, Kind: kind, Index: idx}
	}
	return out, nil
}

func decodeStartSection(r *countingReader) (*wasm.FuncIndex, error) {
	idx, err := r.readU32()
	if err != nil {
		return nil, err
	}
	fi := wasm.NewFuncIndex(idx)
	return &fi, nil
}

// decodeElementSection decodes the "element kind/flags" encoding described in the core spec's
// binary appendix: a 3-bit-ish variant selector made of bit0 (passive/declarative vs active),
// bit1 (active segments carry an explicit table index when set), and bit2 (init is an
// expression list rather than a function index list).
func decodeElementSection(r *countingReader) ([]*wasm.ElementSegment, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.ElementSegment, n)
	for i := range out {
		seg, err := decodeElementSegment(r)
		if err != nil {
			return nil, err
		}
		out[i] = seg
	}
	return out, nil
}

func decodeElementSegment(r *countingReader) (*wasm.ElementSegment, error) {
	flags, err := r.readU32()
	if err != nil {
		return nil, err
	}
	seg := &wasm.ElementSegment{Type: wasm.ValueTypeFuncref}

	active := flags&0x1 == 0
	hasExplicitTable := flags&0x2 != 0
	exprInit := flags&0x4 != 0

	if active {
		seg.Mode = wasm.ElemModeActive
		if hasExplicitTable {
			tidx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			seg.Table = wasm.NewTableIndex(tidx)
		} else {
			seg.Table = wasm.NewTableIndex(0)
		}
		off, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		seg.Offset = off
	} else if hasExplicitTable {
		seg.Mode = wasm.ElemModeDeclarative
	} else {
		seg.Mode = wasm.ElemModePassive
	}

	// For flags with bit0 set (passive/declarative) or bit1 set (active+explicit table), a
	// one-byte elemkind (must be 0, meaning funcref) or a reftype byte follows, selected by
	// whether bit2 (expression-list init) is also set.
	if !active || hasExplicitTable {
		if exprInit {
			rt, err := decodeRefType(r)
			if err != nil {
				return nil, err
			}
			seg.Type = rt
		} else {
			kind, err := r.readByte()
			if err != nil {
				return nil, err
			}
			if kind != 0 {
				return nil, newErr(KindInvalidElemKind, "invalid elemkind: %#x", kind)
			}
			seg.Type = wasm.ValueTypeFuncref
		}
	}

	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	seg.Init = make([]wasm.Expr, count)
	for i := range seg.Init {
		if exprInit {
			e, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}
			seg.Init[i] = e
		} else {
			idx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			seg.Init[i] = wasm.Expr{Instrs: []wasm.Instruction{
				wasm.InsRefFunc{OpHeader: wasm.Op(wasm.OpRefFunc), Func: wasm.NewFuncIndex(idx)},
				wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)},
			}}
		}
	}
	return seg, nil
}

func decodeDataSection(r *countingReader) ([]*wasm.DataSegment, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.DataSegment, n)
	for i := range out {
		seg, err := decodeDataSegment(r)
		if err != nil {
			return nil, err
		}
		out[i] = seg
	}
	return out, nil
}

func decodeDataSegment(r *countingReader) (*wasm.DataSegment, error) {
	flags, err := r.readU32()
	if err != nil {
		return nil, err
	}
	seg := &wasm.DataSegment{}
	switch flags {
	case 0:
		seg.Mode = wasm.DataModeActive
		seg.Memory = wasm.NewMemIndex(0)
		off, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		seg.Offset = off
	case 1:
		seg.Mode = wasm.DataModePassive
	case 2:
		seg.Mode = wasm.DataModeActive
		midx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		seg.Memory = wasm.NewMemIndex(midx)
		off, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		seg.Offset = off
	default:
		return nil, newErr(KindInvalidOpcode, "invalid data segment flags: %d", flags)
	}
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	b, err := r.readBytes(n)
	if err != nil {
		return nil, err
	}
	seg.Init = b
	return seg, nil
}

func decodeDataCountSection(r *countingReader) (*uint32, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func decodeCodeSection(r *countingReader) ([]*wasm.Code, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*wasm.Code, n)
	for i := range out {
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.sectionReader(size)
		if err != nil {
			return nil, err
		}
		code, err := decodeCode(body)
		if err != nil {
			return nil, err
		}
		out[i] = code
		if rem := body.remaining(); rem > 0 {
			return nil, newErr(KindExtraSectionBytes, "code entry %d has %d unread bytes", i, rem)
		}
	}
	return out, nil
}

func decodeCode(r *countingReader) (*wasm.Code, error) {
	numLocalGroups, err := r.readU32()
	if err != nil {
		return nil, err
	}
	var locals []wasm.ValueType
	var total uint64
	for i := uint32(0); i < numLocalGroups; i++ {
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		total += uint64(count)
		if total > 0x100000000 {
			return nil, newErr(KindTooManyLocals, "too many locals: %d", total)
		}
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, vt)
		}
	}
	body, err := decodeExpr(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Code{LocalTypes: locals, Body: body}, nil
}

func decodeNameSection(r *countingReader) (*wasm.NameSection, error) {
	ns := &wasm.NameSection{
		FunctionNames: map[uint32]string{},
		LocalNames:    map[uint32]map[uint32]string{},
	}
	for {
		id, err := r.readByte()
		if err != nil {
			if rem := r.remaining(); rem == 0 {
				return ns, nil
			}
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sub, err := r.sectionReader(size)
		if err != nil {
			return nil, err
		}
		switch id {
		case 0: // module name
			name, err := decodeName(sub)
			if err != nil {
				return nil, err
			}
			ns.ModuleName = name
		case 1: // function names
			n, err := sub.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				idx, err := sub.readU32()
				if err != nil {
					return nil, err
				}
				name, err := decodeName(sub)
				if err != nil {
					return nil, err
				}
				ns.FunctionNames[idx] = name
			}
		case 2: // local names
			n, err := sub.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				funcIdx, err := sub.readU32()
				if err != nil {
					return nil, err
				}
				count, err := sub.readU32()
				if err != nil {
					return nil, err
				}
				m := map[uint32]string{}
				for j := uint32(0); j < count; j++ {
					localIdx, err := sub.readU32()
					if err != nil {
						return nil, err
					}
					name, err := decodeName(sub)
					if err != nil {
						return nil, err
					}
					m[localIdx] = name
				}
				ns.LocalNames[funcIdx] = m
			}
		}
		if r.remaining() == 0 {
			return ns, nil
		}
	}
}
