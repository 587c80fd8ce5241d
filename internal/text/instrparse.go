package text

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

const (
	KindUnknownOperator Kind = "unknown operator"
	KindMismatchedParen Kind = "mismatched parenthesis"
)

// funcCtx tracks the function-local naming scopes (locals, labels) while an instruction
// sequence is being parsed; module-scope lookups go through mb.
type funcCtx struct {
	mb         *moduleBuilder
	localNames map[string]uint32
	numLocals  uint32
	labels     []string // stack; last element is the innermost enclosing label

	// codeIdx and bodyItems are set by addFuncDef for a real function definition and left
	// zero for the throwaway funcCtx values used to parse constant expressions (global
	// inits, elem/data offsets), which never reach the deferred body-parsing pass.
	codeIdx   int
	bodyItems []Item
}

func (fc *funcCtx) pushLabel(name string) { fc.labels = append(fc.labels, name) }
func (fc *funcCtx) popLabel()             { fc.labels = fc.labels[:len(fc.labels)-1] }

func (fc *funcCtx) resolveLocal(tok Token) (wasm.LocalIndex, *werr.Error) {
	if tok.Kind == TokID {
		n, ok := fc.localNames[tok.Text]
		if !ok {
			return wasm.LocalIndex{}, newErr(KindUnknownOperator, "unknown local %s", tok.Text)
		}
		return wasm.NewLocalIndex(n), nil
	}
	n, err := parseIntLiteral(tok.Text)
	if err != nil {
		return wasm.LocalIndex{}, err
	}
	return wasm.NewLocalIndex(uint32(n)), nil
}

func (fc *funcCtx) resolveLabel(tok Token) (wasm.LabelIndex, *werr.Error) {
	if tok.Kind == TokID {
		for depth, i := 0, len(fc.labels)-1; i >= 0; i, depth = i-1, depth+1 {
			if fc.labels[i] == tok.Text {
				return wasm.NewLabelIndex(uint32(depth)), nil
			}
		}
		return wasm.LabelIndex{}, newErr(KindUnknownOperator, "unknown label %s", tok.Text)
	}
	n, err := parseIntLiteral(tok.Text)
	if err != nil {
		return wasm.LabelIndex{}, err
	}
	return wasm.NewLabelIndex(uint32(n)), nil
}

// parseInstrSeq parses a mixed folded/flat instruction sequence, expanding every folded
// sub-expression in place so the result is the flat []wasm.Instruction the compiler expects.
func parseInstrSeq(fc *funcCtx, items []Item) ([]wasm.Instruction, *werr.Error) {
	var out []wasm.Instruction
	i := 0
	for i < len(items) {
		it := items[i]
		if it.IsList() {
			ins, err := parseFoldedInstr(fc, it.List)
			if err != nil {
				return nil, err
			}
			out = append(out, ins...)
			i++
			continue
		}
		ins, next, err := parseFlatOne(fc, items, i)
		if err != nil {
			return nil, err
		}
		out = append(out, ins...)
		i = next
	}
	return out, nil
}

// parseFoldedInstr expands one fully-parenthesized instruction, recursively flattening any
// nested folded operands before the operator itself.
func parseFoldedInstr(fc *funcCtx, n *Node) ([]wasm.Instruction, *werr.Error) {
	head := n.head()
	switch head {
	case "block", "loop", "if":
		return parseFoldedBlock(fc, n, head)
	}
	var out []wasm.Instruction
	i := 1
	// Leading atom immediates (indices, constants, memargs) come before any folded operands.
	ins, i, err := parseBareOp(fc, n.Items, 0, true)
	if err != nil {
		return nil, err
	}
	// Folded operands: every remaining List item, evaluated left to right.
	for ; i < len(n.Items); i++ {
		if !n.Items[i].IsList() {
			return nil, newErr(KindUnexpectedToken, "expected folded operand in %s", head)
		}
		operand, err := parseFoldedInstr(fc, n.Items[i].List)
		if err != nil {
			return nil, err
		}
		out = append(out, operand...)
	}
	out = append(out, ins...)
	return out, nil
}

// parseBareOp parses the operator at items[0] plus any bare (non-list) immediates that follow
// it, returning the built instruction(s) and the index of the first unconsumed item.
// allowFolded is not consulted; parsing is delegated to parseFlatOne either way.
func parseBareOp(fc *funcCtx, items []Item, i int, allowFolded bool) ([]wasm.Instruction, int, *werr.Error) {
	return parseFlatOne(fc, items, i)
}

func parseFoldedBlock(fc *funcCtx, n *Node, kind string) ([]wasm.Instruction, *werr.Error) {
	i := 1
	label := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		label = n.Items[i].Atom.Text
		i++
	}
	bt, i, err := parseBlockTypeItems(fc.mb, n.Items, i)
	if err != nil {
		return nil, err
	}
	fc.pushLabel(label)
	defer fc.popLabel()

	if kind == "if" {
		// Remaining non-then/else lists are folded condition operands.
		var cond []wasm.Instruction
		for i < len(n.Items) {
			sub := n.Items[i].List
			if sub == nil || (sub.head() == "then" || sub.head() == "else") {
				break
			}
			c, err := parseFoldedInstr(fc, sub)
			if err != nil {
				return nil, err
			}
			cond = append(cond, c...)
			i++
		}
		var thenIns, elseIns []wasm.Instruction
		var haveElse bool
		if i < len(n.Items) && n.Items[i].List != nil && n.Items[i].List.head() == "then" {
			thenIns, err = parseInstrSeq(fc, n.Items[i].List.Items[1:])
			if err != nil {
				return nil, err
			}
			i++
		}
		if i < len(n.Items) && n.Items[i].List != nil && n.Items[i].List.head() == "else" {
			haveElse = true
			elseIns, err = parseInstrSeq(fc, n.Items[i].List.Items[1:])
			if err != nil {
				return nil, err
			}
			i++
		}
		out := append([]wasm.Instruction{}, cond...)
		out = append(out, wasm.InsIf{OpHeader: wasm.Op(wasm.OpIf), BlockType: bt})
		out = append(out, thenIns...)
		if haveElse {
			out = append(out, wasm.InsElse{OpHeader: wasm.Op(wasm.OpElse)})
			out = append(out, elseIns...)
		}
		out = append(out, wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)})
		return out, nil
	}

	body, err := parseInstrSeq(fc, n.Items[i:])
	if err != nil {
		return nil, err
	}
	op := wasm.OpBlock
	if kind == "loop" {
		op = wasm.OpLoop
	}
	var out []wasm.Instruction
	if kind == "loop" {
		out = append(out, wasm.InsLoop{OpHeader: wasm.Op(op), BlockType: bt})
	} else {
		out = append(out, wasm.InsBlock{OpHeader: wasm.Op(op), BlockType: bt})
	}
	out = append(out, body...)
	out = append(out, wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)})
	return out, nil
}

// parseFlatOne parses a single instruction starting at a keyword atom in flat position,
// recursively consuming a matching end/else for block/loop/if.
func parseFlatOne(fc *funcCtx, items []Item, i int) ([]wasm.Instruction, int, *werr.Error) {
	tok := items[i].Atom
	if tok.Kind != TokKeyword {
		return nil, 0, newErr(KindUnexpectedToken, "expected instruction, found %q", tok.Text)
	}
	name := tok.Text

	switch name {
	case "block", "loop", "if":
		return parseFlatBlock(fc, items, i, name)
	case "unreachable":
		return []wasm.Instruction{wasm.InsUnreachable{OpHeader: wasm.Op(wasm.OpUnreachable)}}, i + 1, nil
	case "nop":
		return []wasm.Instruction{wasm.InsNop{OpHeader: wasm.Op(wasm.OpNop)}}, i + 1, nil
	case "return":
		return []wasm.Instruction{wasm.InsReturn{OpHeader: wasm.Op(wasm.OpReturn)}}, i + 1, nil
	case "drop":
		return []wasm.Instruction{wasm.InsDrop{OpHeader: wasm.Op(wasm.OpDrop)}}, i + 1, nil
	case "select":
		j := i + 1
		if j < len(items) && items[j].IsList() && items[j].List.head() == "result" {
			types, err := parseValTypeList(items[j].List.Items[1:])
			if err != nil {
				return nil, 0, err
			}
			return []wasm.Instruction{wasm.InsSelectTyped{OpHeader: wasm.Op(wasm.OpSelectT), Types: types}}, j + 1, nil
		}
		return []wasm.Instruction{wasm.InsSelect{OpHeader: wasm.Op(wasm.OpSelect)}}, i + 1, nil
	case "br", "br_if":
		label, err := fc.resolveLabel(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		op := wasm.OpBr
		if name == "br_if" {
			op = wasm.OpBrIf
		}
		if name == "br_if" {
			return []wasm.Instruction{wasm.InsBrIf{OpHeader: wasm.Op(op), Label: label}}, i + 2, nil
		}
		return []wasm.Instruction{wasm.InsBr{OpHeader: wasm.Op(op), Label: label}}, i + 2, nil
	case "br_table":
		j := i + 1
		var labels []wasm.LabelIndex
		for j < len(items) && !items[j].IsList() && items[j].Atom.Kind != TokKeyword {
			l, err := fc.resolveLabel(items[j].Atom)
			if err != nil {
				return nil, 0, err
			}
			labels = append(labels, l)
			j++
		}
		// also accept trailing numeric/id atoms even when lexed as keyword-shaped IDs
		for j < len(items) && !items[j].IsList() {
			tk := items[j].Atom
			if tk.Kind != TokID && !isNumericAtom(tk.Text) {
				break
			}
			l, err := fc.resolveLabel(tk)
			if err != nil {
				return nil, 0, err
			}
			labels = append(labels, l)
			j++
		}
		if len(labels) == 0 {
			return nil, 0, newErr(KindUnknownOperator, "br_table requires at least one label")
		}
		def := labels[len(labels)-1]
		rest := labels[:len(labels)-1]
		return []wasm.Instruction{wasm.InsBrTable{OpHeader: wasm.Op(wasm.OpBrTable), Labels: rest, Default: def}}, j, nil
	case "call":
		idx, err := fc.mb.resolveFunc(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsCall{OpHeader: wasm.Op(wasm.OpCall), Func: idx}}, i + 2, nil
	case "call_indirect":
		return parseCallIndirectFlat(fc, items, i)
	case "local.get", "local.set", "local.tee":
		idx, err := fc.resolveLocal(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		switch name {
		case "local.get":
			return []wasm.Instruction{wasm.InsLocalGet{OpHeader: wasm.Op(wasm.OpLocalGet), Local: idx}}, i + 2, nil
		case "local.set":
			return []wasm.Instruction{wasm.InsLocalSet{OpHeader: wasm.Op(wasm.OpLocalSet), Local: idx}}, i + 2, nil
		default:
			return []wasm.Instruction{wasm.InsLocalTee{OpHeader: wasm.Op(wasm.OpLocalTee), Local: idx}}, i + 2, nil
		}
	case "global.get", "global.set":
		idx, err := fc.mb.resolveGlobal(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		if name == "global.get" {
			return []wasm.Instruction{wasm.InsGlobalGet{OpHeader: wasm.Op(wasm.OpGlobalGet), Global: idx}}, i + 2, nil
		}
		return []wasm.Instruction{wasm.InsGlobalSet{OpHeader: wasm.Op(wasm.OpGlobalSet), Global: idx}}, i + 2, nil
	case "table.get", "table.set", "table.size", "table.grow", "table.fill":
		idx, next, err := resolveOptIndex1(items, i+1, fc.mb.resolveTable, wasm.NewTableIndex(0))
		if err != nil {
			return nil, 0, err
		}
		var ins wasm.Instruction
		switch name {
		case "table.get":
			ins = wasm.InsTableGet{OpHeader: wasm.Op(wasm.OpTableGet), Table: idx}
		case "table.set":
			ins = wasm.InsTableSet{OpHeader: wasm.Op(wasm.OpTableSet), Table: idx}
		case "table.size":
			ins = wasm.InsTableSize{OpHeader: wasm.Op(wasm.OpTableSize), Table: idx}
		case "table.grow":
			ins = wasm.InsTableGrow{OpHeader: wasm.Op(wasm.OpTableGrow), Table: idx}
		default:
			ins = wasm.InsTableFill{OpHeader: wasm.Op(wasm.OpTableFill), Table: idx}
		}
		return []wasm.Instruction{ins}, next, nil
	case "table.copy":
		dst, next, err := resolveOptIndex1(items, i+1, fc.mb.resolveTable, wasm.NewTableIndex(0))
		if err != nil {
			return nil, 0, err
		}
		src, next2, err := resolveOptIndex1(items, next, fc.mb.resolveTable, wasm.NewTableIndex(0))
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsTableCopy{OpHeader: wasm.Op(wasm.OpTableCopy), Dst: dst, Src: src}}, next2, nil
	case "table.init":
		elem, err := fc.mb.resolveElem(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsTableInit{OpHeader: wasm.Op(wasm.OpTableInit), Elem: elem, Table: wasm.NewTableIndex(0)}}, i + 2, nil
	case "elem.drop":
		elem, err := fc.mb.resolveElem(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsElemDrop{OpHeader: wasm.Op(wasm.OpElemDrop), Elem: elem}}, i + 2, nil
	case "memory.size":
		return []wasm.Instruction{wasm.InsMemorySize{OpHeader: wasm.Op(wasm.OpMemorySize)}}, i + 1, nil
	case "memory.grow":
		return []wasm.Instruction{wasm.InsMemoryGrow{OpHeader: wasm.Op(wasm.OpMemoryGrow)}}, i + 1, nil
	case "memory.copy":
		return []wasm.Instruction{wasm.InsMemoryCopy{OpHeader: wasm.Op(wasm.OpMemoryCopy)}}, i + 1, nil
	case "memory.fill":
		return []wasm.Instruction{wasm.InsMemoryFill{OpHeader: wasm.Op(wasm.OpMemoryFill)}}, i + 1, nil
	case "memory.init":
		data, err := fc.mb.resolveData(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsMemoryInit{OpHeader: wasm.Op(wasm.OpMemoryInit), Data: data}}, i + 2, nil
	case "data.drop":
		data, err := fc.mb.resolveData(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsDataDrop{OpHeader: wasm.Op(wasm.OpDataDrop), Data: data}}, i + 2, nil
	case "i32.const":
		v, err := parseIntLiteral(items[i+1].Atom.Text)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsI32Const{OpHeader: wasm.Op(wasm.OpI32Const), Value: int32(v)}}, i + 2, nil
	case "i64.const":
		v, err := parseIntLiteral(items[i+1].Atom.Text)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsI64Const{OpHeader: wasm.Op(wasm.OpI64Const), Value: int64(v)}}, i + 2, nil
	case "f32.const":
		v, err := parseFloatLiteral(items[i+1].Atom.Text)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsF32Const{OpHeader: wasm.Op(wasm.OpF32Const), Value: float32(v)}}, i + 2, nil
	case "f64.const":
		v, err := parseFloatLiteral(items[i+1].Atom.Text)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsF64Const{OpHeader: wasm.Op(wasm.OpF64Const), Value: v}}, i + 2, nil
	case "ref.null":
		rt, ok := valTypeName(items[i+1].Atom.Text)
		if !ok {
			return nil, 0, newErr(KindUnknownOperator, "bad ref.null type %s", items[i+1].Atom.Text)
		}
		return []wasm.Instruction{wasm.InsRefNull{OpHeader: wasm.Op(wasm.OpRefNull), Type: rt}}, i + 2, nil
	case "ref.is_null":
		return []wasm.Instruction{wasm.InsRefIsNull{OpHeader: wasm.Op(wasm.OpRefIsNull)}}, i + 1, nil
	case "ref.func":
		fn, err := fc.mb.resolveFunc(items[i+1].Atom)
		if err != nil {
			return nil, 0, err
		}
		return []wasm.Instruction{wasm.InsRefFunc{OpHeader: wasm.Op(wasm.OpRefFunc), Func: fn}}, i + 2, nil
	}

	if op, ok := numericOps[name]; ok {
		return []wasm.Instruction{wasm.NewNumeric(op)}, i + 1, nil
	}
	if op, ok := loadStoreOps[name]; ok {
		ma, next := parseMemArg(items, i+1, naturalAlign(op))
		var ins wasm.Instruction
		if isStoreName(name) {
			ins = wasm.InsStore{OpHeader: wasm.Op(op), MemArg: ma}
		} else {
			ins = wasm.InsLoad{OpHeader: wasm.Op(op), MemArg: ma}
		}
		return []wasm.Instruction{ins}, next, nil
	}
	return nil, 0, newErr(KindUnknownOperator, "unknown operator %s", name)
}

func isStoreName(name string) bool {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return len(name[i+1:]) >= 5 && name[i+1:i+6] == "store"
		}
	}
	return false
}

func isNumericAtom(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}
	return i < len(s) && s[i] >= '0' && s[i] <= '9'
}

// parseMemArg consumes optional "align=N" / "offset=N" keyword-form immediates.
func parseMemArg(items []Item, i int, naturalAlign uint32) (wasm.MemArg, int) {
	ma := wasm.MemArg{Align: naturalAlign}
	for i < len(items) && !items[i].IsList() && items[i].Atom.Kind == TokKeyword {
		t := items[i].Atom.Text
		if len(t) > 7 && t[:7] == "offset=" {
			v, err := parseIntLiteral(t[7:])
			if err == nil {
				ma.Offset = uint32(v)
			}
			i++
			continue
		}
		if len(t) > 6 && t[:6] == "align=" {
			v, err := parseIntLiteral(t[6:])
			if err == nil {
				// the text format stores the literal alignment; we keep log2 form internally.
				a := uint32(v)
				log2 := uint32(0)
				for a > 1 {
					a >>= 1
					log2++
				}
				ma.Align = log2
			}
			i++
			continue
		}
		break
	}
	return ma, i
}

func parseCallIndirectFlat(fc *funcCtx, items []Item, i int) ([]wasm.Instruction, int, *werr.Error) {
	j := i + 1
	table := wasm.NewTableIndex(0)
	if j < len(items) && !items[j].IsList() && (items[j].Atom.Kind == TokID || isNumericAtom(items[j].Atom.Text)) {
		t, err := fc.mb.resolveTable(items[j].Atom)
		if err != nil {
			return nil, 0, err
		}
		table = t
		j++
	}
	typeIdx, j, err := parseTypeUseItems(fc.mb, items, j)
	if err != nil {
		return nil, 0, err
	}
	return []wasm.Instruction{wasm.InsCallIndirect{OpHeader: wasm.Op(wasm.OpCallIndirect), Type: typeIdx, Table: table}}, j, nil
}

// parseFlatBlock handles block/loop/if written with explicit end (and, for if, else) markers
// in flat position, recursively parsing the nested body between matching markers.
func parseFlatBlock(fc *funcCtx, items []Item, i int, kind string) ([]wasm.Instruction, int, *werr.Error) {
	j := i + 1
	label := ""
	if j < len(items) && !items[j].IsList() && items[j].Atom.Kind == TokID {
		label = items[j].Atom.Text
		j++
	}
	bt, j, err := parseBlockTypeItems(fc.mb, items, j)
	if err != nil {
		return nil, 0, err
	}
	fc.pushLabel(label)
	defer fc.popLabel()

	bodyStart := j
	elseAt := -1
	end := -1
	depth := 0
	for k := bodyStart; k < len(items); k++ {
		if items[k].IsList() {
			continue
		}
		switch items[k].Atom.Text {
		case "block", "loop", "if":
			depth++
		case "end":
			if depth == 0 {
				end = k
			} else {
				depth--
			}
		case "else":
			if depth == 0 && kind == "if" && elseAt < 0 {
				elseAt = k
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, 0, newErr(KindMismatchedParen, "missing end for %s", kind)
	}

	var out []wasm.Instruction
	op := wasm.OpBlock
	switch kind {
	case "loop":
		op = wasm.OpLoop
	case "if":
		op = wasm.OpIf
	}
	if kind == "if" {
		out = append(out, wasm.InsIf{OpHeader: wasm.Op(op), BlockType: bt})
		thenEnd := end
		if elseAt >= 0 {
			thenEnd = elseAt
		}
		thenBody, err := parseInstrSeq(fc, items[bodyStart:thenEnd])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, thenBody...)
		if elseAt >= 0 {
			out = append(out, wasm.InsElse{OpHeader: wasm.Op(wasm.OpElse)})
			elseBody, err := parseInstrSeq(fc, items[elseAt+1:end])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, elseBody...)
		}
	} else {
		if kind == "loop" {
			out = append(out, wasm.InsLoop{OpHeader: wasm.Op(op), BlockType: bt})
		} else {
			out = append(out, wasm.InsBlock{OpHeader: wasm.Op(op), BlockType: bt})
		}
		body, err := parseInstrSeq(fc, items[bodyStart:end])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, body...)
	}
	out = append(out, wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)})
	return out, end + 1, nil
}
