package text

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// moduleBuilder accumulates a wasm.Module while walking the module's top-level forms. Every
// index space (func/table/mem/global/type/elem/data) is resolved eagerly here: WAT's
// imports-come-first numbering rule means every import of a kind is counted before any
// locally-defined item of that kind, so indices are assigned in two passes over the same
// item list rather than a deferred name-resolution pass.
type moduleBuilder struct {
	mod *wasm.Module

	typeNames   map[string]uint32
	funcNames   map[string]uint32
	tableNames  map[string]uint32
	memNames    map[string]uint32
	globalNames map[string]uint32
	elemNames   map[string]uint32
	dataNames   map[string]uint32

	funcN, tableN, memN, globalN uint32
}

// ParseScript splits a .wast conformance script into its top-level forms (module definitions
// and assert_*/register/invoke commands), for internal/spectest to interpret one at a time.
func ParseScript(src []byte) ([]*Node, *werr.Error) {
	return parseAll(src)
}

// Head exposes a top-level form's leading keyword to callers outside this package (the
// spectest driver switches on it to dispatch each script command).
func Head(n *Node) string { return n.head() }

// ParseModule lexes and parses a single (module ...) form into a *wasm.Module with every
// index space fully resolved (symbolic names looked up, no deferred resolution step).
func ParseModule(src []byte) (*wasm.Module, *werr.Error) {
	nodes, err := parseAll(src)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 || nodes[0].head() != "module" {
		return nil, newErr(KindUnexpectedToken, "expected a single (module ...) form")
	}
	mod, err := ParseModuleNode(nodes[0])
	if err != nil {
		return nil, err
	}
	mod.ID = contentID(src)
	return mod, nil
}

// ParseModuleNode builds a *wasm.Module from a single already-parsed (module ...) form, as
// found embedded in a .wast script alongside assert_*/register commands. The returned
// module's ID is left zero, since a script-embedded module has no standalone source slice
// of its own to hash.
func ParseModuleNode(n *Node) (*wasm.Module, *werr.Error) {
	items := n.Items[1:]
	if len(items) > 0 && !items[0].IsList() && items[0].Atom.Kind == TokID {
		items = items[1:]
	}

	mb := &moduleBuilder{
		mod:         &wasm.Module{},
		typeNames:   map[string]uint32{},
		funcNames:   map[string]uint32{},
		tableNames:  map[string]uint32{},
		memNames:    map[string]uint32{},
		globalNames: map[string]uint32{},
		elemNames:   map[string]uint32{},
		dataNames:   map[string]uint32{},
	}

	for _, it := range items {
		if it.IsList() && it.List.head() == "type" {
			if err := mb.addType(it.List); err != nil {
				return nil, err
			}
		}
	}

	for _, it := range items {
		if !it.IsList() {
			continue
		}
		n := it.List
		switch n.head() {
		case "import":
			if err := mb.addTopImport(n); err != nil {
				return nil, err
			}
		case "func", "table", "memory", "global":
			if imp := findInline(n, "import"); imp != nil {
				if err := mb.addInlineImport(n, imp); err != nil {
					return nil, err
				}
			}
		}
	}

	var funcCtxs []*funcCtx
	for _, it := range items {
		if !it.IsList() {
			continue
		}
		n := it.List
		switch n.head() {
		case "func":
			if findInline(n, "import") != nil {
				continue
			}
			fc, err := mb.addFuncDef(n)
			if err != nil {
				return nil, err
			}
			funcCtxs = append(funcCtxs, fc)
		case "table":
			if findInline(n, "import") != nil {
				continue
			}
			if err := mb.addTableDef(n); err != nil {
				return nil, err
			}
		case "memory":
			if findInline(n, "import") != nil {
				continue
			}
			if err := mb.addMemoryDef(n); err != nil {
				return nil, err
			}
		case "global":
			if findInline(n, "import") != nil {
				continue
			}
			if err := mb.addGlobalDef(n); err != nil {
				return nil, err
			}
		}
	}

	for _, fc := range funcCtxs {
		ins, err := parseInstrSeq(fc, fc.bodyItems)
		if err != nil {
			return nil, err
		}
		ins = append(ins, wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)})
		mb.mod.CodeSection[fc.codeIdx].Body = wasm.Expr{Instrs: ins}
	}

	for _, it := range items {
		if !it.IsList() {
			continue
		}
		n := it.List
		switch n.head() {
		case "export":
			if err := mb.addTopExport(n); err != nil {
				return nil, err
			}
		case "start":
			idx, err := mb.resolveFunc(n.Items[1].Atom)
			if err != nil {
				return nil, err
			}
			mb.mod.StartSection = &idx
		}
	}

	for _, it := range items {
		if !it.IsList() {
			continue
		}
		n := it.List
		switch n.head() {
		case "elem":
			if err := mb.addElem(n); err != nil {
				return nil, err
			}
		case "data":
			if err := mb.addData(n); err != nil {
				return nil, err
			}
		}
	}

	return mb.mod, nil
}

func contentID(src []byte) wasm.ModuleID {
	var id wasm.ModuleID
	h := uint64(14695981039346656037)
	for i, b := range src {
		h = (h ^ uint64(b)) * 1099511628211
		id[i%len(id)] ^= byte(h)
	}
	return id
}

func findInline(n *Node, head string) *Node {
	for _, it := range n.Items {
		if it.IsList() && it.List.head() == head {
			return it.List
		}
	}
	return nil
}

func collectInlineExports(items []Item, i int) ([]string, int) {
	var names []string
	for i < len(items) && items[i].IsList() && items[i].List.head() == "export" {
		names = append(names, string(items[i].List.Items[1].Atom.Raw))
		i++
	}
	return names, i
}

func constExprWithEnd(ins []wasm.Instruction) wasm.Expr {
	return wasm.Expr{Instrs: append(ins, wasm.InsEnd{OpHeader: wasm.Op(wasm.OpEnd)})}
}

// resolveNamedIndex looks up tok (a symbolic $name or a bare numeral) against names, building
// the result with mk. Every index produced by this package is fully resolved at parse time.
func resolveNamedIndex[T any](names map[string]uint32, tok Token, mk func(uint32) T, space string) (T, *werr.Error) {
	var zero T
	if tok.Kind == TokID {
		n, ok := names[tok.Text]
		if !ok {
			return zero, newErr(KindUnknownOperator, "unknown %s %s", space, tok.Text)
		}
		return mk(n), nil
	}
	n, err := parseIntLiteral(tok.Text)
	if err != nil {
		return zero, err
	}
	return mk(uint32(n)), nil
}

func (mb *moduleBuilder) resolveType(tok Token) (wasm.TypeIndex, *werr.Error) {
	return resolveNamedIndex(mb.typeNames, tok, wasm.NewTypeIndex, "type")
}
func (mb *moduleBuilder) resolveFunc(tok Token) (wasm.FuncIndex, *werr.Error) {
	return resolveNamedIndex(mb.funcNames, tok, wasm.NewFuncIndex, "function")
}
func (mb *moduleBuilder) resolveTable(tok Token) (wasm.TableIndex, *werr.Error) {
	return resolveNamedIndex(mb.tableNames, tok, wasm.NewTableIndex, "table")
}
func (mb *moduleBuilder) resolveMem(tok Token) (wasm.MemIndex, *werr.Error) {
	return resolveNamedIndex(mb.memNames, tok, wasm.NewMemIndex, "memory")
}
func (mb *moduleBuilder) resolveGlobal(tok Token) (wasm.GlobalIndex, *werr.Error) {
	return resolveNamedIndex(mb.globalNames, tok, wasm.NewGlobalIndex, "global")
}
func (mb *moduleBuilder) resolveElem(tok Token) (wasm.ElemIndex, *werr.Error) {
	return resolveNamedIndex(mb.elemNames, tok, wasm.NewElemIndex, "elem")
}
func (mb *moduleBuilder) resolveData(tok Token) (wasm.DataIndex, *werr.Error) {
	return resolveNamedIndex(mb.dataNames, tok, wasm.NewDataIndex, "data")
}

// resolveOptIndex1 parses a single optional leading index immediate (used by the table.*
// instructions, which default to table 0 when no explicit table operand is written). A
// method can't carry its own type parameter independent of the receiver, so this has to be
// a free function; resolveFn is bound to the right per-space resolver at each call site.
func resolveOptIndex1[T any](items []Item, i int, resolveFn func(Token) (T, *werr.Error), def T) (T, int, *werr.Error) {
	if i < len(items) && !items[i].IsList() && (items[i].Atom.Kind == TokID || isNumericAtom(items[i].Atom.Text)) {
		v, err := resolveFn(items[i].Atom)
		if err != nil {
			return def, 0, err
		}
		return v, i + 1, nil
	}
	return def, i, nil
}

func (mb *moduleBuilder) internType(params, results []wasm.ValueType) wasm.TypeIndex {
	idx := uint32(len(mb.mod.TypeSection))
	mb.mod.TypeSection = append(mb.mod.TypeSection, &wasm.FunctionType{Params: params, Results: results})
	return wasm.NewTypeIndex(idx)
}

func parseValTypeList(items []Item) ([]wasm.ValueType, *werr.Error) {
	var out []wasm.ValueType
	for _, it := range items {
		if it.IsList() {
			return nil, newErr(KindUnexpectedToken, "expected a value type")
		}
		if it.Atom.Kind == TokID {
			continue
		}
		t, ok := valTypeName(it.Atom.Text)
		if !ok {
			return nil, newErr(KindUnexpectedToken, "expected a value type, found %s", it.Atom.Text)
		}
		out = append(out, t)
	}
	return out, nil
}

func (mb *moduleBuilder) addType(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	if i >= len(n.Items) || !n.Items[i].IsList() {
		return newErr(KindUnexpectedToken, "malformed type definition")
	}
	fn := n.Items[i].List
	var params, results []wasm.ValueType
	for _, it := range fn.Items[1:] {
		if !it.IsList() {
			continue
		}
		switch it.List.head() {
		case "param":
			ps, err := parseValTypeList(it.List.Items[1:])
			if err != nil {
				return err
			}
			params = append(params, ps...)
		case "result":
			rs, err := parseValTypeList(it.List.Items[1:])
			if err != nil {
				return err
			}
			results = append(results, rs...)
		}
	}
	idx := uint32(len(mb.mod.TypeSection))
	mb.mod.TypeSection = append(mb.mod.TypeSection, &wasm.FunctionType{Params: params, Results: results})
	if name != "" {
		mb.typeNames[name] = idx
	}
	return nil
}

// parseFuncTypeUse parses an optional (type $t) reference together with any inline (param)/
// (result) clauses, returning the resolved TypeIndex (synthesizing one if no (type) was
// given) plus the parameter names declared inline (used to build local bindings).
func parseFuncTypeUse(mb *moduleBuilder, items []Item, i int) (wasm.TypeIndex, int, []string, *werr.Error) {
	hasType := false
	var typeIdx wasm.TypeIndex
	var params, results []wasm.ValueType
	var names []string
	j := i
	for j < len(items) && items[j].IsList() {
		h := items[j].List.head()
		switch h {
		case "type":
			ti, err := mb.resolveType(items[j].List.Items[1].Atom)
			if err != nil {
				return wasm.TypeIndex{}, 0, nil, err
			}
			typeIdx, hasType = ti, true
			j++
		case "param":
			sub := items[j].List.Items[1:]
			if len(sub) >= 2 && !sub[0].IsList() && sub[0].Atom.Kind == TokID {
				t, ok := valTypeName(sub[1].Atom.Text)
				if !ok {
					return wasm.TypeIndex{}, 0, nil, newErr(KindUnexpectedToken, "expected value type")
				}
				params = append(params, t)
				names = append(names, sub[0].Atom.Text)
			} else {
				for _, s := range sub {
					t, ok := valTypeName(s.Atom.Text)
					if !ok {
						return wasm.TypeIndex{}, 0, nil, newErr(KindUnexpectedToken, "expected value type")
					}
					params = append(params, t)
					names = append(names, "")
				}
			}
			j++
		case "result":
			rs, err := parseValTypeList(items[j].List.Items[1:])
			if err != nil {
				return wasm.TypeIndex{}, 0, nil, err
			}
			results = append(results, rs...)
			j++
		default:
			goto done
		}
	}
done:
	if !hasType {
		typeIdx = mb.internType(params, results)
	}
	return typeIdx, j, names, nil
}

// parseBlockTypeItems parses the leading (type)/(param)/(result) clauses of a structured
// control instruction into a BlockType, using the empty/single-result abbreviations where
// possible and synthesizing a type only when params are present or results carry more than
// one value.
func parseBlockTypeItems(mb *moduleBuilder, items []Item, i int) (wasm.BlockType, int, *werr.Error) {
	hasType := false
	var typeIdx wasm.TypeIndex
	var params, results []wasm.ValueType
	j := i
	for j < len(items) && items[j].IsList() {
		h := items[j].List.head()
		switch h {
		case "type":
			ti, err := mb.resolveType(items[j].List.Items[1].Atom)
			if err != nil {
				return wasm.BlockType{}, 0, err
			}
			typeIdx, hasType = ti, true
			j++
		case "param":
			ps, err := parseValTypeList(items[j].List.Items[1:])
			if err != nil {
				return wasm.BlockType{}, 0, err
			}
			params = append(params, ps...)
			j++
		case "result":
			rs, err := parseValTypeList(items[j].List.Items[1:])
			if err != nil {
				return wasm.BlockType{}, 0, err
			}
			results = append(results, rs...)
			j++
		default:
			goto done
		}
	}
done:
	if hasType {
		return wasm.BlockType{HasType: true, Type: typeIdx}, j, nil
	}
	if len(params) == 0 && len(results) == 0 {
		return wasm.BlockType{Empty: true}, j, nil
	}
	if len(params) == 0 && len(results) == 1 {
		return wasm.BlockType{ValType: results[0]}, j, nil
	}
	return wasm.BlockType{HasType: true, Type: mb.internType(params, results)}, j, nil
}

// parseTypeUseItems is parseFuncTypeUse's sibling for call_indirect, which needs only the
// resolved TypeIndex and not the parameter names.
func parseTypeUseItems(mb *moduleBuilder, items []Item, i int) (wasm.TypeIndex, int, *werr.Error) {
	ti, j, _, err := parseFuncTypeUse(mb, items, i)
	return ti, j, err
}

func parseLimits(items []Item, i int) (wasm.Limits, int, *werr.Error) {
	min, err := parseIntLiteral(items[i].Atom.Text)
	if err != nil {
		return wasm.Limits{}, 0, err
	}
	j := i + 1
	var max *uint32
	if j < len(items) && !items[j].IsList() && isNumericAtom(items[j].Atom.Text) {
		m, err := parseIntLiteral(items[j].Atom.Text)
		if err != nil {
			return wasm.Limits{}, 0, err
		}
		mm := uint32(m)
		max = &mm
		j++
	}
	return wasm.Limits{Min: uint32(min), Max: max}, j, nil
}

func parseTableType(items []Item, i int) (wasm.TableType, int, *werr.Error) {
	lim, j, err := parseLimits(items, i)
	if err != nil {
		return wasm.TableType{}, 0, err
	}
	if j >= len(items) || items[j].IsList() {
		return wasm.TableType{}, 0, newErr(KindUnexpectedToken, "expected table reference type")
	}
	rt, ok := valTypeName(items[j].Atom.Text)
	if !ok {
		return wasm.TableType{}, 0, newErr(KindUnexpectedToken, "expected reference type, found %s", items[j].Atom.Text)
	}
	return wasm.TableType{Limits: lim, RefType: rt}, j + 1, nil
}

func parseMemoryType(items []Item, i int) (wasm.MemoryType, int, *werr.Error) {
	lim, j, err := parseLimits(items, i)
	if err != nil {
		return wasm.MemoryType{}, 0, err
	}
	return wasm.MemoryType{Limits: lim}, j, nil
}

func parseGlobalType(items []Item, i int) (wasm.GlobalType, int, *werr.Error) {
	if i < len(items) && items[i].IsList() && items[i].List.head() == "mut" {
		t, ok := valTypeName(items[i].List.Items[1].Atom.Text)
		if !ok {
			return wasm.GlobalType{}, 0, newErr(KindUnexpectedToken, "expected value type")
		}
		return wasm.GlobalType{ValType: t, Mutable: true}, i + 1, nil
	}
	if i >= len(items) || items[i].IsList() {
		return wasm.GlobalType{}, 0, newErr(KindUnexpectedToken, "expected global type")
	}
	t, ok := valTypeName(items[i].Atom.Text)
	if !ok {
		return wasm.GlobalType{}, 0, newErr(KindUnexpectedToken, "expected value type, found %s", items[i].Atom.Text)
	}
	return wasm.GlobalType{ValType: t}, i + 1, nil
}

func (mb *moduleBuilder) registerImport(kind, name, modName, fieldName string, items []Item, i int) *werr.Error {
	switch kind {
	case "func":
		typeIdx, _, _, err := parseFuncTypeUse(mb, items, i)
		if err != nil {
			return err
		}
		idx := mb.funcN
		mb.funcN++
		if name != "" {
			mb.funcNames[name] = idx
		}
		mb.mod.ImportSection = append(mb.mod.ImportSection, &wasm.Import{
			Module: modName, Name: fieldName, Kind: wasm.ExternTypeFunc, DescFunc: typeIdx,
		})
	case "table":
		tt, _, err := parseTableType(items, i)
		if err != nil {
			return err
		}
		idx := mb.tableN
		mb.tableN++
		if name != "" {
			mb.tableNames[name] = idx
		}
		mb.mod.ImportSection = append(mb.mod.ImportSection, &wasm.Import{
			Module: modName, Name: fieldName, Kind: wasm.ExternTypeTable, DescTable: tt,
		})
	case "memory":
		mt, _, err := parseMemoryType(items, i)
		if err != nil {
			return err
		}
		idx := mb.memN
		mb.memN++
		if name != "" {
			mb.memNames[name] = idx
		}
		mb.mod.ImportSection = append(mb.mod.ImportSection, &wasm.Import{
			Module: modName, Name: fieldName, Kind: wasm.ExternTypeMemory, DescMem: mt,
		})
	case "global":
		gt, _, err := parseGlobalType(items, i)
		if err != nil {
			return err
		}
		idx := mb.globalN
		mb.globalN++
		if name != "" {
			mb.globalNames[name] = idx
		}
		mb.mod.ImportSection = append(mb.mod.ImportSection, &wasm.Import{
			Module: modName, Name: fieldName, Kind: wasm.ExternTypeGlobal, DescGlobal: gt,
		})
	default:
		return newErr(KindUnexpectedToken, "unknown import descriptor %s", kind)
	}
	return nil
}

func (mb *moduleBuilder) addTopImport(n *Node) *werr.Error {
	modName := string(n.Items[1].Atom.Raw)
	fieldName := string(n.Items[2].Atom.Raw)
	desc := n.Items[3].List
	kind := desc.head()
	i := 1
	name := ""
	if i < len(desc.Items) && !desc.Items[i].IsList() && desc.Items[i].Atom.Kind == TokID {
		name = desc.Items[i].Atom.Text
		i++
	}
	return mb.registerImport(kind, name, modName, fieldName, desc.Items, i)
}

func (mb *moduleBuilder) addInlineImport(n *Node, importClause *Node) *werr.Error {
	kind := n.head()
	modName := string(importClause.Items[1].Atom.Raw)
	fieldName := string(importClause.Items[2].Atom.Raw)
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	for i < len(n.Items) && n.Items[i].IsList() && (n.Items[i].List.head() == "export" || n.Items[i].List == importClause) {
		i++
	}
	return mb.registerImport(kind, name, modName, fieldName, n.Items, i)
}

func (mb *moduleBuilder) addFuncDef(n *Node) (*funcCtx, *werr.Error) {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	var exportNames []string
	exportNames, i = collectInlineExports(n.Items, i)

	typeIdx, i, paramNames, err := parseFuncTypeUse(mb, n.Items, i)
	if err != nil {
		return nil, err
	}

	var localTypes []wasm.ValueType
	var localNames []string
	for i < len(n.Items) && n.Items[i].IsList() && n.Items[i].List.head() == "local" {
		sub := n.Items[i].List.Items[1:]
		if len(sub) >= 2 && !sub[0].IsList() && sub[0].Atom.Kind == TokID {
			t, ok := valTypeName(sub[1].Atom.Text)
			if !ok {
				return nil, newErr(KindUnexpectedToken, "expected value type")
			}
			localTypes = append(localTypes, t)
			localNames = append(localNames, sub[0].Atom.Text)
		} else {
			for _, s := range sub {
				t, ok := valTypeName(s.Atom.Text)
				if !ok {
					return nil, newErr(KindUnexpectedToken, "expected value type")
				}
				localTypes = append(localTypes, t)
				localNames = append(localNames, "")
			}
		}
		i++
	}

	idx := mb.funcN
	mb.funcN++
	if name != "" {
		mb.funcNames[name] = idx
	}
	mb.mod.FunctionSection = append(mb.mod.FunctionSection, typeIdx)
	codeIdx := len(mb.mod.CodeSection)
	mb.mod.CodeSection = append(mb.mod.CodeSection, &wasm.Code{LocalTypes: localTypes})
	for _, en := range exportNames {
		mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeFunc, Index: idx})
	}

	fc := &funcCtx{mb: mb, localNames: map[string]uint32{}, codeIdx: codeIdx, bodyItems: n.Items[i:]}
	for k, pn := range paramNames {
		if pn != "" {
			fc.localNames[pn] = uint32(k)
		}
	}
	base := uint32(len(paramNames))
	for k, ln := range localNames {
		if ln != "" {
			fc.localNames[ln] = base + uint32(k)
		}
	}
	return fc, nil
}

func (mb *moduleBuilder) addTableDef(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	exportNames, i := collectInlineExports(n.Items, i)

	if i+1 < len(n.Items) && !n.Items[i].IsList() {
		if rt, ok := valTypeName(n.Items[i].Atom.Text); ok && n.Items[i+1].IsList() && n.Items[i+1].List.head() == "elem" {
			elemNode := n.Items[i+1].List
			var inits []wasm.Expr
			for _, it := range elemNode.Items[1:] {
				if it.IsList() {
					ins, err := parseFoldedInstr(&funcCtx{mb: mb}, it.List)
					if err != nil {
						return err
					}
					inits = append(inits, constExprWithEnd(ins))
					continue
				}
				fIdx, err := mb.resolveFunc(it.Atom)
				if err != nil {
					return err
				}
				inits = append(inits, constExprWithEnd([]wasm.Instruction{wasm.InsRefFunc{OpHeader: wasm.Op(wasm.OpRefFunc), Func: fIdx}}))
			}
			n32 := uint32(len(inits))
			idx := mb.tableN
			mb.tableN++
			if name != "" {
				mb.tableNames[name] = idx
			}
			mb.mod.TableSection = append(mb.mod.TableSection, &wasm.Table{Type: wasm.TableType{Limits: wasm.Limits{Min: n32, Max: &n32}, RefType: rt}})
			for _, en := range exportNames {
				mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeTable, Index: idx})
			}
			zero := constExprWithEnd([]wasm.Instruction{wasm.InsI32Const{OpHeader: wasm.Op(wasm.OpI32Const), Value: 0}})
			mb.mod.ElementSection = append(mb.mod.ElementSection, &wasm.ElementSegment{
				Mode: wasm.ElemModeActive, Table: wasm.NewTableIndex(idx), Offset: zero, Type: wasm.ValueTypeFuncref, Init: inits,
			})
			return nil
		}
	}

	tt, _, err := parseTableType(n.Items, i)
	if err != nil {
		return err
	}
	idx := mb.tableN
	mb.tableN++
	if name != "" {
		mb.tableNames[name] = idx
	}
	mb.mod.TableSection = append(mb.mod.TableSection, &wasm.Table{Type: tt})
	for _, en := range exportNames {
		mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeTable, Index: idx})
	}
	return nil
}

func (mb *moduleBuilder) addMemoryDef(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	exportNames, i := collectInlineExports(n.Items, i)

	if i < len(n.Items) && n.Items[i].IsList() && n.Items[i].List.head() == "data" {
		var buf []byte
		for _, it := range n.Items[i].List.Items[1:] {
			if !it.IsList() {
				buf = append(buf, it.Atom.Raw...)
			}
		}
		pages := uint32((len(buf) + wasm.PageSize - 1) / wasm.PageSize)
		idx := mb.memN
		mb.memN++
		if name != "" {
			mb.memNames[name] = idx
		}
		mb.mod.MemorySection = append(mb.mod.MemorySection, &wasm.Memory{Type: wasm.MemoryType{Limits: wasm.Limits{Min: pages, Max: &pages}}})
		for _, en := range exportNames {
			mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeMemory, Index: idx})
		}
		zero := constExprWithEnd([]wasm.Instruction{wasm.InsI32Const{OpHeader: wasm.Op(wasm.OpI32Const), Value: 0}})
		mb.mod.DataSection = append(mb.mod.DataSection, &wasm.DataSegment{Mode: wasm.DataModeActive, Memory: wasm.NewMemIndex(idx), Offset: zero, Init: buf})
		return nil
	}

	mt, _, err := parseMemoryType(n.Items, i)
	if err != nil {
		return err
	}
	idx := mb.memN
	mb.memN++
	if name != "" {
		mb.memNames[name] = idx
	}
	mb.mod.MemorySection = append(mb.mod.MemorySection, &wasm.Memory{Type: mt})
	for _, en := range exportNames {
		mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeMemory, Index: idx})
	}
	return nil
}

func (mb *moduleBuilder) addGlobalDef(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	exportNames, i := collectInlineExports(n.Items, i)

	gt, i, err := parseGlobalType(n.Items, i)
	if err != nil {
		return err
	}
	ins, err := parseInstrSeq(&funcCtx{mb: mb}, n.Items[i:])
	if err != nil {
		return err
	}
	idx := mb.globalN
	mb.globalN++
	if name != "" {
		mb.globalNames[name] = idx
	}
	mb.mod.GlobalSection = append(mb.mod.GlobalSection, &wasm.Global{Type: gt, Init: constExprWithEnd(ins)})
	for _, en := range exportNames {
		mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: en, Kind: wasm.ExternTypeGlobal, Index: idx})
	}
	return nil
}

func (mb *moduleBuilder) addTopExport(n *Node) *werr.Error {
	name := string(n.Items[1].Atom.Raw)
	desc := n.Items[2].List
	var kind wasm.ImportKind
	var index uint32
	switch desc.head() {
	case "func":
		idx, err := mb.resolveFunc(desc.Items[1].Atom)
		if err != nil {
			return err
		}
		kind, index = wasm.ExternTypeFunc, idx.Num
	case "table":
		idx, err := mb.resolveTable(desc.Items[1].Atom)
		if err != nil {
			return err
		}
		kind, index = wasm.ExternTypeTable, idx.Num
	case "memory":
		idx, err := mb.resolveMem(desc.Items[1].Atom)
		if err != nil {
			return err
		}
		kind, index = wasm.ExternTypeMemory, idx.Num
	case "global":
		idx, err := mb.resolveGlobal(desc.Items[1].Atom)
		if err != nil {
			return err
		}
		kind, index = wasm.ExternTypeGlobal, idx.Num
	default:
		return newErr(KindUnexpectedToken, "unknown export descriptor")
	}
	mb.mod.ExportSection = append(mb.mod.ExportSection, &wasm.Export{Name: name, Kind: kind, Index: index})
	return nil
}

func (mb *moduleBuilder) addElem(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	mode := wasm.ElemModeActive
	table := wasm.NewTableIndex(0)
	var offset wasm.Expr
	haveOffset := false

	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Text == "declare" {
		mode = wasm.ElemModeDeclarative
		i++
	} else {
		if i < len(n.Items) && n.Items[i].IsList() && n.Items[i].List.head() == "table" {
			t, err := mb.resolveTable(n.Items[i].List.Items[1].Atom)
			if err != nil {
				return err
			}
			table = t
			i++
		}
		if i < len(n.Items) && n.Items[i].IsList() && n.Items[i].List.head() != "item" {
			sub := n.Items[i].List
			var ins []wasm.Instruction
			var err *werr.Error
			if sub.head() == "offset" {
				ins, err = parseInstrSeq(&funcCtx{mb: mb}, sub.Items[1:])
			} else {
				ins, err = parseFoldedInstr(&funcCtx{mb: mb}, sub)
			}
			if err != nil {
				return err
			}
			offset = constExprWithEnd(ins)
			haveOffset = true
			i++
		}
		if !haveOffset {
			mode = wasm.ElemModePassive
		}
	}

	rt := wasm.ValueTypeFuncref
	if i < len(n.Items) && !n.Items[i].IsList() {
		switch n.Items[i].Atom.Text {
		case "func":
			i++
		case "funcref":
			i++
		case "externref":
			rt = wasm.ValueTypeExternref
			i++
		}
	}

	var inits []wasm.Expr
	for ; i < len(n.Items); i++ {
		it := n.Items[i]
		if it.IsList() {
			var ins []wasm.Instruction
			var err *werr.Error
			if it.List.head() == "item" {
				ins, err = parseInstrSeq(&funcCtx{mb: mb}, it.List.Items[1:])
			} else {
				ins, err = parseFoldedInstr(&funcCtx{mb: mb}, it.List)
			}
			if err != nil {
				return err
			}
			inits = append(inits, constExprWithEnd(ins))
			continue
		}
		fIdx, err := mb.resolveFunc(it.Atom)
		if err != nil {
			return err
		}
		inits = append(inits, constExprWithEnd([]wasm.Instruction{wasm.InsRefFunc{OpHeader: wasm.Op(wasm.OpRefFunc), Func: fIdx}}))
	}

	idx := uint32(len(mb.mod.ElementSection))
	if name != "" {
		mb.elemNames[name] = idx
	}
	mb.mod.ElementSection = append(mb.mod.ElementSection, &wasm.ElementSegment{Mode: mode, Table: table, Offset: offset, Type: rt, Init: inits})
	return nil
}

func (mb *moduleBuilder) addData(n *Node) *werr.Error {
	i := 1
	name := ""
	if i < len(n.Items) && !n.Items[i].IsList() && n.Items[i].Atom.Kind == TokID {
		name = n.Items[i].Atom.Text
		i++
	}
	mem := wasm.NewMemIndex(0)
	if i < len(n.Items) && n.Items[i].IsList() && n.Items[i].List.head() == "memory" {
		m, err := mb.resolveMem(n.Items[i].List.Items[1].Atom)
		if err != nil {
			return err
		}
		mem = m
		i++
	}
	var offset wasm.Expr
	active := false
	if i < len(n.Items) && n.Items[i].IsList() {
		sub := n.Items[i].List
		var ins []wasm.Instruction
		var err *werr.Error
		if sub.head() == "offset" {
			ins, err = parseInstrSeq(&funcCtx{mb: mb}, sub.Items[1:])
		} else {
			ins, err = parseFoldedInstr(&funcCtx{mb: mb}, sub)
		}
		if err != nil {
			return err
		}
		offset = constExprWithEnd(ins)
		active = true
		i++
	}
	var buf []byte
	for ; i < len(n.Items); i++ {
		if !n.Items[i].IsList() {
			buf = append(buf, n.Items[i].Atom.Raw...)
		}
	}
	mode := wasm.DataModePassive
	if active {
		mode = wasm.DataModeActive
	}
	idx := uint32(len(mb.mod.DataSection))
	if name != "" {
		mb.dataNames[name] = idx
	}
	mb.mod.DataSection = append(mb.mod.DataSection, &wasm.DataSegment{Mode: mode, Memory: mem, Offset: offset, Init: buf})
	return nil
}
