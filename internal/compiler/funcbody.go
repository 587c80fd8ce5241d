package compiler

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

type funcCompiler struct {
	mc       *moduleCtx
	features wasm.Features
	funcIdx  uint32
	locals   []wasm.ValueType // params followed by declared locals
	code     []wasm.CompiledInstr
	val      []vtype
	ctrl     []*ctrlFrame
	height   int // current value stack height, tracked alongside val for clarity
	maxHeight int
}

func compileFunction(mc *moduleCtx, features wasm.Features, funcIdx uint32, code *wasm.Code) (*wasm.CompiledFunction, *werr.Error) {
	ft := mc.funcTypes[funcIdx]
	fc := &funcCompiler{mc: mc, features: features, funcIdx: funcIdx}
	fc.locals = append(fc.locals, ft.Params...)
	fc.locals = append(fc.locals, code.LocalTypes...)

	fc.pushCtrl(0, nil, ft.Results)
	for _, ins := range code.Body.Instrs {
		if err := fc.compileOne(ins); err != nil {
			return nil, err
		}
	}
	if len(fc.ctrl) != 0 {
		return nil, newErr(KindTypeMismatch, "function body missing final end")
	}

	return &wasm.CompiledFunction{
		Type:           ft,
		LocalTypes:     code.LocalTypes,
		Code:           fc.code,
		MaxStackHeight: fc.maxHeight,
	}, nil
}

// --- value/control stack primitives, per the spec's validation algorithm appendix ---

func (fc *funcCompiler) pushVal(t vtype) {
	fc.val = append(fc.val, t)
	fc.height++
	if fc.height > fc.maxHeight {
		fc.maxHeight = fc.height
	}
}

func (fc *funcCompiler) pushVals(ts []wasm.ValueType) {
	for _, t := range ts {
		fc.pushVal(known(t))
	}
}

func (fc *funcCompiler) popVal() (vtype, *werr.Error) {
	top := fc.ctrl[len(fc.ctrl)-1]
	if fc.height == top.height {
		if top.unreachable {
			return vUnknown, nil
		}
		return vUnknown, newErr(KindTypeMismatch, "type mismatch: value stack underflow")
	}
	v := fc.val[len(fc.val)-1]
	fc.val = fc.val[:len(fc.val)-1]
	fc.height--
	return v, nil
}

func (fc *funcCompiler) popExpect(expect wasm.ValueType) *werr.Error {
	v, err := fc.popVal()
	if err != nil {
		return err
	}
	if !v.known {
		return nil
	}
	if v.t != expect {
		return newErr(KindTypeMismatch, "type mismatch: expected %s, got %s", vtName(expect), vtName(v.t))
	}
	return nil
}

func (fc *funcCompiler) popExpects(ts []wasm.ValueType) *werr.Error {
	for i := len(ts) - 1; i >= 0; i-- {
		if err := fc.popExpect(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func vtName(t wasm.ValueType) string {
	switch t {
	case i32:
		return "i32"
	case i64:
		return "i64"
	case f32:
		return "f32"
	case f64:
		return "f64"
	case wasm.ValueTypeFuncref:
		return "funcref"
	case wasm.ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

func (fc *funcCompiler) pushCtrl(op wasm.Opcode, in, out []wasm.ValueType) *ctrlFrame {
	f := &ctrlFrame{op: op, startTypes: in, endTypes: out, height: fc.height, ifJumpIdx: -1, elseBrIdx: -1}
	fc.pushVals(in)
	fc.ctrl = append(fc.ctrl, f)
	return f
}

func (fc *funcCompiler) popCtrl() (*ctrlFrame, *werr.Error) {
	f := fc.ctrl[len(fc.ctrl)-1]
	if err := fc.popExpects(f.endTypes); err != nil {
		return nil, err
	}
	if fc.height != f.height {
		return nil, newErr(KindUnusedValues, "type mismatch: unused values remain on stack")
	}
	fc.ctrl = fc.ctrl[:len(fc.ctrl)-1]
	return f, nil
}

func (fc *funcCompiler) unreachable() {
	fc.val = fc.val[:fc.ctrl[len(fc.ctrl)-1].height]
	fc.height = fc.ctrl[len(fc.ctrl)-1].height
	fc.ctrl[len(fc.ctrl)-1].unreachable = true
}

func (fc *funcCompiler) emit(i wasm.CompiledInstr) int {
	fc.code = append(fc.code, i)
	return len(fc.code) - 1
}

func (fc *funcCompiler) frameAt(depth uint32) (*ctrlFrame, *werr.Error) {
	if int(depth) >= len(fc.ctrl) {
		return nil, newErr(KindUnknownLabel, "unknown label %d", depth)
	}
	return fc.ctrl[len(fc.ctrl)-1-int(depth)], nil
}

// branchTarget computes a BrTarget for branching to frame from the current stack height,
// patching frame.patches later if the target PC (a block/if's `end`) isn't known yet.
func (fc *funcCompiler) branchTarget(frame *ctrlFrame, idx, which int) wasm.BrTarget {
	arity := len(frame.labelTypes())
	pop := fc.height - frame.height - arity
	if pop < 0 {
		pop = 0
	}
	t := wasm.BrTarget{Arity: arity, PopCount: pop}
	if frame.op == wasm.OpLoop {
		t.PC = frame.startPC
	} else {
		frame.patches = append(frame.patches, patchRef{idx: idx, which: which})
	}
	return t
}

func (fc *funcCompiler) patchFrame(frame *ctrlFrame, pc int) {
	for _, p := range frame.patches {
		switch {
		case p.which == -2:
			fc.code[p.idx].Target.PC = pc
		case p.which == -1:
			fc.code[p.idx].Default.PC = pc
		default:
			fc.code[p.idx].Table[p.which].PC = pc
		}
	}
}
