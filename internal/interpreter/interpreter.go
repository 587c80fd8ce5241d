// Package interpreter executes the flat, branch-resolved bytecode produced by
// internal/compiler against a *wasm.Store. It never sees a raw wasm.Module: everything it
// needs (types, branch targets, addresses) was already resolved by the compiler or the
// instantiator.
package interpreter

import (
	"context"
	"math"

	"github.com/jblebrun/wazir/internal/wasm"
)

// defaultMaxCallDepth guards against a Wasm call chain exhausting the host goroutine's stack;
// wazero enforces an equivalent bound in its own interpreter. Config.MaxCallDepth overrides it.
const defaultMaxCallDepth = 8192

// Interpreter executes FunctionInstances. It carries no per-call mutable state beyond its
// configured depth limit, so one Interpreter is safe to share across concurrently executing
// calls.
type Interpreter struct {
	maxCallDepth int
}

// New returns an Interpreter bounding recursion at maxDepth frames; maxDepth <= 0 selects
// defaultMaxCallDepth.
func New(maxDepth int) *Interpreter {
	if maxDepth <= 0 {
		maxDepth = defaultMaxCallDepth
	}
	return &Interpreter{maxCallDepth: maxDepth}
}

// Call invokes fn with args (one stack word per parameter) and returns its results. ctx is
// checked for cancellation at every instruction dispatched.
func (in *Interpreter) Call(ctx context.Context, store *wasm.Store, fn *wasm.FunctionInstance, args []uint64) ([]uint64, error) {
	res, err := in.call(ctx, store, fn, args, 0)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (in *Interpreter) call(ctx context.Context, store *wasm.Store, fn *wasm.FunctionInstance, args []uint64, depth int) ([]uint64, error) {
	if depth >= in.maxCallDepth {
		return nil, newErr(KindCallStackExhausted, "call stack exhausted")
	}
	if fn.IsHost() {
		return fn.Host.Func(ctx, args)
	}

	cf := fn.Compiled
	locals := make([]uint64, len(cf.Type.Params)+len(cf.LocalTypes))
	copy(locals, args)
	stack := make([]uint64, 0, cf.MaxStackHeight+1)

	pc := 0
	for pc < len(cf.Code) {
		select {
		case <-ctx.Done():
			return nil, newErr(KindCallCancelled, "call cancelled: %v", ctx.Err())
		default:
		}

		ins := &cf.Code[pc]
		switch ins.Op {
		case wasm.COpUnreachable:
			return nil, newErr(KindUnreachable, "unreachable")
		case wasm.COpNop:

		case wasm.COpBr:
			stack = applyTarget(stack, ins.Target)
			pc = ins.Target.PC
			continue
		case wasm.COpBrIf:
			cond := pop(&stack)
			if cond != 0 {
				stack = applyTarget(stack, ins.Target)
				pc = ins.Target.PC
				continue
			}
		case wasm.COpIfNot:
			cond := pop(&stack)
			if cond == 0 {
				pc = ins.Target.PC
				continue
			}
		case wasm.COpBrTable:
			idx := uint32(pop(&stack))
			t := ins.Default
			if int(idx) < len(ins.Table) {
				t = ins.Table[idx]
			}
			stack = applyTarget(stack, t)
			pc = t.PC
			continue
		case wasm.COpReturn:
			stack = applyTarget(stack, ins.Target)
			return append([]uint64(nil), stack...), nil

		case wasm.COpCall:
			callee := store.Functions[fn.Module.Funcs[ins.Index]]
			n := len(callee.Type().Params)
			args := append([]uint64(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			results, err := in.call(ctx, store, callee, args, depth+1)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)
		case wasm.COpCallIndirect:
			tableAddr := fn.Module.Tables[ins.Index2]
			table := store.Tables[tableAddr]
			elemIdx := uint32(pop(&stack))
			if int(elemIdx) >= len(table.Elements) {
				return nil, newErr(KindUndefinedElement, "undefined element %d", elemIdx)
			}
			ref := table.Elements[elemIdx]
			if ref.IsNull() {
				return nil, newErr(KindUninitializedElement, "uninitialized element %d", elemIdx)
			}
			callee := store.Functions[ref.FuncAddr]
			wantType := fn.Module.Types[ins.Index]
			if !callee.Type().EqualsSignature(wantType.Params, wantType.Results) {
				return nil, newErr(KindIndirectCallTypeMismatch, "indirect call type mismatch")
			}
			n := len(wantType.Params)
			args := append([]uint64(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			results, err := in.call(ctx, store, callee, args, depth+1)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)

		case wasm.COpDrop:
			pop(&stack)
		case wasm.COpSelect:
			cond := pop(&stack)
			b := pop(&stack)
			a := pop(&stack)
			if cond != 0 {
				stack = append(stack, a)
			} else {
				stack = append(stack, b)
			}

		case wasm.COpLocalGet:
			stack = append(stack, locals[ins.Index])
		case wasm.COpLocalSet:
			locals[ins.Index] = pop(&stack)
		case wasm.COpLocalTee:
			locals[ins.Index] = stack[len(stack)-1]
		case wasm.COpGlobalGet:
			stack = append(stack, store.Globals[fn.Module.Globals[ins.Index]].Value.ToStackWord())
		case wasm.COpGlobalSet:
			g := store.Globals[fn.Module.Globals[ins.Index]]
			g.Value = wasm.Value{Type: g.Value.Type, Num: pop(&stack)}
			if g.Value.Type == wasm.ValueTypeFuncref || g.Value.Type == wasm.ValueTypeExternref {
				g.Value = refFromWord(g.Value.Type, g.Value.Num)
			}

		case wasm.COpTableGet, wasm.COpTableSet, wasm.COpTableSize, wasm.COpTableGrow,
			wasm.COpTableFill, wasm.COpTableCopy, wasm.COpTableInit, wasm.COpElemDrop:
			var err error
			stack, err = in.execTable(store, fn, ins, stack)
			if err != nil {
				return nil, err
			}

		case wasm.COpLoad, wasm.COpStore, wasm.COpMemorySize, wasm.COpMemoryGrow,
			wasm.COpMemoryCopy, wasm.COpMemoryFill, wasm.COpMemoryInit, wasm.COpDataDrop:
			var err error
			stack, err = in.execMemory(store, fn, ins, stack)
			if err != nil {
				return nil, err
			}

		case wasm.COpI32Const:
			stack = append(stack, uint64(uint32(ins.I32)))
		case wasm.COpI64Const:
			stack = append(stack, uint64(ins.I64))
		case wasm.COpF32Const:
			stack = append(stack, uint64(math.Float32bits(ins.F32)))
		case wasm.COpF64Const:
			stack = append(stack, math.Float64bits(ins.F64))

		case wasm.COpRefNull:
			stack = append(stack, 0)
		case wasm.COpRefIsNull:
			v := pop(&stack)
			if v == 0 {
				stack = append(stack, 1)
			} else {
				stack = append(stack, 0)
			}
		case wasm.COpRefFunc:
			stack = append(stack, uint64(fn.Module.Funcs[ins.Index])+1)

		case wasm.COpNumeric:
			var err error
			stack, err = execNumeric(ins.Numeric, stack)
			if err != nil {
				return nil, err
			}

		default:
			return nil, newErr(KindUnreachable, "unhandled compiled op")
		}
		pc++
	}
	return append([]uint64(nil), stack...), nil
}

func pop(stack *[]uint64) uint64 {
	s := *stack
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v
}

// applyTarget trims the value stack to the shape expected after a resolved branch: the top
// t.Arity values are preserved, the t.PopCount values beneath them (accumulated inside the
// block being left) are discarded.
func applyTarget(stack []uint64, t wasm.BrTarget) []uint64 {
	if t.PopCount == 0 {
		return stack
	}
	top := stack[len(stack)-t.Arity:]
	base := len(stack) - t.Arity - t.PopCount
	copy(stack[base:], top)
	return stack[:base+t.Arity]
}

func refFromWord(t wasm.ValueType, w uint64) wasm.Value {
	if t == wasm.ValueTypeFuncref {
		if w == 0 {
			return wasm.RefValue(t, wasm.NullRef)
		}
		return wasm.RefValue(t, wasm.FuncRef(wasm.FuncAddr(w-1)))
	}
	return wasm.RefValue(t, wasm.ExternRef(uintptr(w)))
}
