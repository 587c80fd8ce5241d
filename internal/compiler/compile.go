// Package compiler validates a resolved *wasm.Module and lowers each function body into a
// flat, branch-resolved CompiledFunction, per the core spec's validation algorithm appendix.
package compiler

import (
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// vtype is the validator's "ValidationType": a proper two-constructor variant (not a
// sentinel ValueType) distinguishing a known value type from the Unknown produced by
// popping past the top of an unreachable code region.
type vtype struct {
	known bool
	t     wasm.ValueType
}

var vUnknown = vtype{}

func known(t wasm.ValueType) vtype { return vtype{known: true, t: t} }

func knownSlice(ts []wasm.ValueType) []vtype {
	out := make([]vtype, len(ts))
	for i, t := range ts {
		out[i] = known(t)
	}
	return out
}

// patchRef records one outstanding branch target awaiting the PC of its label's `end`.
// which == -2 selects Code[idx].Target, -1 selects Code[idx].Default, >=0 selects
// Code[idx].Table[which].
type patchRef struct {
	idx   int
	which int
}

type ctrlFrame struct {
	op          wasm.Opcode
	startTypes  []wasm.ValueType
	endTypes    []wasm.ValueType
	height      int
	unreachable bool

	startPC   int // loop only: the immediate branch target
	ifJumpIdx int // if only: index of the COpIfNot instruction, -1 once consumed/irrelevant
	elseBrIdx int // if-with-else only: index of the COpBr emitted at `else`, -1 if none yet
	patches   []patchRef
}

func (f *ctrlFrame) labelTypes() []wasm.ValueType {
	if f.op == wasm.OpLoop {
		return f.startTypes
	}
	return f.endTypes
}

// moduleCtx pre-flattens a module's import+local index spaces so function compilation can
// look up a type by absolute index without re-deriving imported-vs-local offsets each time.
type moduleCtx struct {
	m           *wasm.Module
	funcTypes   []*wasm.FunctionType
	globalTypes []wasm.GlobalType
	tableTypes  []wasm.TableType
	memTypes    []wasm.MemoryType
}

func newModuleCtx(m *wasm.Module) *moduleCtx {
	c := &moduleCtx{m: m}
	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case wasm.ExternTypeFunc:
			c.funcTypes = append(c.funcTypes, m.TypeSection[imp.DescFunc.Num])
		case wasm.ExternTypeGlobal:
			c.globalTypes = append(c.globalTypes, imp.DescGlobal)
		case wasm.ExternTypeTable:
			c.tableTypes = append(c.tableTypes, imp.DescTable)
		case wasm.ExternTypeMemory:
			c.memTypes = append(c.memTypes, imp.DescMem)
		}
	}
	for _, t := range m.FunctionSection {
		c.funcTypes = append(c.funcTypes, m.TypeSection[t.Num])
	}
	for _, g := range m.GlobalSection {
		c.globalTypes = append(c.globalTypes, g.Type)
	}
	for _, t := range m.TableSection {
		c.tableTypes = append(c.tableTypes, t.Type)
	}
	for _, mem := range m.MemorySection {
		c.memTypes = append(c.memTypes, mem.Type)
	}
	return c
}

// CompiledModule pairs one CompiledFunction per locally-defined function (imports excluded,
// since they have no body to compile) with the module they were compiled from.
type CompiledModule struct {
	Module    *wasm.Module
	Functions []*wasm.CompiledFunction
}

// Compile validates every function body and constant expression in m and lowers each
// function to flat bytecode. It is the package's sole entry point; its result is what
// instantiate.Instantiate consumes.
func Compile(m *wasm.Module, features wasm.Features) (*CompiledModule, error) {
	if err := validateModuleShape(m, features); err != nil {
		return nil, err
	}
	mc := newModuleCtx(m)
	if err := validateModuleConsts(m, mc); err != nil {
		return nil, err
	}
	out := &CompiledModule{Module: m}
	importedFuncs := m.ImportedFunctionCount()
	for i, code := range m.CodeSection {
		fn, err := compileFunction(mc, features, importedFuncs+uint32(i), code)
		if err != nil {
			return nil, err.In(funcContext(importedFuncs + uint32(i)))
		}
		out.Functions = append(out.Functions, fn)
	}
	return out, nil
}

func funcContext(idx uint32) string {
	return "function[" + itoa(idx) + "]"
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func validateModuleShape(m *wasm.Module, features wasm.Features) *werr.Error {
	if m.ImportedMemoryCount()+uint32(len(m.MemorySection)) > 1 {
		return newErr(KindMultipleMemories, "at most one memory is allowed")
	}
	names := map[string]bool{}
	for _, ex := range m.ExportSection {
		if names[ex.Name] {
			return newErr(KindDuplicateExportName, "duplicate export name %q", ex.Name)
		}
		names[ex.Name] = true
	}
	if m.StartSection != nil {
		idx := m.StartSection.Num
		mc := newModuleCtx(m)
		if int(idx) >= len(mc.funcTypes) {
			return newErr(KindUnknownFunction, "unknown function %d", idx)
		}
		ft := mc.funcTypes[idx]
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return newErr(KindStartFunction, "start function must have type () -> ()")
		}
	}
	return nil
}
