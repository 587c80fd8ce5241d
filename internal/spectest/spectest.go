// Package spectest interprets the WebAssembly core-spec ".wast" conformance script format
// against a wazir.Runtime. It is a consumer of the public Runtime API, not a privileged
// internal component: module forms go through InstantiateText/InstantiateBinary/
// InstantiateParsed exactly as any embedder would use them, so a script run doubles as an
// integration test of the whole decode/parse/validate/instantiate/interpret pipeline.
package spectest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jblebrun/wazir"
	"github.com/jblebrun/wazir/internal/text"
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/werr"
)

// Failure records one script command whose assertion did not hold.
type Failure struct {
	Command string
	Message string
}

// Report summarizes a script run: how many commands executed, and every assertion that failed.
type Report struct {
	Total    int
	Failures []Failure
}

func (r *Report) fail(command, format string, args ...interface{}) {
	r.Failures = append(r.Failures, Failure{Command: command, Message: fmt.Sprintf(format, args...)})
}

// Passed reports whether every command in the script succeeded.
func (r *Report) Passed() bool { return len(r.Failures) == 0 }

// Runner holds the state a .wast script accumulates as it runs: the Runtime instantiated
// modules are loaded into, the most recently defined module ("the current module" that bare
// actions implicitly target), and the script's own $id -> module bindings (distinct from the
// Runtime's register() namespace, which only tracks string names).
type Runner struct {
	rt      *wazir.Runtime
	byID    map[string]*wazir.ModuleInstance
	current *wazir.ModuleInstance
}

// NewRunner builds a Runner with a fresh Runtime constructed from cfg.
func NewRunner(cfg wazir.Config) *Runner {
	return &Runner{rt: wazir.NewRuntime(cfg), byID: map[string]*wazir.ModuleInstance{}}
}

// Run interprets every top-level form in src in order.
func (rn *Runner) Run(src []byte) (*Report, error) {
	nodes, err := text.ParseScript(src)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for _, n := range nodes {
		rn.runForm(report, n)
	}
	return report, nil
}

func (rn *Runner) runForm(report *Report, n *text.Node) {
	switch head := text.Head(n); head {
	case "module":
		rn.doModule(report, n)
	case "register":
		rn.doRegister(report, n)
	case "assert_return":
		rn.doAssertReturn(report, n)
	case "assert_trap":
		rn.doAssertTrap(report, n)
	case "assert_exhaustion":
		rn.doAssertExhaustion(report, n)
	case "assert_malformed":
		rn.doAssertReject(report, n, "decode")
	case "assert_invalid":
		rn.doAssertReject(report, n, "validate")
	case "assert_unlinkable":
		rn.doAssertReject(report, n, "runtime")
	case "invoke":
		report.Total++
		if _, err := rn.runAction(n); err != nil {
			report.fail(head, "unexpected failure: %v", err)
		}
	default:
		// "assert_uninstantiable" and comment-only forms (meta like `(input ...)`,
		// unsupported by this driver) are skipped rather than counted as failures.
	}
}

func tokenString(tok text.Token) string {
	if tok.Raw != nil {
		return string(tok.Raw)
	}
	return tok.Text
}

func moduleNodeID(n *text.Node) string {
	if len(n.Items) > 1 && !n.Items[1].IsList() && n.Items[1].Atom.Kind == text.TokID {
		return n.Items[1].Atom.Text
	}
	return ""
}

func concatStrings(items []text.Item) []byte {
	var buf []byte
	for _, it := range items {
		if it.IsList() {
			continue
		}
		buf = append(buf, []byte(tokenString(it.Atom))...)
	}
	return buf
}

// instantiateNode instantiates the module described by n, a (module ...) form possibly
// carrying an $id, and possibly using the script format's "binary"/"quote" abbreviations that
// embed raw bytes instead of a structured module body.
func (rn *Runner) instantiateNode(n *text.Node) (*wazir.ModuleInstance, error) {
	items := n.Items[1:]
	if len(items) > 0 && !items[0].IsList() && items[0].Atom.Kind == text.TokID {
		items = items[1:]
	}
	if len(items) > 0 && !items[0].IsList() && items[0].Atom.Kind == text.TokKeyword {
		switch items[0].Atom.Text {
		case "binary":
			return rn.rt.InstantiateBinary(context.Background(), "", concatStrings(items[1:]))
		case "quote":
			return rn.rt.InstantiateText(context.Background(), "", string(concatStrings(items[1:])))
		}
	}
	mod, perr := text.ParseModuleNode(n)
	if perr != nil {
		return nil, perr
	}
	return rn.rt.InstantiateParsed(context.Background(), "", mod)
}

func (rn *Runner) doModule(report *Report, n *text.Node) {
	report.Total++
	id := moduleNodeID(n)
	mi, err := rn.instantiateNode(n)
	if err != nil {
		report.fail("module", "unexpected failure: %v", err)
		return
	}
	rn.current = mi
	if id != "" {
		rn.byID[id] = mi
	}
}

func (rn *Runner) doRegister(report *Report, n *text.Node) {
	report.Total++
	if len(n.Items) < 2 {
		report.fail("register", "missing name")
		return
	}
	name := tokenString(n.Items[1].Atom)
	mi := rn.current
	if len(n.Items) > 2 && !n.Items[2].IsList() {
		mi = rn.byID[tokenString(n.Items[2].Atom)]
	}
	if mi == nil {
		report.fail("register", "no module named %q to register", name)
		return
	}
	if err := rn.rt.Register(name, mi); err != nil {
		report.fail("register", "%v", err)
	}
}

func (rn *Runner) doAssertReject(report *Report, n *text.Node, family string) {
	report.Total++
	command := text.Head(n)
	if len(n.Items) < 3 || !n.Items[1].IsList() {
		report.fail(command, "malformed assertion")
		return
	}
	want := tokenString(n.Items[2].Atom)
	_, err := rn.instantiateNode(n.Items[1].List)
	if err == nil {
		report.fail(command, "expected rejection %q, instantiation succeeded", want)
		return
	}
	if kind, ok := werr.KindOf(err, family); ok {
		if strings.Contains(fmt.Sprint(kind), want) || strings.Contains(err.Error(), want) {
			return
		}
		report.fail(command, "got %v, want error containing %q", kind, want)
		return
	}
	if !strings.Contains(err.Error(), want) {
		report.fail(command, "got %v, want error containing %q", err, want)
	}
}

func (rn *Runner) resolveModule(id string) *wazir.ModuleInstance {
	if id == "" {
		return rn.current
	}
	return rn.byID[id]
}

// runAction evaluates an (invoke ...) or (get ...) form against its target module, returning
// the result stack words in the interpreter's own encoding (see wasm.Value.ToStackWord).
func (rn *Runner) runAction(n *text.Node) ([]uint64, error) {
	items := n.Items[1:]
	var id string
	if len(items) > 0 && !items[0].IsList() && items[0].Atom.Kind == text.TokID {
		id = items[0].Atom.Text
		items = items[1:]
	}
	mi := rn.resolveModule(id)
	if mi == nil {
		return nil, fmt.Errorf("no module in scope for action %q", text.Head(n))
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("action %q missing a name", text.Head(n))
	}
	name := tokenString(items[0].Atom)

	switch text.Head(n) {
	case "invoke":
		args, err := parseConstArgs(items[1:])
		if err != nil {
			return nil, err
		}
		return mi.Call(context.Background(), name, args...)
	case "get":
		v, err := mi.ReadGlobal(name)
		if err != nil {
			return nil, err
		}
		return []uint64{v.ToStackWord()}, nil
	}
	return nil, fmt.Errorf("unsupported action %q", text.Head(n))
}

func parseConstArgs(items []text.Item) ([]uint64, error) {
	args := make([]uint64, 0, len(items))
	for _, it := range items {
		if !it.IsList() {
			continue
		}
		e, err := parseConst(it.List)
		if err != nil {
			return nil, err
		}
		args = append(args, e.word)
	}
	return args, nil
}

// resultKind distinguishes a literal expected value from the two NaN-payload-independent
// patterns assert_return uses for floating point results (nan:canonical/nan:arithmetic).
type resultKind int

const (
	rkValue resultKind = iota
	rkCanonicalNaN
	rkArithmeticNaN
	rkAnyFuncref
)

type constResult struct {
	kind resultKind
	typ  wasm.ValueType
	word uint64
}

func parseConst(n *text.Node) (constResult, error) {
	op := text.Head(n)
	var arg string
	if len(n.Items) > 1 && !n.Items[1].IsList() {
		arg = tokenString(n.Items[1].Atom)
	}
	switch op {
	case "i32.const":
		v, perr := text.ParseIntLiteral(arg)
		if perr != nil {
			return constResult{}, perr
		}
		return constResult{typ: wasm.ValueTypeI32, word: uint64(uint32(v))}, nil
	case "i64.const":
		v, perr := text.ParseIntLiteral(arg)
		if perr != nil {
			return constResult{}, perr
		}
		return constResult{typ: wasm.ValueTypeI64, word: v}, nil
	case "f32.const":
		switch arg {
		case "nan:canonical":
			return constResult{kind: rkCanonicalNaN, typ: wasm.ValueTypeF32}, nil
		case "nan:arithmetic":
			return constResult{kind: rkArithmeticNaN, typ: wasm.ValueTypeF32}, nil
		}
		f, perr := text.ParseFloatLiteral(arg)
		if perr != nil {
			return constResult{}, perr
		}
		return constResult{typ: wasm.ValueTypeF32, word: uint64(math.Float32bits(float32(f)))}, nil
	case "f64.const":
		switch arg {
		case "nan:canonical":
			return constResult{kind: rkCanonicalNaN, typ: wasm.ValueTypeF64}, nil
		case "nan:arithmetic":
			return constResult{kind: rkArithmeticNaN, typ: wasm.ValueTypeF64}, nil
		}
		f, perr := text.ParseFloatLiteral(arg)
		if perr != nil {
			return constResult{}, perr
		}
		return constResult{typ: wasm.ValueTypeF64, word: math.Float64bits(f)}, nil
	case "ref.null":
		if arg == "extern" {
			return constResult{typ: wasm.ValueTypeExternref, word: 0}, nil
		}
		return constResult{typ: wasm.ValueTypeFuncref, word: 0}, nil
	case "ref.extern":
		v, perr := text.ParseIntLiteral(arg)
		if perr != nil {
			return constResult{}, perr
		}
		return constResult{typ: wasm.ValueTypeExternref, word: v}, nil
	case "ref.func":
		return constResult{kind: rkAnyFuncref, typ: wasm.ValueTypeFuncref}, nil
	}
	return constResult{}, fmt.Errorf("unsupported literal %q in script", op)
}

func matchesResult(actual uint64, want constResult) bool {
	switch want.kind {
	case rkCanonicalNaN:
		if want.typ == wasm.ValueTypeF32 {
			return isCanonicalNaN32(uint32(actual))
		}
		return isCanonicalNaN64(actual)
	case rkArithmeticNaN:
		if want.typ == wasm.ValueTypeF32 {
			return isArithmeticNaN32(uint32(actual))
		}
		return isArithmeticNaN64(actual)
	case rkAnyFuncref:
		return actual != 0
	default:
		return actual == want.word
	}
}

func isCanonicalNaN32(bits uint32) bool { return bits&0x7fffffff == 0x7fc00000 }
func isArithmeticNaN32(bits uint32) bool {
	f := math.Float32frombits(bits)
	return f != f && bits&0x00400000 != 0
}

func isCanonicalNaN64(bits uint64) bool { return bits&0x7fffffffffffffff == 0x7ff8000000000000 }
func isArithmeticNaN64(bits uint64) bool {
	f := math.Float64frombits(bits)
	return f != f && bits&0x0008000000000000 != 0
}

func (rn *Runner) doAssertReturn(report *Report, n *text.Node) {
	report.Total++
	if len(n.Items) < 2 || !n.Items[1].IsList() {
		report.fail("assert_return", "malformed assertion")
		return
	}
	results, err := rn.runAction(n.Items[1].List)
	if err != nil {
		report.fail("assert_return", "action failed: %v", err)
		return
	}
	var wants []constResult
	for _, it := range n.Items[2:] {
		if !it.IsList() {
			continue
		}
		w, perr := parseConst(it.List)
		if perr != nil {
			report.fail("assert_return", "bad expected result: %v", perr)
			return
		}
		wants = append(wants, w)
	}
	if len(results) != len(wants) {
		report.fail("assert_return", "got %d results, want %d", len(results), len(wants))
		return
	}
	for i, w := range wants {
		if !matchesResult(results[i], w) {
			report.fail("assert_return", "result %d: got %#x, want %+v", i, results[i], w)
		}
	}
}

func (rn *Runner) doAssertTrap(report *Report, n *text.Node) {
	report.Total++
	if len(n.Items) < 3 || !n.Items[1].IsList() {
		report.fail("assert_trap", "malformed assertion")
		return
	}
	want := tokenString(n.Items[2].Atom)
	_, err := rn.runAction(n.Items[1].List)
	if err == nil {
		report.fail("assert_trap", "expected trap %q, call succeeded", want)
		return
	}
	if kind, ok := werr.KindOf(err, "runtime"); ok {
		if strings.Contains(fmt.Sprint(kind), want) || strings.Contains(err.Error(), want) {
			return
		}
	} else if strings.Contains(err.Error(), want) {
		return
	}
	report.fail("assert_trap", "got %v, want trap containing %q", err, want)
}

func (rn *Runner) doAssertExhaustion(report *Report, n *text.Node) {
	report.Total++
	if len(n.Items) < 2 || !n.Items[1].IsList() {
		report.fail("assert_exhaustion", "malformed assertion")
		return
	}
	_, err := rn.runAction(n.Items[1].List)
	if err == nil {
		report.fail("assert_exhaustion", "expected call stack exhaustion, call succeeded")
		return
	}
	if kind, ok := werr.KindOf(err, "runtime"); !ok || !strings.Contains(fmt.Sprint(kind), "exhausted") {
		report.fail("assert_exhaustion", "got %v, want call stack exhaustion", err)
	}
}
