// Package wazir is a standalone WebAssembly 1.0+ engine: a binary decoder, a text
// (.wat/.wast) frontend, a validator/compiler, and a bytecode interpreter, wired together
// behind a small Runtime/ModuleInstance API.
package wazir

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jblebrun/wazir/api"
	"github.com/jblebrun/wazir/internal/compiler"
	"github.com/jblebrun/wazir/internal/instantiate"
	"github.com/jblebrun/wazir/internal/interpreter"
	"github.com/jblebrun/wazir/internal/text"
	"github.com/jblebrun/wazir/internal/wasm"
	"github.com/jblebrun/wazir/internal/wasm/binary"
	"github.com/jblebrun/wazir/internal/werr"
)

// Config configures a Runtime. The zero value is usable: it enables the WebAssembly 2.0
// feature set, a depth limit of several hundred call frames, and logs at Info level to
// logrus's standard logger, mirroring the teacher's "functional zero value" config style.
type Config struct {
	Features     wasm.Features
	MaxCallDepth int
	Logger       *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Features == 0 {
		c.Features = wasm.FeaturesWasmCore2
	}
	if c.MaxCallDepth == 0 {
		c.MaxCallDepth = 500
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// Runtime owns one Store and a name-keyed registry of instantiated modules. A Runtime is
// safe for concurrent use: registry access is guarded by mu, and the store's own mutation
// paths (memory/table growth, global writes) are confined to each call's own goroutine.
type Runtime struct {
	cfg   Config
	store *wasm.Store

	mu       sync.RWMutex
	byName   map[string]*ModuleInstance
	byHandle map[uuid.UUID]*ModuleInstance
}

// NewRuntime constructs a Runtime from config, filling in zero-valued fields with their
// defaults.
func NewRuntime(config Config) *Runtime {
	cfg := config.withDefaults()
	r := &Runtime{
		cfg:      cfg,
		store:    wasm.NewStore(),
		byName:   map[string]*ModuleInstance{},
		byHandle: map[uuid.UUID]*ModuleInstance{},
	}
	r.registerSpectestModule()
	return r
}

// ModuleInstance is a post-instantiation handle on a loaded module: its exports, and the
// Runtime that owns its Store.
type ModuleInstance struct {
	rt     *Runtime
	inner  *wasm.ModuleInstance
	handle uuid.UUID
}

// Handle is the synthetic identifier assigned to this instance when it was loaded without an
// explicit registration name; it is never itself a valid Register name.
func (mi *ModuleInstance) Handle() uuid.UUID { return mi.handle }

func (mi *ModuleInstance) Name() string { return mi.inner.Name }

func (mi *ModuleInstance) String() string { return mi.inner.Name }

// Close is a no-op placeholder satisfying api.Module; the Store retains all addresses for
// the Runtime's lifetime (there is no module unload in this engine).
func (mi *ModuleInstance) Close() error { return nil }

func (r *Runtime) newInstance(inner *wasm.ModuleInstance, name string) *ModuleInstance {
	mi := &ModuleInstance{rt: r, inner: inner, handle: uuid.New()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHandle[mi.handle] = mi
	if name != "" {
		r.byName[name] = mi
	}
	return mi
}

// Lookup implements instantiate.Imports by resolving (module, name) against modules already
// registered in this Runtime's namespace.
func (r *Runtime) Lookup(module, name string) (wasm.ExternVal, bool) {
	r.mu.RLock()
	mi, ok := r.byName[module]
	r.mu.RUnlock()
	if !ok {
		return wasm.ExternVal{}, false
	}
	ev, ok := mi.inner.Exports[name]
	return ev, ok
}

// InstantiateBinary decodes, validates+compiles, and instantiates a binary-format module,
// registering it under name (if non-empty) in addition to its always-assigned synthetic
// uuid.UUID handle.
func (r *Runtime) InstantiateBinary(ctx context.Context, name string, wasmBytes []byte) (*ModuleInstance, error) {
	mod, err := binary.Decode(bytes.NewReader(wasmBytes), r.cfg.Features)
	if err != nil {
		r.cfg.Logger.WithError(err).Debug("decode failed")
		return nil, err
	}
	return r.instantiateModule(ctx, name, mod)
}

// InstantiateText lexes and parses a .wat module and shares the validate/compile/instantiate
// tail with InstantiateBinary.
func (r *Runtime) InstantiateText(ctx context.Context, name string, wat string) (*ModuleInstance, error) {
	mod, err := text.ParseModule([]byte(wat))
	if err != nil {
		r.cfg.Logger.WithError(err).Debug("text parse failed")
		return nil, err
	}
	return r.instantiateModule(ctx, name, mod)
}

// InstantiateParsed validates, compiles, and instantiates a module that was already decoded or
// parsed by the caller. internal/spectest uses this when a .wast script embeds a (module ...)
// form directly, rather than as raw binary/text bytes that InstantiateBinary/InstantiateText
// would lex from scratch.
func (r *Runtime) InstantiateParsed(ctx context.Context, name string, mod *wasm.Module) (*ModuleInstance, error) {
	return r.instantiateModule(ctx, name, mod)
}

func (r *Runtime) instantiateModule(ctx context.Context, name string, mod *wasm.Module) (*ModuleInstance, error) {
	cm, err := compiler.Compile(mod, r.cfg.Features)
	if err != nil {
		r.cfg.Logger.WithError(err).WithField("module", name).Debug("validate/compile failed")
		return nil, err
	}
	inner, err := instantiate.Instantiate(ctx, r.store, cm, name, r, r.cfg.MaxCallDepth)
	if err != nil {
		r.cfg.Logger.WithError(err).WithField("module", name).Debug("instantiate failed")
		return nil, err
	}
	r.cfg.Logger.WithField("module", name).Info("module instantiated")
	if name != "" {
		r.mu.RLock()
		_, dup := r.byName[name]
		r.mu.RUnlock()
		if dup {
			return nil, newErr(KindDuplicateRegistration, "module %q already registered", name)
		}
	}
	return r.newInstance(inner, name), nil
}

// Register publishes an already-instantiated module under an additional name, for .wast's
// (register "name" $id).
func (r *Runtime) Register(name string, instance *ModuleInstance) error {
	if name == "" {
		return newErr(KindDuplicateRegistration, "register requires a non-empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing != instance {
		return newErr(KindDuplicateRegistration, "module %q already registered", name)
	}
	r.byName[name] = instance
	return nil
}

// Call invokes the exported function export with args, one stack word per parameter, and
// returns its results.
func (mi *ModuleInstance) Call(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	fn, ok := mi.inner.ExportedFunction(export)
	if !ok {
		return nil, newErr(KindMethodNotFound, "no exported function %q", export)
	}
	in := interpreter.New(mi.rt.cfg.MaxCallDepth)
	return in.Call(ctx, mi.rt.store, fn, args)
}

// ReadGlobal returns the current value of the exported global export.
func (mi *ModuleInstance) ReadGlobal(export string) (wasm.Value, error) {
	g, ok := mi.inner.ExportedGlobal(export)
	if !ok {
		return wasm.Value{}, newErr(KindMethodNotFound, "no exported global %q", export)
	}
	return g.Value, nil
}

// ExportedMemory returns a thin wrapper over the exported memory export, or nil if it
// doesn't exist or isn't a memory.
func (mi *ModuleInstance) ExportedMemory(export string) api.Memory {
	m, ok := mi.inner.ExportedMemory(export)
	if !ok {
		return nil
	}
	return memoryView{m}
}

type memoryView struct{ m *wasm.MemoryInstance }

func (v memoryView) Size() uint32 { return uint32(len(v.m.Bytes)) }

func (v memoryView) Grow(deltaPages uint32) (uint32, bool) {
	prev := v.m.PageCount()
	next := uint64(prev) + uint64(deltaPages)
	if v.m.Type.Limits.Max != nil && next > uint64(*v.m.Type.Limits.Max) {
		return prev, false
	}
	v.m.Bytes = append(v.m.Bytes, make([]byte, uint64(deltaPages)*wasm.PageSize)...)
	return prev, true
}

func (v memoryView) Read(byteOffset, byteCount uint32) ([]byte, bool) {
	end := uint64(byteOffset) + uint64(byteCount)
	if end > uint64(len(v.m.Bytes)) {
		return nil, false
	}
	return v.m.Bytes[byteOffset:end], true
}

func (v memoryView) Write(byteOffset uint32, data []byte) bool {
	end := uint64(byteOffset) + uint64(len(data))
	if end > uint64(len(v.m.Bytes)) {
		return false
	}
	copy(v.m.Bytes[byteOffset:], data)
	return true
}

const (
	KindMethodNotFound        Kind = "method not found"
	KindDuplicateRegistration Kind = "duplicate registration"
)

type Kind string

func (k Kind) String() string { return string(k) }

func newErr(kind Kind, format string, args ...interface{}) *werr.Error {
	return werr.Newf("runtime", kind, format, args...)
}
