// Package engine is the external engine collaborator of SPEC_FULL §6,
// backed by github.com/tetratelabs/wazero: new_store, memory_new,
// instance_new, invoke, get_global/set_global, memory_read/write and
// table_get all map onto a thin Store/Instance pair around wazero's
// runtime and module types.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// EngineError wraps a wazero failure at compile or instantiate time; the
// façade surfaces it as an Actor backend error bearing whatever gas was
// already burned.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine: %s: %v", e.Op, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// ImportBinding describes one host function to expose under moduleName in
// the guest's import namespace; Fn receives the raw parameter/result stack
// the way wazero's GoModuleFunc does, matching core/hostcall.HandlerFunc's
// []uint64 shape one level up.
type ImportBinding struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Fn      func(ctx context.Context, mod api.Module, stack []uint64)
}

// Store owns one wazero runtime; new_store().
type Store struct {
	ctx context.Context
	rt  wazero.Runtime
}

func NewStore(ctx context.Context) *Store {
	return &Store{ctx: ctx, rt: wazero.NewRuntime(ctx)}
}

func (s *Store) Close() error { return s.rt.Close(s.ctx) }

// BindImports registers a host module named moduleName exposing a linear
// memory (memory_new) and every supplied function binding. It must be
// called once per store before InstanceNew.
func (s *Store) BindImports(moduleName string, minPages, maxPages uint32, bindings []ImportBinding) error {
	b := s.rt.NewHostModuleBuilder(moduleName)
	if maxPages > 0 {
		b = b.ExportMemoryWithMax("memory", minPages, maxPages)
	} else {
		b = b.ExportMemory("memory", minPages)
	}
	for _, im := range bindings {
		b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(im.Fn), im.Params, im.Results).
			Export(im.Name)
	}
	_, err := b.Instantiate(s.ctx)
	if err != nil {
		return &EngineError{Op: "bind_imports", Err: err}
	}
	return nil
}

// ListExportedFuncs compiles code and returns the set of function names it
// exports, without instantiating it — used by the pre-charge pipeline's
// "is dispatchKind a declared export" check (§4.G precharge_for_code_length)
// when the caller has only raw bytes on hand, e.g. cmd/gearrun loading a
// .wasm file directly instead of a program entity already carrying its
// parsed export set.
func (s *Store) ListExportedFuncs(code []byte) (map[string]bool, error) {
	compiled, err := s.rt.CompileModule(s.ctx, code)
	if err != nil {
		return nil, &EngineError{Op: "compile", Err: err}
	}
	defer compiled.Close(s.ctx)

	out := make(map[string]bool)
	for name, def := range compiled.ExportedFunctions() {
		if len(def.ParamTypes()) == 0 && len(def.ResultTypes()) == 0 {
			out[name] = true
		}
	}
	return out, nil
}

// InstanceNew compiles and instantiates code under the given module name;
// failure is always an EngineError, never a partially constructed Instance.
func (s *Store) InstanceNew(code []byte, moduleName string) (*Instance, error) {
	compiled, err := s.rt.CompileModule(s.ctx, code)
	if err != nil {
		return nil, &EngineError{Op: "compile", Err: err}
	}
	cfg := wazero.NewModuleConfig().WithName(moduleName)
	mod, err := s.rt.InstantiateModule(s.ctx, compiled, cfg)
	if err != nil {
		return nil, &EngineError{Op: "instantiate", Err: err}
	}
	return &Instance{ctx: s.ctx, mod: mod}, nil
}

// Instance is the instantiated guest module; invoke, get_global/set_global,
// memory_read/write and table_get all hang off it.
type Instance struct {
	ctx context.Context
	mod api.Module
}

var ErrNoSuchFunction = errors.New("engine: no such exported function")

// Invoke calls the exported function named entry if the module exports it.
func (i *Instance) Invoke(entry string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(entry)
	if fn == nil {
		return nil, ErrNoSuchFunction
	}
	res, err := fn.Call(i.ctx, args...)
	if err != nil {
		return nil, &EngineError{Op: "invoke:" + entry, Err: err}
	}
	return res, nil
}

// HasExport reports whether entry is a declared export, used by the
// façade to decide whether to invoke or skip straight to draining.
func (i *Instance) HasExport(entry string) bool {
	return i.mod.ExportedFunction(entry) != nil
}

// GetGlobal reads an exported global's current value.
func (i *Instance) GetGlobal(name string) (uint64, bool) {
	g := i.mod.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// SetGlobal writes a mutable exported global; wazero exposes mutation via
// the api.MutableGlobal interface, which ExportedGlobal satisfies only for
// globals actually declared mutable.
func (i *Instance) SetGlobal(name string, value uint64) bool {
	g := i.mod.ExportedGlobal(name)
	if g == nil {
		return false
	}
	mg, ok := g.(api.MutableGlobal)
	if !ok {
		return false
	}
	mg.Set(value)
	return true
}

// Memory returns the instance's linear memory, or nil if it exports none.
func (i *Instance) Memory() *Memory {
	m := i.mod.Memory()
	if m == nil {
		return nil
	}
	return &Memory{m: m}
}

// TableGet reads element idx of the exported table named name.
func (i *Instance) TableGet(name string, idx uint32) (uint64, bool) {
	t := i.mod.ExportedTable(name)
	if t == nil || idx >= t.Size() {
		return 0, false
	}
	v, err := t.Get(i.ctx, idx)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Close releases the instance's module resources.
func (i *Instance) Close() error {
	return i.mod.Close(i.ctx)
}
