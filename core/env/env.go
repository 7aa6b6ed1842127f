// Package env implements the environment façade of SPEC_FULL §4.I: given
// instrumented bytes and an externalities object, it creates linear
// memory, binds the host-call catalogue, instantiates the module, drives
// the gas counter global across the call, and drains the execution's
// outcome.
package env

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/gearbox/corevm/core/codes"
	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/hostcall"
	"github.com/gearbox/corevm/core/instrument"
	"github.com/gearbox/corevm/core/memory"
	"github.com/gearbox/corevm/engine"
)

// Externalities is the capability set the façade requires of its caller:
// gas amount, memory-access pre-processing and the memory page bounds.
// There is no gas-left setter; the façade writes the gas global itself.
type Externalities interface {
	GasAmount() uint64
	MemoryPages() (min, max uint32)
	PreProcessMemoryAccesses(access *memory.AccessManager, counters *gas.Pair) error
}

// Outcome is the drained result of one execution, §4.I point 7.
type Outcome struct {
	Termination   *hostcall.State
	ReplyCode     codes.ReplyCode
	GasLeft       uint64
	Invoked       bool
	EngineErr     error
}

// Facade ties one wazero Store to a host-call dispatcher and the
// termination-reason state for a single execution.
type Facade struct {
	store      *engine.Store
	dispatcher *hostcall.Dispatcher
	state      *hostcall.State
	counters   *gas.Pair
}

func NewFacade(store *engine.Store, dispatcher *hostcall.Dispatcher, state *hostcall.State, counters *gas.Pair) *Facade {
	return &Facade{store: store, dispatcher: dispatcher, state: state, counters: counters}
}

// bindings translates the dispatcher's catalogue into wazero import
// bindings, wiring each guest call through Dispatch so every host
// function gets the charge-then-effect protocol of §4.H regardless of
// which entry point the guest invokes. pager is the real Component C lazy
// page engine backing every AccessManager built here; ext.
// PreProcessMemoryAccesses is what actually drives pager.ChargeAndTouch
// for whatever the handler registered, once the handler itself has
// returned.
func (f *Facade) bindings(cat *hostcall.Catalogue, mem **engine.Memory, pager memory.PageCharger, ext Externalities) []engine.ImportBinding {
	apiTypes := [...]api.ValueType{instrument.I32: api.ValueTypeI32, instrument.I64: api.ValueTypeI64, instrument.F32: api.ValueTypeF32, instrument.F64: api.ValueTypeF64}
	toAPI := func(ts []instrument.ValueType) []api.ValueType {
		out := make([]api.ValueType, len(ts))
		for i, t := range ts {
			out[i] = apiTypes[t]
		}
		return out
	}
	var out []engine.ImportBinding
	for key, e := range cat.Entries() {
		module, name, entry := key.Module, key.Name, e
		out = append(out, engine.ImportBinding{
			Name:    name,
			Params:  toAPI(entry.Params),
			Results: toAPI(entry.Results),
			Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
				am := memory.NewAccessManager(*mem, pager)

				var payloadLen uint32
				if entry.PayloadLenArg >= 0 && entry.PayloadLenArg < len(stack) {
					payloadLen = uint32(stack[entry.PayloadLenArg])
				}

				results, code, err := f.dispatcher.Dispatch(module, name, am, stack, payloadLen)
				if err != nil {
					f.state.OnAbnormalReturn()
					return
				}
				if err := ext.PreProcessMemoryAccesses(am, f.counters); err != nil {
					f.state.OnAbnormalReturn()
					return
				}
				if len(results) > 0 {
					copy(stack, results)
					return
				}
				if len(stack) > 0 {
					stack[0] = uint64(code)
				}
			},
		})
	}
	return out
}

// Run executes entry against code, following §4.I's seven-step sequence.
// pager is the caller's Component C lazy-page context — the guest memory
// every host call's registered reads/writes are actually charged and
// faulted against, replacing the nopPager stand-in this used to carry.
func (f *Facade) Run(moduleName string, code []byte, entry string, cat *hostcall.Catalogue, pager memory.PageCharger, ext Externalities) Outcome {
	min, max := ext.MemoryPages()

	var mem *engine.Memory
	if err := f.store.BindImports("env", min, max, f.bindings(cat, &mem, pager, ext)); err != nil {
		return Outcome{Termination: f.state, EngineErr: err}
	}

	instance, err := f.store.InstanceNew(code, moduleName)
	if err != nil {
		f.state.Trap(hostcall.TrapBackendError)
		return Outcome{Termination: f.state, EngineErr: err}
	}
	defer instance.Close()
	mem = instance.Memory()

	instance.SetGlobal(instrument.GasGlobalName, ext.GasAmount())

	invoked := false
	if instance.HasExport(entry) {
		invoked = true
		if _, err := instance.Invoke(entry); err != nil {
			f.state.OnAbnormalReturn()
		}
	}

	gasLeft, _ := instance.GetGlobal(instrument.GasGlobalName)

	return Outcome{
		Termination: f.state,
		ReplyCode:   f.state.ReplyCode(),
		GasLeft:     gasLeft,
		Invoked:     invoked,
	}
}
