package hostcall

import (
	"errors"
	"fmt"

	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/memory"
)

// FallibleError is returned by a handler whose entry is catalogued
// Fallible: its numeric Code is written through the guest's out-pointer
// rather than aborting execution.
type FallibleError struct {
	Code uint32
}

func (e *FallibleError) Error() string {
	return fmt.Sprintf("hostcall: fallible error code %d", e.Code)
}

// ErrUnknownHostCall is returned by Dispatch for a name the catalogue does
// not list.
var ErrUnknownHostCall = errors.New("hostcall: unknown host call")

// HandlerFunc implements one catalogued host function's effect. It may
// register memory reads/writes against mem and move bytes through them.
// Dispatch does not pre-process those registrations: core/env's binding
// passes mem to Externalities.PreProcessMemoryAccesses only after the
// handler has returned, so the handler's own reads and writes run before
// that bounds check and page charge.
type HandlerFunc func(mem *memory.AccessManager, args []uint64) (results []uint64, err error)

// Dispatcher executes catalogued host calls against one execution's gas
// counters and termination state: flat charge, run the handler (which
// performs the effect), then either write back a fallible code or surface
// an infallible trap. Pre-processing the handler's memory registrations is
// left to the caller of Dispatch.
type Dispatcher struct {
	cat      *Catalogue
	counters *gas.Pair
	state    *State
	handlers map[string]HandlerFunc
}

func NewDispatcher(cat *Catalogue, counters *gas.Pair, state *State) *Dispatcher {
	return &Dispatcher{cat: cat, counters: counters, state: state, handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to the catalogue entry named module.name; it
// panics if the catalogue has no such entry, since that would be a wiring
// bug rather than a recoverable runtime condition.
func (d *Dispatcher) Register(module, name string, fn HandlerFunc) {
	if _, ok := d.cat.Entry(module, name); !ok {
		panic(fmt.Sprintf("hostcall: %s.%s is not in the catalogue", module, name))
	}
	d.handlers[module+"."+name] = fn
}

// Dispatch invokes the handler registered for module.name, charging its
// flat cost first. A payload length beyond the entry's MaxPayload fails
// immediately without running the handler: a fallible entry gets error
// code 1, an infallible one traps with TrapMemoryOverflow.
func (d *Dispatcher) Dispatch(module, name string, mem *memory.AccessManager, args []uint64, payloadLen uint32) (results []uint64, code uint32, err error) {
	entry, ok := d.cat.Entry(module, name)
	if !ok {
		return nil, 0, ErrUnknownHostCall
	}

	if entry.MaxPayload > 0 && payloadLen > entry.MaxPayload {
		if entry.Fallible {
			return nil, 1, nil
		}
		d.state.Trap(TrapMemoryOverflow)
		return nil, 0, &FallibleError{Code: 1}
	}

	cost := entry.CostBase + entry.CostPerByte*uint64(payloadLen)
	switch d.counters.ChargeBoth(cost) {
	case gas.ChargeAllowanceExceeded:
		d.state.AllowanceExceeded()
		return nil, 0, errors.New("hostcall: block allowance exceeded")
	case gas.ChargeLimitExceeded:
		d.state.Trap(TrapRanOutOfGas)
		return nil, 0, &FallibleError{Code: 0}
	}

	fn, ok := d.handlers[module+"."+name]
	if !ok {
		d.state.SystemError()
		return nil, 0, fmt.Errorf("hostcall: %s.%s has no registered handler", module, name)
	}

	results, err = fn(mem, args)
	if err == nil {
		return results, 0, nil
	}

	var fe *FallibleError
	if errors.As(err, &fe) {
		if !entry.Fallible {
			d.state.SystemError()
			return nil, 0, fmt.Errorf("hostcall: %s.%s returned a fallible error but is catalogued infallible", module, name)
		}
		return results, fe.Code, nil
	}

	// any other error from an infallible entry traps; from a fallible
	// entry it is still a programming error, since fallible handlers must
	// report failure via FallibleError.
	d.state.Trap(TrapBackendError)
	return nil, 0, err
}
