// Package hostcall implements the fixed syscall catalogue and dispatch
// state machine of SPEC_FULL §4.H: every host function a program may
// import, its cost formula, its fallible/infallible classification, and
// the backend's TerminationReason bookkeeping.
package hostcall

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gearbox/corevm/core/instrument"
	"github.com/gearbox/corevm/params"
)

// Family groups catalogue entries into the seven syscall families below.
type Family string

const (
	FamilyEnvQuery    Family = "env_query"
	FamilyMessageIO   Family = "message_io"
	FamilyScheduling  Family = "scheduling"
	FamilyReservation Family = "reservation"
	FamilyCreation    Family = "creation"
	FamilyDebug       Family = "debug"
	FamilyAllocation  Family = "allocation"
)

// Entry describes one host function's ABI, cost, and failure mode.
type Entry struct {
	Module      string
	Name        string
	Family      Family
	Params      []instrument.ValueType
	Results     []instrument.ValueType
	CostBase    uint64
	CostPerByte uint64
	MaxPayload  uint32
	Fallible    bool

	// PayloadLenArg is the index into the call's args holding the byte
	// length CostPerByte/MaxPayload charge against, or -1 if this entry
	// charges no per-byte cost and rejects no oversized payload.
	PayloadLenArg int
}

func (e Entry) funcType() instrument.FuncType {
	return instrument.FuncType{Params: e.Params, Results: e.Results}
}

// Catalogue is the closed, queryable set of host function entries. It
// satisfies instrument.Catalogue so the instrumentation pass's import
// validation can check signatures directly against it.
type Catalogue struct {
	byName map[string]Entry
}

func (c *Catalogue) Lookup(module, name string) (instrument.FuncType, bool) {
	e, ok := c.byName[module+"."+name]
	if !ok {
		return instrument.FuncType{}, false
	}
	return e.funcType(), true
}

// Entry returns the full catalogue entry for module.name.
func (c *Catalogue) Entry(module, name string) (Entry, bool) {
	e, ok := c.byName[module+"."+name]
	return e, ok
}

// EntryKey names one catalogue entry by its import coordinates.
type EntryKey struct {
	Module string
	Name   string
}

// Entries returns every catalogue entry keyed by its (module, name) pair,
// for callers (core/env's import binder) that need to enumerate the whole
// set rather than look up one name at a time.
func (c *Catalogue) Entries() map[EntryKey]Entry {
	out := make(map[EntryKey]Entry, len(c.byName))
	for _, e := range c.byName {
		out[EntryKey{Module: e.Module, Name: e.Name}] = e
	}
	return out
}

func i32() []instrument.ValueType { return []instrument.ValueType{instrument.I32} }

func build() *Catalogue {
	const mod = "env"
	entries := []Entry{
		{Module: mod, Name: "gr_block_height", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_block_timestamp", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_message_id", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_program_id", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_value", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_size", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_source", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_gas_available", Family: FamilyEnvQuery, Params: i32(), CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_random", Family: FamilyEnvQuery, Params: []instrument.ValueType{instrument.I32, instrument.I32}, CostBase: params.CostEnvQueryBase, PayloadLenArg: -1},

		// gr_read(at, len, buffer_ptr, err_ptr): len at index 1.
		{Module: mod, Name: "gr_read", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, CostPerByte: params.CostMessageIOPerByte, MaxPayload: 1 << 20, Fallible: true, PayloadLenArg: 1},
		// gr_send(program_ptr, payload_ptr, len, value, err_mid_ptr): len at index 2.
		{Module: mod, Name: "gr_send", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, CostPerByte: params.CostMessageIOPerByte, MaxPayload: 1 << 20, Fallible: true, PayloadLenArg: 2},
		// gr_send_push(handle, payload_ptr, len, err_ptr): len at index 2.
		{Module: mod, Name: "gr_send_push", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, CostPerByte: params.CostMessageIOPerByte, MaxPayload: 1 << 20, Fallible: true, PayloadLenArg: 2},
		{Module: mod, Name: "gr_send_commit", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_send_init", Family: FamilyMessageIO, Params: i32(), Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		// gr_reply(payload_ptr, len, value, err_ptr): len at index 1.
		{Module: mod, Name: "gr_reply", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, CostPerByte: params.CostMessageIOPerByte, MaxPayload: 1 << 20, Fallible: true, PayloadLenArg: 1},
		// gr_reply_push(payload_ptr, len, err_ptr): len at index 1.
		{Module: mod, Name: "gr_reply_push", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, CostPerByte: params.CostMessageIOPerByte, MaxPayload: 1 << 20, Fallible: true, PayloadLenArg: 1},
		{Module: mod, Name: "gr_reply_commit", Family: FamilyMessageIO, Params: []instrument.ValueType{instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_reply_to", Family: FamilyMessageIO, Params: i32(), Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_reply_code", Family: FamilyMessageIO, Params: i32(), Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_signal_code", Family: FamilyMessageIO, Params: i32(), Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_signal_from", Family: FamilyMessageIO, Params: i32(), Results: i32(), CostBase: params.CostMessageIOBase, Fallible: true, PayloadLenArg: -1},

		{Module: mod, Name: "gr_wait", Family: FamilyScheduling, CostBase: params.CostSchedulingBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_wait_for", Family: FamilyScheduling, Params: i32(), CostBase: params.CostSchedulingBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_wait_up_to", Family: FamilyScheduling, Params: i32(), CostBase: params.CostSchedulingBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_wake", Family: FamilyScheduling, Params: []instrument.ValueType{instrument.I32, instrument.I32}, Results: i32(), CostBase: params.CostSchedulingBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_leave", Family: FamilyScheduling, CostBase: params.CostSchedulingBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_exit", Family: FamilyScheduling, Params: i32(), CostBase: params.CostSchedulingBase, PayloadLenArg: -1},

		{Module: mod, Name: "gr_reserve_gas", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I64, instrument.I32, instrument.I32}, CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_unreserve_gas", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I32, instrument.I32}, CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_reservation_send", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_reservation_reply", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_reply_deposit", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "gr_system_reserve_gas", Family: FamilyReservation, Params: []instrument.ValueType{instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostReservationBase, Fallible: true, PayloadLenArg: -1},

		// gr_create_program(code_id_ptr, payload_ptr, len, value, err_mid_ptr): len at index 2.
		{Module: mod, Name: "gr_create_program", Family: FamilyCreation, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostCreationBase, CostPerByte: params.CostMessageIOPerByte, Fallible: true, PayloadLenArg: 2},
		// gr_create_program_wgas(code_id_ptr, payload_ptr, len, gas_limit, value, err_mid_ptr): len at index 2.
		{Module: mod, Name: "gr_create_program_wgas", Family: FamilyCreation, Params: []instrument.ValueType{instrument.I32, instrument.I32, instrument.I32, instrument.I64, instrument.I64, instrument.I32}, Results: i32(), CostBase: params.CostCreationBase, CostPerByte: params.CostMessageIOPerByte, Fallible: true, PayloadLenArg: 2},

		// gr_debug(msg_ptr, msg_len): len at index 1.
		{Module: mod, Name: "gr_debug", Family: FamilyDebug, Params: []instrument.ValueType{instrument.I32, instrument.I32}, CostBase: params.CostDebugBase, MaxPayload: 4096, PayloadLenArg: 1},
		// gr_panic(msg_ptr, msg_len): len at index 1.
		{Module: mod, Name: "gr_panic", Family: FamilyDebug, Params: []instrument.ValueType{instrument.I32, instrument.I32}, CostBase: params.CostDebugBase, MaxPayload: 512, PayloadLenArg: 1},
		{Module: mod, Name: "gr_oom_panic", Family: FamilyDebug, CostBase: params.CostDebugBase, PayloadLenArg: -1},
		{Module: mod, Name: "gr_system_break", Family: FamilyDebug, Params: i32(), CostBase: params.CostDebugBase, PayloadLenArg: -1},

		{Module: mod, Name: "alloc", Family: FamilyAllocation, Params: i32(), Results: i32(), CostBase: params.CostAllocationPerPage, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "free", Family: FamilyAllocation, Params: i32(), Results: i32(), CostBase: params.CostFreePerPage, Fallible: true, PayloadLenArg: -1},
		{Module: mod, Name: "free_range", Family: FamilyAllocation, Params: []instrument.ValueType{instrument.I32, instrument.I32}, Results: i32(), CostBase: params.CostFreePerPage, Fallible: true, PayloadLenArg: -1},
	}

	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byName[e.Module+"."+e.Name] = e
	}
	return &Catalogue{byName: byName}
}

var (
	catalogueGroup singleflight.Group
	catalogueMu    sync.Mutex
	catalogueCache = make(map[any]*Catalogue)
)

// For returns the catalogue for storeKey (the backend store-data pointer
// in §5's "thread-local syscall-catalogue store"), building it at most once
// per key even under concurrent re-entry.
func For(storeKey any) *Catalogue {
	catalogueMu.Lock()
	if c, ok := catalogueCache[storeKey]; ok {
		catalogueMu.Unlock()
		return c
	}
	catalogueMu.Unlock()

	v, _, _ := catalogueGroup.Do(fmt.Sprintf("%v", storeKey), func() (interface{}, error) {
		catalogueMu.Lock()
		if c, ok := catalogueCache[storeKey]; ok {
			catalogueMu.Unlock()
			return c, nil
		}
		catalogueMu.Unlock()

		c := build()

		catalogueMu.Lock()
		catalogueCache[storeKey] = c
		catalogueMu.Unlock()
		return c, nil
	})
	return v.(*Catalogue)
}

// Forget drops storeKey's cached catalogue, matching the re-entry cleanup
// §5 requires so a long-lived process doesn't leak one entry per store.
func Forget(storeKey any) {
	catalogueMu.Lock()
	delete(catalogueCache, storeKey)
	catalogueMu.Unlock()
}
