// Package memory implements the memory-access manager (SPEC_FULL §4.B) and
// the lazy-paged linear memory engine (§4.C): three page grains — wasm,
// gear, host — coexisting with the gas counter via an access-tracking
// context that stands in for the source's OS signal handler (see DESIGN.md
// for why a Go+wazero runtime mediates access explicitly instead of via a
// hardware page-fault trap).
package memory

import "github.com/gearbox/corevm/params"

// WasmPage, GearPage and HostPage are page-index types over their
// respective grains; a single address converts to each via integer
// division, per §3 "Page addressing".
type WasmPage uint32
type GearPage uint32
type HostPage uint32

// AddrToWasmPage returns the wasm page containing byte address addr.
func AddrToWasmPage(addr uint32) WasmPage {
	return WasmPage(addr / params.WasmPageSize)
}

// AddrToGearPage returns the gear page containing byte address addr.
func AddrToGearPage(addr uint32) GearPage {
	return GearPage(addr / params.GearPageSize)
}

// AddrToHostPage returns the host page containing byte address addr.
func AddrToHostPage(addr uint32) HostPage {
	return HostPage(addr / uint32(params.HostPageSize))
}

// WasmPageToGearPages enumerates the gear pages within a wasm page.
func WasmPageToGearPages(p WasmPage) []GearPage {
	base := uint32(p) * params.GearPagesInWasmPage
	out := make([]GearPage, params.GearPagesInWasmPage)
	for i := range out {
		out[i] = GearPage(base + uint32(i))
	}
	return out
}

// GearPageToWasmPage returns the wasm page containing gear page p.
func GearPageToWasmPage(p GearPage) WasmPage {
	return WasmPage(uint32(p) / params.GearPagesInWasmPage)
}

// GearPageAddr returns the byte offset of the start of gear page p.
func GearPageAddr(p GearPage) uint32 {
	return uint32(p) * params.GearPageSize
}
