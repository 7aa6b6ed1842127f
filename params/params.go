// Copyright 2017 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package params

import "github.com/c2h5oh/datasize"

// WASM page size, fixed by the wasm spec at 64KiB.
const WasmPageSize = 64 * 1024

// GearPageSize is the granularity at which the lazy-page engine tracks
// accesses and charges gas; several gear pages fit in one wasm page.
const GearPageSize = 16 * 1024

// GearPagesInWasmPage is the fixed ratio between the two page grains.
const GearPagesInWasmPage = WasmPageSize / GearPageSize

// HostPageSize mirrors the OS page size assumed by the lazy-pages signal
// handler design; Linux/amd64 and arm64 both use 4KiB.
var HostPageSize = datasize.ByteSize(4 * 1024)

// MaxPages bounds how many wasm pages a single program's memory may grow
// to, preventing an unbounded mmap reservation per execution.
const MaxPages = 512

// LockPurpose enumerates the reasons a gas-tree consume may be withheld
// from immediate refund (§4.E "lock/unlock").
type LockPurpose uint8

const (
	LockNone LockPurpose = iota
	LockMailbox
	LockWaitlist
	LockReservation
	LockDispatchStash

	// NumLockPurposes sizes the fixed lock array carried by every gas-tree
	// node; must stay last in this block.
	NumLockPurposes
)

func (p LockPurpose) String() string {
	switch p {
	case LockMailbox:
		return "mailbox"
	case LockWaitlist:
		return "waitlist"
	case LockReservation:
		return "reservation"
	case LockDispatchStash:
		return "dispatch_stash"
	default:
		return "none"
	}
}

// MaxReservations bounds the number of live reservations a single program
// may hold at once (§4.F "cap enforcement").
const MaxReservations = 256

// MaxStackHeight is the maxHeight cmd/gearrun passes to the
// instrumentation pass's call-site limiter (§4.D "stack-height limiter"),
// which uses it as the stack-height cost of every indirect call.
const MaxStackHeight = 64 * 1024

// DefaultStackPointerInit is the shadow-stack-pointer global's assumed
// initial value for a program whose instrumentation metadata doesn't carry
// its own, matching the 64KiB default Rust's wasm32-unknown-unknown target
// reserves for the shadow stack.
const DefaultStackPointerInit = 64 * 1024

// Catalogue gas costs, expressed per syscall family (§4.H). These are
// reference defaults fixed at compile time; cmd/gearrun's toml config
// overrides only the pre-charge rules, not these.
const (
	CostEnvQueryBase       = 100
	CostMessageIOBase      = 500
	CostMessageIOPerByte   = 1
	CostSchedulingBase     = 1_000
	CostReservationBase    = 2_500
	CostCreationBase       = 5_000
	CostDebugBase          = 50
	CostAllocationPerPage  = 10_000
	CostFreePerPage        = 1_000
)

// Pre-charge pipeline stage costs (§4.G), field-for-field with the staged
// formulas: a fixed base plus a per-unit term.
const (
	CostProgramLoadBase     = 1_000
	CostAllocationsPerEntry = 100
	CostCodeLenBase         = 100
	CostCodePerByte         = 1
	CostInstrumentationBase = 10_000
	CostMemoryGrowPerPage   = CostAllocationPerPage
)

// Lazy-page engine per-operation costs (§4.C).
const (
	CostSignalRead           = 2_000
	CostSignalWrite          = 3_000
	CostSignalWriteAfterRead = 1_500
	CostLoadPageStorageData  = 500
	CostHostFuncRead         = 2_000
	CostHostFuncWrite        = 3_000
	CostHostFuncWriteAfterRead = 1_500
)
