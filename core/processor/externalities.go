package processor

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/memory"
)

// driverExternalities implements core/env.Externalities: the minimal
// capability set §4.I requires of its caller (set_gas_left is handled by
// the façade itself via the gas-global write, so only the read-side
// capabilities need to be supplied here).
type driverExternalities struct {
	counters           *gas.Pair
	minPages, maxPages uint32
}

func (e driverExternalities) GasAmount() uint64 { return e.counters.Limit.Left() }

func (e driverExternalities) MemoryPages() (min, max uint32) { return e.minPages, e.maxPages }

func (e driverExternalities) PreProcessMemoryAccesses(access *memory.AccessManager, counters *gas.Pair) error {
	return access.PreProcess(counters)
}

// sharedFastcache is the gear-page hot cache of SPEC_FULL's domain stack
// table ("Gear-page hot cache" row): one process-wide cache shared across
// dispatches, sized generously since page payloads are small and frequently
// re-read within a block.
var (
	fastcacheOnce sync.Once
	fastcacheInst *fastcache.Cache
)

func sharedFastcache() *fastcache.Cache {
	fastcacheOnce.Do(func() {
		fastcacheInst = fastcache.New(32 * 1024 * 1024)
	})
	return fastcacheInst
}
