package memory

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/VictoriaMetrics/fastcache"
	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/params"
	"github.com/gearbox/corevm/storage"
)

// Exit status recorded when a charge fails during access processing
// (§4.C "If a charge fails during signal processing..."); Status reports
// it. core/processor does not read it.
type ExitStatus uint8

const (
	ExitOK ExitStatus = iota
	ExitGasLimitExceeded
	ExitGasAllowanceExceeded
)

// LazyPagesContext is the per-execution context of §4.C: a real OS-backed
// mmap region standing in for the guest's linear memory, with protection
// state and accessed/write-accessed tracking. A hardware SIGSEGV handler
// cannot be interposed from pure Go against a wazero-hosted guest (wazero
// never lets a raw load/store fault reach host code), so every access is
// instead mediated explicitly by ChargeAndTouch, called by the access
// manager for host-call registrations; guest loads and stores that wazero
// executes itself do not pass through this context. See DESIGN.md
// for the rationale; the charge rules and resulting accessed/write-accessed
// sets are bit-for-bit what §4.C specifies.
type LazyPagesContext struct {
	region       mmap.MMap
	size         uint32 // bytes
	stackEndPage WasmPage

	accessed      *roaring.Bitmap
	writeAccessed *roaring.Bitmap

	programID common.ProgramID
	store     *storage.Store
	cache     *fastcache.Cache

	status ExitStatus
}

// NewLazyPagesContext allocates an anonymous mmap region of wasmPages wasm
// pages, protects everything from stackEndPage onward as no-access (pages
// below stackEndPage are stack pages, never charged and never paged in, so
// they're left read/write from the start), and opens a gear-page cache.
func NewLazyPagesContext(programID common.ProgramID, wasmPages uint32, stackEndPage WasmPage, store *storage.Store, cache *fastcache.Cache) (*LazyPagesContext, error) {
	size := wasmPages * params.WasmPageSize
	region, err := mmap.MapRegion(nil, int(size), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("memory: mmap %d bytes: %w", size, err)
	}
	stackBytes := uint32(stackEndPage) * params.WasmPageSize
	if stackBytes < size {
		if err := unix.Mprotect(region[stackBytes:], unix.PROT_NONE); err != nil {
			return nil, fmt.Errorf("memory: mprotect no-access range: %w", err)
		}
	}
	return &LazyPagesContext{
		region:        region,
		size:          size,
		stackEndPage:  stackEndPage,
		accessed:      roaring.New(),
		writeAccessed: roaring.New(),
		programID:     programID,
		store:         store,
		cache:         cache,
	}, nil
}

func (c *LazyPagesContext) Close() error { return c.region.Unmap() }

// Size implements GuestMemory.
func (c *LazyPagesContext) Size() uint32 { return c.size }

func (c *LazyPagesContext) ReadAt(offset, size uint32) ([]byte, bool) {
	if uint64(offset)+uint64(size) > uint64(c.size) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, c.region[offset:offset+size])
	return out, true
}

func (c *LazyPagesContext) WriteAt(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(c.size) {
		return false
	}
	copy(c.region[offset:], data)
	return true
}

func (c *LazyPagesContext) isStackPage(p GearPage) bool {
	return GearPageToWasmPage(p) < c.stackEndPage
}

// ChargeAndTouch implements PageCharger, applying the signal_read /
// signal_write / signal_write_after_read rules of §4.C to every gear page
// covered by [offset, offset+size). Stack pages are skipped entirely.
func (c *LazyPagesContext) ChargeAndTouch(mem GuestMemory, offset, size uint32, write bool) error {
	return c.chargeRange(nil, offset, size, write, false)
}

// ChargeHostFunc applies the host_func_read / host_func_write /
// host_func_write_after_read mirror rules, charged up front from a
// syscall's own gas budget rather than the generic access-manager path.
func (c *LazyPagesContext) ChargeHostFunc(counters *gas.Pair, offset, size uint32, write bool) error {
	return c.chargeRange(counters, offset, size, write, true)
}

func (c *LazyPagesContext) chargeRange(counters *gas.Pair, offset, size uint32, write, hostFunc bool) error {
	if size == 0 {
		return nil
	}
	first := AddrToGearPage(offset)
	last := AddrToGearPage(offset + size - 1)
	for p := first; p <= last; p++ {
		if c.isStackPage(p) {
			continue
		}
		if err := c.touchOne(counters, p, write, hostFunc); err != nil {
			return err
		}
	}
	return nil
}

func (c *LazyPagesContext) touchOne(counters *gas.Pair, p GearPage, write, hostFunc bool) error {
	alreadyAccessed := c.accessed.Contains(uint32(p))
	alreadyWriteAccessed := c.writeAccessed.Contains(uint32(p))

	if write && alreadyWriteAccessed {
		// Forbidden to recharge a page already write-accessed this
		// execution: it's already fully paid for and unprotected.
		return nil
	}

	var cost uint64
	switch {
	case !write && !alreadyAccessed:
		cost = pick(hostFunc, params.CostHostFuncRead, params.CostSignalRead)
	case write && !alreadyAccessed:
		cost = pick(hostFunc, params.CostHostFuncWrite, params.CostSignalWrite)
	case write && alreadyAccessed:
		cost = pick(hostFunc, params.CostHostFuncWriteAfterRead, params.CostSignalWriteAfterRead)
	default:
		// read of an already-accessed page: nothing new to load or
		// unprotect, no charge.
		c.accessed.Add(uint32(p))
		return nil
	}

	loadCost := uint64(0)
	if !alreadyAccessed {
		if data, ok := c.loadPersisted(p); ok && len(data) > 0 {
			loadCost = params.CostLoadPageStorageData
			copy(c.region[GearPageAddr(p):], data)
		}
	}
	total := cost + loadCost

	if counters != nil {
		switch counters.ChargeBoth(total) {
		case gas.ChargeLimitExceeded:
			c.status = ExitGasLimitExceeded
			return fmt.Errorf("memory: %w", common.ErrNotEnoughGas)
		case gas.ChargeAllowanceExceeded:
			c.status = ExitGasAllowanceExceeded
			return fmt.Errorf("memory: %w", common.ErrNotEnoughGas)
		}
	}

	if err := c.unprotect(p, write); err != nil {
		return err
	}
	c.accessed.Add(uint32(p))
	if write {
		c.writeAccessed.Add(uint32(p))
	}
	return nil
}

func pick(hostFunc bool, a, b uint64) uint64 {
	if hostFunc {
		return a
	}
	return b
}

func (c *LazyPagesContext) unprotect(p GearPage, write bool) error {
	start := GearPageAddr(p)
	end := start + params.GearPageSize
	if end > c.size {
		end = c.size
	}
	prot := unix.PROT_READ
	if write {
		prot |= unix.PROT_WRITE
	}
	return unix.Mprotect(c.region[start:end], prot)
}

func (c *LazyPagesContext) loadPersisted(p GearPage) ([]byte, bool) {
	key := storage.ProgramPageKey(c.programID.Bytes(), uint32(p))
	if c.cache != nil {
		if v, ok := c.cache.HasGet(nil, key); ok {
			return v, true
		}
	}
	v, err := c.store.Get(storage.ProgramPrefix, key)
	if err != nil || v == nil {
		return nil, false
	}
	if c.cache != nil {
		c.cache.Set(key, v)
	}
	return v, true
}

// Status reports whether the most recent access charge failed, and why.
func (c *LazyPagesContext) Status() ExitStatus { return c.status }

// AccessedPages returns the sorted set of gear pages touched (read or
// written) this execution.
func (c *LazyPagesContext) AccessedPages() []uint32 { return c.accessed.ToArray() }

// WriteAccessedPages returns the sorted set of gear pages written this
// execution — the only ones that need uploading back to storage.
func (c *LazyPagesContext) WriteAccessedPages() []uint32 { return c.writeAccessed.ToArray() }

// UploadDirtyPages persists every write-accessed page's current bytes,
// minimizing I/O by skipping pages that were only read.
func (c *LazyPagesContext) UploadDirtyPages() error {
	for _, idx := range c.writeAccessed.ToArray() {
		p := GearPage(idx)
		key := storage.ProgramPageKey(c.programID.Bytes(), uint32(p))
		start := GearPageAddr(p)
		end := start + params.GearPageSize
		if end > c.size {
			end = c.size
		}
		if err := c.store.Put(storage.ProgramPrefix, key, c.region[start:end]); err != nil {
			return err
		}
		if c.cache != nil {
			c.cache.Set(key, c.region[start:end])
		}
	}
	return nil
}
