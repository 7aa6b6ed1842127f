package memory

import (
	"testing"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/storage"
)

func newTestCtx(t *testing.T) *LazyPagesContext {
	t.Helper()
	db, err := storage.OpenLevelDBMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cache := fastcache.New(1 << 20)
	ctx, err := NewLazyPagesContext(common.BytesToHash([]byte("prog")), 2, WasmPage(0), storage.NewStore(db), cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func TestLazyWriteAfterReadChargesOnce(t *testing.T) {
	counters := gas.NewPair(1_000_000, 1_000_000)

	ctx2 := newTestCtx(t)
	require.NoError(t, ctx2.ChargeHostFunc(counters, 0, 8, false))
	burned1 := counters.Limit.Burned()
	require.NoError(t, ctx2.ChargeHostFunc(counters, 0, 8, true))
	burned2 := counters.Limit.Burned()
	require.Greater(t, burned2, burned1)

	pages := ctx2.WriteAccessedPages()
	require.Len(t, pages, 1, "the page must appear exactly once in write_accessed")

	// A third charge on the same page, now write-accessed, must be free.
	require.NoError(t, ctx2.ChargeHostFunc(counters, 0, 8, true))
	require.Equal(t, burned2, counters.Limit.Burned())
}

func TestZeroSizeAccessNeverCharges(t *testing.T) {
	ctx := newTestCtx(t)
	counters := gas.NewPair(1000, 1000)
	require.NoError(t, ctx.ChargeHostFunc(counters, 0, 0, true))
	require.Equal(t, uint64(0), counters.Limit.Burned())
	require.Empty(t, ctx.AccessedPages())
}

func TestStackPagesNeverCharged(t *testing.T) {
	db, err := storage.OpenLevelDBMem()
	require.NoError(t, err)
	defer db.Close()
	ctx, err := NewLazyPagesContext(common.BytesToHash([]byte("prog2")), 2, WasmPage(1), storage.NewStore(db), nil)
	require.NoError(t, err)
	defer ctx.Close()

	counters := gas.NewPair(1000, 1000)
	// Address 0 falls within wasm page 0, below the stack-end page (1).
	require.NoError(t, ctx.ChargeHostFunc(counters, 0, 8, true))
	require.Equal(t, uint64(0), counters.Limit.Burned())
	require.Empty(t, ctx.AccessedPages())
}
