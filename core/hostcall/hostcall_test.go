package hostcall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/core/codes"
	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/memory"
)

func TestCatalogueCoversAllSevenFamilies(t *testing.T) {
	cat := build()
	want := map[Family]bool{
		FamilyEnvQuery: false, FamilyMessageIO: false, FamilyScheduling: false,
		FamilyReservation: false, FamilyCreation: false, FamilyDebug: false,
		FamilyAllocation: false,
	}
	for _, e := range cat.byName {
		want[e.Family] = true
	}
	for f, seen := range want {
		require.True(t, seen, "family %s has no catalogue entry", f)
	}
}

func TestCatalogueLookupSatisfiesInstrumentCatalogue(t *testing.T) {
	cat := build()
	sig, ok := cat.Lookup("env", "gr_source")
	require.True(t, ok)
	require.Len(t, sig.Params, 1)

	_, ok = cat.Lookup("env", "gr_bogus")
	require.False(t, ok)
}

func TestForDedupesConcurrentBuilds(t *testing.T) {
	key := "store-a"
	Forget(key)
	c1 := For(key)
	c2 := For(key)
	require.Same(t, c1, c2)
	Forget(key)
}

func TestTerminationStateUpgradesSuccessOnAbnormalReturn(t *testing.T) {
	s := NewState()
	require.Equal(t, KindActorSuccess, s.Kind())
	s.OnAbnormalReturn()
	require.Equal(t, KindActorTrap, s.Kind())
	require.Equal(t, codes.Encode(codes.ErrorExecution{Reason: codes.ExecutionUnsupported}), s.ReplyCode())
}

func TestTerminationStateDoesNotOverrideExplicitTrap(t *testing.T) {
	s := NewState()
	s.Trap(TrapRanOutOfGas)
	s.OnAbnormalReturn()
	require.Equal(t, codes.Encode(codes.ErrorExecution{Reason: codes.RanOutOfGas}), s.ReplyCode())
}

func TestDispatchChargesFlatCostAndInvokesHandler(t *testing.T) {
	cat := build()
	counters := gas.NewPair(1_000_000, 1_000_000)
	state := NewState()
	d := NewDispatcher(cat, counters, state)

	called := false
	d.Register("env", "gr_block_height", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		called = true
		return []uint64{42}, nil
	})

	results, code, err := d.Dispatch("env", "gr_block_height", nil, nil, 0)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, uint32(0), code)
	require.Equal(t, []uint64{42}, results)
	require.Greater(t, counters.Limit.Burned(), uint64(0))
}

func TestDispatchFallibleHandlerReturnsCodeWithoutTrapping(t *testing.T) {
	cat := build()
	counters := gas.NewPair(1_000_000, 1_000_000)
	state := NewState()
	d := NewDispatcher(cat, counters, state)

	d.Register("env", "gr_read", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		return nil, &FallibleError{Code: 7}
	})

	_, code, err := d.Dispatch("env", "gr_read", nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(7), code)
	require.Equal(t, KindActorSuccess, state.Kind())
}

func TestDispatchLimitExceededTrapsRanOutOfGas(t *testing.T) {
	cat := build()
	counters := gas.NewPair(10, 1_000_000)
	state := NewState()
	d := NewDispatcher(cat, counters, state)
	d.Register("env", "gr_debug", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		t.Fatal("handler must not run once the flat charge fails")
		return nil, nil
	})

	_, _, err := d.Dispatch("env", "gr_debug", nil, nil, 0)
	require.Error(t, err)
	require.Equal(t, KindActorTrap, state.Kind())
}

func TestDispatchAllowanceExceededDoesNotTrap(t *testing.T) {
	cat := build()
	counters := gas.NewPair(1_000_000, 10)
	state := NewState()
	d := NewDispatcher(cat, counters, state)
	d.Register("env", "gr_debug", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		t.Fatal("handler must not run once the allowance charge fails")
		return nil, nil
	})

	_, _, err := d.Dispatch("env", "gr_debug", nil, nil, 0)
	require.Error(t, err)
	require.Equal(t, KindAllowanceExceeded, state.Kind())
}

func TestDispatchRejectsOversizedPayload(t *testing.T) {
	cat := build()
	counters := gas.NewPair(1_000_000, 1_000_000)
	state := NewState()
	d := NewDispatcher(cat, counters, state)
	d.Register("env", "gr_read", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		t.Fatal("handler must not run for an oversized payload")
		return nil, nil
	})

	_, code, err := d.Dispatch("env", "gr_read", nil, nil, 1<<21)
	require.NoError(t, err)
	require.Equal(t, uint32(1), code)
}
