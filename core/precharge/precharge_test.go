package precharge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/instrument"
)

// TestChargeExhaustionAtInstrumentation is concrete scenario 1: with
// instrumentation=100, instrumentation_per_byte=10, code length 50, limit
// 200, allowance 10_000, the pipeline reaches ForInstrumentation with 100
// remaining, attempts to charge 100+10*50=600, and must fail at the
// module-instrumentation stage with burned-gas equal to the counter delta
// before that step.
func TestChargeExhaustionAtInstrumentation(t *testing.T) {
	r := Rules{
		Read:                   50,
		InstrumentationPerByte: 10,
		Instrumentation:        100,
		ReadPerByte:            0,
	}
	counters := gas.NewPair(200, 10_000)

	exports := map[string]bool{"handle": true}
	_, err := ForCodeLength(counters, r, "handle", exports)
	require.NoError(t, err)
	require.NoError(t, ForCode(counters, r, 50))

	burnedBefore := counters.Limit.Burned()

	err = ForInstrumentation(counters, r, 50)
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, StageModuleInstrumentation, execErr.Stage)
	require.Equal(t, burnedBefore, counters.Limit.Burned(), "a failed stage must not mutate the counters")
}

func TestAllowanceExceededIsReQueueable(t *testing.T) {
	r := DefaultRules()
	r.Read = 100
	counters := gas.NewPair(1_000_000, 50)

	err := ForProgram(counters, r)
	require.ErrorIs(t, err, ErrAllowanceExceeded)
	require.Equal(t, uint64(0), counters.Limit.Burned(), "allowance failure must burn nothing")
}

func TestForAllocationsPassesThroughOnZeroCount(t *testing.T) {
	r := DefaultRules()
	counters := gas.NewPair(1000, 1000)
	require.NoError(t, ForAllocations(counters, r, 0))
	require.Equal(t, uint64(0), counters.Limit.Burned())
}

func TestForCodeLengthSkipsUndeclaredExport(t *testing.T) {
	r := DefaultRules()
	counters := gas.NewPair(1000, 1000)
	skip, err := ForCodeLength(counters, r, "handle_signal", map[string]bool{"handle": true})
	require.NoError(t, err)
	require.True(t, skip)
	require.Equal(t, uint64(0), counters.Limit.Burned())
}

// TestPrechargeSequencingStopsAtFirstFailure verifies that when stage k
// fails, later stages are never attempted: Run should return immediately
// with the counters exactly as ForInstrumentation's failure left them.
func TestPrechargeSequencingStopsAtFirstFailure(t *testing.T) {
	r := Rules{Read: 0, Instrumentation: 100, InstrumentationPerByte: 10}
	counters := gas.NewPair(200, 10_000)

	sizes := instrument.SectionSizes{Types: 1_000_000}
	_, err := Run(counters, r, "handle", map[string]bool{"handle": true}, 0, 50, 50, sizes, 1, 0)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, StageModuleInstrumentation, execErr.Stage)
}

func TestRunComputesMemSizeAsMaxOfStaticAndAllocated(t *testing.T) {
	r := Rules{}
	counters := gas.NewPair(1_000_000, 1_000_000)
	outcome, err := Run(counters, r, "init", map[string]bool{"init": true}, 0, 0, 0, instrument.SectionSizes{}, 2, 5)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)
	require.Equal(t, uint32(6), outcome.MemSize)
}
