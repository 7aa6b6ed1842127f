package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/core/instrument"
	"github.com/gearbox/corevm/core/precharge"
	"github.com/gearbox/corevm/engine"
	"github.com/gearbox/corevm/storage"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	mem, err := storage.OpenLevelDBMem()
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	st := storage.NewStore(mem)
	eng := engine.NewStore(context.Background())
	t.Cleanup(func() { eng.Close() })
	return NewDriver(st, eng, precharge.DefaultRules())
}

// TestAllowanceExceededReQueues is concrete scenario 6: a message whose
// execution would overrun the block allowance during precharge_for_program
// leaves the message re-queueable, burns zero gas, and never reaches
// instantiation.
func TestAllowanceExceededReQueues(t *testing.T) {
	d := newTestDriver(t)
	prog := &Program{
		ID:          common.BytesToHash([]byte("prog-1")),
		Exports:     map[string]bool{"handle": true},
		StaticPages: 1,
	}
	disp := Dispatch{MessageID: common.BytesToHash([]byte("msg-1")), Kind: "handle"}

	out, err := d.Run(disp, prog, 1_000_000, 1)
	require.NoError(t, err)
	require.True(t, out.Requeue)
	require.Equal(t, uint64(0), out.GasBurned)
	require.Empty(t, out.WriteAccessedPages)
}

// TestDispatchKindNotExportedSkipsExecution covers precharge_for_code_length's
// short-circuit: a dispatch kind the program never declared as an export
// charges nothing beyond the program/allocation stages and never touches
// the engine.
func TestDispatchKindNotExportedSkipsExecution(t *testing.T) {
	d := newTestDriver(t)
	prog := &Program{
		ID:          common.BytesToHash([]byte("prog-2")),
		Exports:     map[string]bool{"init": true},
		StaticPages: 1,
	}
	disp := Dispatch{MessageID: common.BytesToHash([]byte("msg-2")), Kind: "handle_reply"}

	out, err := d.Run(disp, prog, 1_000_000, 1_000_000)
	require.NoError(t, err)
	require.False(t, out.Requeue)
	require.False(t, out.StageHit)
	require.Greater(t, out.GasBurned, uint64(0), "program+allocation stages still charge")
}

// TestExecutionErrorStageIsReported is concrete scenario 1 at the driver
// level: too small a limit to afford instrumentation produces a
// ModuleInstrumentation-tagged terminal error rather than a silent failure.
func TestExecutionErrorStageIsReported(t *testing.T) {
	d := newTestDriver(t)
	d.rules = precharge.Rules{
		Read:                   0,
		InstrumentationPerByte: 10,
		Instrumentation:        100,
	}
	prog := &Program{
		ID:           common.BytesToHash([]byte("prog-3")),
		Exports:      map[string]bool{"handle": true},
		OriginalCode: make([]byte, 50),
		StaticPages:  1,
		Sections:     instrument.SectionSizes{},
	}
	disp := Dispatch{MessageID: common.BytesToHash([]byte("msg-3")), Kind: "handle"}

	out, err := d.Run(disp, prog, 200, 10_000)
	require.NoError(t, err)
	require.True(t, out.StageHit)
	require.Equal(t, precharge.StageModuleInstrumentation, out.Stage)
}
