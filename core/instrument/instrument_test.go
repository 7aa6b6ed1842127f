package instrument

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCatalogue struct {
	sigs map[string]FuncType
}

func (c fakeCatalogue) Lookup(module, name string) (FuncType, bool) {
	sig, ok := c.sigs[module+"."+name]
	return sig, ok
}

func TestValidateImportsRejectsGlobalAndTableImports(t *testing.T) {
	m := &Module{Imports: []Import{{Module: "env", Name: "g", Kind: ImportGlobal}}}
	require.ErrorIs(t, ValidateImports(m, fakeCatalogue{}), ErrForbiddenImport)

	m2 := &Module{Imports: []Import{{Module: "env", Name: "t", Kind: ImportTable}}}
	require.ErrorIs(t, ValidateImports(m2, fakeCatalogue{}), ErrForbiddenImport)
}

func TestValidateImportsAllowsSingleNamedMemory(t *testing.T) {
	m := &Module{Imports: []Import{
		{Module: "env", Name: "memory", Kind: ImportMemory},
	}}
	require.NoError(t, ValidateImports(m, fakeCatalogue{}))

	m2 := &Module{Imports: []Import{
		{Module: "env", Name: "memory", Kind: ImportMemory},
		{Module: "env", Name: "memory2", Kind: ImportMemory},
	}}
	require.ErrorIs(t, ValidateImports(m2, fakeCatalogue{}), ErrForbiddenImport)
}

func TestValidateImportsChecksCatalogueSignature(t *testing.T) {
	cat := fakeCatalogue{sigs: map[string]FuncType{
		"env.gr_reply": {Params: []ValueType{I32, I32}},
	}}
	m := &Module{Imports: []Import{
		{Module: "env", Name: "gr_reply", Kind: ImportFunc, FuncType: FuncType{Params: []ValueType{I32, I32}}},
	}}
	require.NoError(t, ValidateImports(m, cat))

	bad := &Module{Imports: []Import{
		{Module: "env", Name: "gr_reply", Kind: ImportFunc, FuncType: FuncType{Params: []ValueType{I32}}},
	}}
	require.ErrorIs(t, ValidateImports(bad, cat), ErrUnknownImport)

	unknown := &Module{Imports: []Import{
		{Module: "env", Name: "gr_bogus", Kind: ImportFunc},
	}}
	require.ErrorIs(t, ValidateImports(unknown, cat), ErrUnknownImport)
}

func TestValidateExportsRequiresEntryPoint(t *testing.T) {
	m := &Module{
		Types:     []FuncType{{}},
		Functions: []Function{{TypeIndex: 0}},
		Exports:   []Export{{Name: "state", Kind: ExportFunc, Index: 0}},
	}
	require.ErrorIs(t, ValidateExports(m), ErrMissingEntryExport)

	m.Exports = append(m.Exports, Export{Name: "handle", Kind: ExportFunc, Index: 0})
	require.NoError(t, ValidateExports(m))
}

func TestValidateExportsRejectsUnknownNameAndMutableGlobal(t *testing.T) {
	m := &Module{
		Types:     []FuncType{{}},
		Functions: []Function{{TypeIndex: 0}},
		Exports:   []Export{{Name: "bogus", Kind: ExportFunc, Index: 0}},
	}
	require.ErrorIs(t, ValidateExports(m), ErrInvalidExport)

	m2 := &Module{
		Globals: []Global{{Type: I32, Mutable: true}},
		Exports: []Export{{Name: "counter", Kind: ExportGlobal, Index: 0}},
	}
	require.ErrorIs(t, ValidateExports(m2), ErrMutableGlobalExport)
}

func TestValidateExportsRejectsNonEmptySignature(t *testing.T) {
	m := &Module{
		Types:     []FuncType{{Params: []ValueType{I32}}},
		Functions: []Function{{TypeIndex: 0}},
		Exports:   []Export{{Name: "handle", Kind: ExportFunc, Index: 0}},
	}
	require.ErrorIs(t, ValidateExports(m), ErrInvalidExport)
}

func TestRejectStartSection(t *testing.T) {
	require.NoError(t, RejectStartSection(false))
	require.ErrorIs(t, RejectStartSection(true), ErrHasStartSection)
}

func TestCheckDataSegmentsRejectsStackOverlap(t *testing.T) {
	m := &Module{
		MemoryMinPages: 2,
		Data:           []DataSegment{{OffsetExpr: 10, Data: []byte{1, 2, 3}}},
	}
	require.ErrorIs(t, CheckDataSegments(m, 1024), ErrDataSegmentOverlapsStack)
}

func TestCheckDataSegmentsAcceptsSegmentAfterStackEnd(t *testing.T) {
	m := &Module{
		MemoryMinPages: 2,
		Data:           []DataSegment{{OffsetExpr: 2048, Data: []byte{1, 2, 3}}},
	}
	require.NoError(t, CheckDataSegments(m, 1024))
}

func TestEmitStackEndExportRoundsUpToPageBoundary(t *testing.T) {
	m := &Module{
		MemoryMinPages:     2,
		Globals:            []Global{{Type: I32, Mutable: true, InitI64: 100}},
		StackPointerGlobal: 0,
	}
	require.NoError(t, EmitStackEndExport(m))

	last := m.Exports[len(m.Exports)-1]
	require.Equal(t, "__stack_end", last.Name)
	require.Equal(t, ExportGlobal, last.Kind)
	require.Equal(t, int64(65536), m.Globals[last.Index].InitI64)
	require.False(t, m.Globals[last.Index].Mutable)
}

// TestGasMeteringChargesSumToInstructionCosts is the acyclic-path proof
// obligation: along any straight-line run of instructions the sum of
// injected OpGasCharge operands equals the sum of the original
// instructions' static costs.
func TestGasMeteringChargesSumToInstructionCosts(t *testing.T) {
	body := []Instr{
		{Op: OpOther, Cost: 10},
		{Op: OpOther, Cost: 20},
		{Op: OpCall, Cost: 5},
		{Op: OpOther, Cost: 7},
		{Op: OpReturn, Cost: 1},
	}
	m := &Module{Functions: []Function{{Body: body}}}
	InjectGasMetering(m)

	var chargeSum, instrSum uint64
	for _, in := range m.Functions[0].Body {
		if in.Op == OpGasCharge {
			chargeSum += uint64(in.Operand)
		} else {
			instrSum += in.Cost
		}
	}
	require.Equal(t, instrSum, chargeSum)
}

// TestGasMeteringLoopHeaderChargesFullBodyCost verifies a loop's header
// charge equals the summed cost of its body, since the header is the only
// re-entry point a backward branch can target.
func TestGasMeteringLoopHeaderChargesFullBodyCost(t *testing.T) {
	body := []Instr{
		{Op: OpLoop, Cost: 1},
		{Op: OpOther, Cost: 3},
		{Op: OpOther, Cost: 4},
		{Op: OpBrIf, Cost: 2},
		{Op: OpEnd, Cost: 0},
	}
	m := &Module{Functions: []Function{{Body: body}}}
	InjectGasMetering(m)

	out := m.Functions[0].Body
	require.Equal(t, OpGasCharge, out[0].Op)
	// the loop header's own block covers Loop..BrIf inclusive: 1+3+4+2 = 10.
	require.Equal(t, int64(10), out[0].Operand)
}

func TestStackHeightLimiterWrapsEveryCallSite(t *testing.T) {
	m := &Module{
		Functions: []Function{
			{Locals: []ValueType{I32, I32}, Body: []Instr{{Op: OpCall, Operand: 0}}},
		},
	}
	require.NoError(t, InjectStackHeightLimiter(m, 64))

	body := m.Functions[0].Body
	require.Len(t, body, 3)
	require.Equal(t, OpStackCheck, body[0].Op)
	require.Positive(t, body[0].Operand)
	require.Equal(t, OpCall, body[1].Op)
	require.Equal(t, OpStackCheck, body[2].Op)
	require.Equal(t, -body[0].Operand, body[2].Operand)
}

func TestFrameCostScalesWithLocalCount(t *testing.T) {
	small := FrameCost(Function{Locals: []ValueType{I32}})
	large := FrameCost(Function{Locals: []ValueType{I32, I32, I64, F64}})
	require.Less(t, small, large)
}

func TestComputeSectionSizesIsPositiveForNonEmptyModule(t *testing.T) {
	m := &Module{
		Types:     []FuncType{{Params: []ValueType{I32}}},
		Imports:   []Import{{Module: "env", Name: "memory", Kind: ImportMemory}},
		Functions: []Function{{TypeIndex: 0, Body: []Instr{{Op: OpOther, Cost: 1}}}},
		Exports:   []Export{{Name: "handle", Kind: ExportFunc}},
		Data:      []DataSegment{{Data: []byte{1, 2, 3}}},
	}
	sizes := ComputeSectionSizes(m)
	require.Positive(t, sizes.Total())
}
