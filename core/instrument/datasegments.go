package instrument

import (
	"errors"
	"fmt"

	"github.com/gearbox/corevm/params"
)

var ErrDataSegmentOverlapsStack = errors.New("instrument: data segment overlaps the stack region")

// CheckDataSegments validates that every active data segment starts at or
// after stackEnd (in bytes) and ends strictly before the static memory
// bound, per §4.D point 4.
func CheckDataSegments(m *Module, stackEndBytes uint32) error {
	staticBound := m.MemoryMinPages * params.WasmPageSize
	for i, seg := range m.Data {
		start := uint32(seg.OffsetExpr)
		end := start + uint32(len(seg.Data))
		if start < stackEndBytes {
			return fmt.Errorf("%w: segment %d starts at %d, before stack end %d", ErrDataSegmentOverlapsStack, i, start, stackEndBytes)
		}
		if end >= staticBound {
			return fmt.Errorf("instrument: segment %d ends at %d, not strictly below static bound %d", i, end, staticBound)
		}
	}
	return nil
}

// StackEndExport derives the canonical __stack_end export: the current
// stack-pointer global's initial value, rounded up to a WASM-page
// boundary.
func StackEndExport(m *Module) (uint32, error) {
	idx := m.StackPointerGlobal
	if int(idx) >= len(m.Globals) {
		return 0, fmt.Errorf("instrument: stack pointer global %d out of range", idx)
	}
	sp := uint32(m.Globals[idx].InitI64)
	return roundUpToPage(sp), nil
}

func roundUpToPage(v uint32) uint32 {
	if v%params.WasmPageSize == 0 {
		return v
	}
	return (v/params.WasmPageSize + 1) * params.WasmPageSize
}

// EmitStackEndExport appends a global export named "__stack_end" pointing
// at a fresh immutable global holding the rounded boundary.
func EmitStackEndExport(m *Module) error {
	end, err := StackEndExport(m)
	if err != nil {
		return err
	}
	idx := uint32(len(m.Globals))
	m.Globals = append(m.Globals, Global{Type: I32, Mutable: false, InitI64: int64(end)})
	m.Exports = append(m.Exports, Export{Name: "__stack_end", Kind: ExportGlobal, Index: idx})
	return nil
}
