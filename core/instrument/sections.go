package instrument

// SectionSizes reports an approximate byte size for each module section.
// precharge.ForModuleInstantiation charges a per-byte cost on their total;
// no per-section size cap is checked against them. Sizes are computed from
// the IR, not from a real
// binary encoding, so they are an estimate rather than the exact encoded
// byte count.
type SectionSizes struct {
	Types     uint32
	Imports   uint32
	Functions uint32
	Globals   uint32
	Exports   uint32
	Data      uint32
}

func (s SectionSizes) Total() uint32 {
	return s.Types + s.Imports + s.Functions + s.Globals + s.Exports + s.Data
}

// ComputeSectionSizes walks the IR and estimates each section's size.
func ComputeSectionSizes(m *Module) SectionSizes {
	var s SectionSizes
	for _, t := range m.Types {
		s.Types += uint32(2 + len(t.Params) + len(t.Results))
	}
	for _, im := range m.Imports {
		s.Imports += uint32(len(im.Module) + len(im.Name) + 2)
	}
	for _, fn := range m.Functions {
		s.Functions += uint32(len(fn.Locals) + len(fn.Body)*2 + 1)
	}
	s.Globals += uint32(len(m.Globals) * 9)
	for _, ex := range m.Exports {
		s.Exports += uint32(len(ex.Name) + 5)
	}
	for _, d := range m.Data {
		s.Data += uint32(len(d.Data) + 8)
	}
	return s
}
