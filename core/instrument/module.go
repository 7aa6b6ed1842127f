// Package instrument implements the WASM instrumentation pass of
// SPEC_FULL §4.D: import/export validation, start-section rejection,
// data-segment checks, a canonical __stack_end export, gas-metering
// injection, and a call-wrapping stack-height limiter.
//
// It operates over a parsed intermediate representation (Module) rather
// than raw WASM bytes: a full byte-level encoder/decoder is a large
// undertaking on its own and orthogonal to the charge-placement algorithms
// this package exists to demonstrate (see DESIGN.md). The package has no
// decoder: callers build a Module themselves and run the passes on it.
package instrument

// ValueType is a WASM value type.
type ValueType byte

const (
	I32 ValueType = iota
	I64
	F32
	F64
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (f FuncType) isEmpty() bool { return len(f.Params) == 0 && len(f.Results) == 0 }

// Import is a single imported entity.
type Import struct {
	Module, Name string
	Kind         ImportKind
	FuncType     FuncType // meaningful when Kind == ImportFunc
}

type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportGlobal
	ImportTable
	ImportMemory
)

// Export is a single exported entity.
type Export struct {
	Name string
	Kind ExportKind
	Index uint32
}

type ExportKind byte

const (
	ExportFunc ExportKind = iota
	ExportGlobal
	ExportMemory
	ExportTable
)

// Global is a module-defined global.
type Global struct {
	Type    ValueType
	Mutable bool
	InitI64 int64
}

// DataSegment is a passive or active data initializer.
type DataSegment struct {
	OffsetExpr int64 // constant i32 offset (active segments only, matching §4.D scope)
	Data       []byte
}

// Instr is one instruction in a function body's flattened IR. Branch
// targets are block-relative indices into Body for Br/BrIf/Loop headers;
// the metering and stack-limiter passes only need instruction boundaries,
// call sites, and branch targets, not a full opcode set.
type Instr struct {
	Op      Op
	Operand int64  // immediate, call target function index, or branch depth
	Cost    uint64 // static cost of this single instruction, from the cost table
}

type Op byte

const (
	OpNop Op = iota
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpReturn
	OpCall
	OpCallIndirect
	OpOther
	// OpGasCharge is synthetic: the gas-metering pass inserts it at every
	// metered block's entry point. Operand holds the block's summed cost.
	OpGasCharge
	// OpStackCheck is synthetic: the stack-height limiter inserts it at
	// every call site's preamble and postamble. Operand holds the call's
	// stack-height cost (the callee's frame cost for a direct call, the
	// limiter's maxHeight for an indirect call), negated in the postamble.
	OpStackCheck
)

// Function is a module-defined function: its signature index, locals
// beyond the parameters, and its flattened instruction stream.
type Function struct {
	TypeIndex uint32
	Locals    []ValueType
	Body      []Instr
}

// Module is the parsed form the instrumentation pass transforms in place.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []Function
	Globals   []Global
	Exports   []Export
	Data      []DataSegment

	MemoryMinPages uint32
	MemoryMaxPages uint32 // 0 means unbounded

	// StackPointerGlobal is the index of the guest's shadow-stack-pointer
	// global, used to derive __stack_end.
	StackPointerGlobal uint32
}

// FuncIndexSpace returns the total number of functions (imported + local),
// the index space calls and exports address into.
func (m *Module) FuncIndexSpace() int {
	n := 0
	for _, im := range m.Imports {
		if im.Kind == ImportFunc {
			n++
		}
	}
	return n + len(m.Functions)
}
