// Package precharge implements the staged pre-charge pipeline of SPEC_FULL
// §4.G: a linear sequence of gas deductions performed before a program's
// code is instrumented and instantiated, so that every later, more
// expensive step is known to be affordable before it runs.
package precharge

import (
	"errors"
	"fmt"

	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/instrument"
	"github.com/gearbox/corevm/params"
)

// Stage names one of the six pipeline transitions, used to tag a terminal
// execution error so the collaborator can attribute it.
type Stage uint8

const (
	StageProgramData Stage = iota
	StageAllocations
	StageCodeLength
	StageCode
	StageModuleInstrumentation
	StageModuleInstantiation
)

func (s Stage) String() string {
	switch s {
	case StageProgramData:
		return "program_data"
	case StageAllocations:
		return "allocations"
	case StageCodeLength:
		return "code_length"
	case StageCode:
		return "code"
	case StageModuleInstrumentation:
		return "module_instrumentation"
	case StageModuleInstantiation:
		return "module_instantiation"
	default:
		return "unknown"
	}
}

// ErrAllowanceExceeded is the re-queueable outcome: the block allowance
// counter, not the message's own gas limit, was the blocker. The caller
// must leave the message in the input queue and burn no gas.
var ErrAllowanceExceeded = errors.New("precharge: block allowance exceeded")

// ExecutionError is the terminal outcome: the message's own gas limit was
// exhausted at Stage.
type ExecutionError struct {
	Stage Stage
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("precharge: execution error at stage %s", e.Stage)
}

// Rules carries the cost-table knobs each stage charges against; callers
// normally start from DefaultRules and override for testing or for a
// runtime config loaded via cmd/gearrun's toml file.
type Rules struct {
	Read                       uint64
	LoadAllocationsPerInterval uint64
	ReadPerByte                uint64
	Instrumentation            uint64
	InstrumentationPerByte     uint64
	SectionPerByte             uint64
}

// DefaultRules reflects the reference cost table in params.
func DefaultRules() Rules {
	return Rules{
		Read:                       params.CostProgramLoadBase,
		LoadAllocationsPerInterval: params.CostAllocationsPerEntry,
		ReadPerByte:                params.CostCodePerByte,
		Instrumentation:            params.CostInstrumentationBase,
		InstrumentationPerByte:     10,
		SectionPerByte:             1,
	}
}

func chargeStage(counters *gas.Pair, amount uint64, stage Stage) error {
	switch counters.ChargeBoth(amount) {
	case gas.ChargeOK:
		return nil
	case gas.ChargeAllowanceExceeded:
		return ErrAllowanceExceeded
	default:
		return &ExecutionError{Stage: stage}
	}
}

// ForProgram charges a single storage read for loading the program entity.
func ForProgram(counters *gas.Pair, r Rules) error {
	return chargeStage(counters, r.Read, StageProgramData)
}

// ForAllocations charges for loading the program's allocation map; a
// program with no pages allocated yet pays nothing.
func ForAllocations(counters *gas.Pair, r Rules, count uint32) error {
	if count == 0 {
		return nil
	}
	return chargeStage(counters, r.LoadAllocationsPerInterval*uint64(count)+r.Read, StageAllocations)
}

// ForCodeLength short-circuits to a successful no-op when dispatchKind
// names an export the program never declared — there is nothing to run,
// so no code or instrumentation charges apply. skip reports this case.
func ForCodeLength(counters *gas.Pair, r Rules, dispatchKind string, exports map[string]bool) (skip bool, err error) {
	if !exports[dispatchKind] {
		return true, nil
	}
	return false, chargeStage(counters, r.Read, StageCodeLength)
}

// ForCode charges for reading the program's raw code blob.
func ForCode(counters *gas.Pair, r Rules, codeLen uint32) error {
	return chargeStage(counters, r.Read+r.ReadPerByte*uint64(codeLen), StageCode)
}

// ForInstrumentation charges for running the instrumentation pass over the
// original (pre-instrumented) code.
func ForInstrumentation(counters *gas.Pair, r Rules, originalCodeLen uint32) error {
	return chargeStage(counters, r.Instrumentation+r.InstrumentationPerByte*uint64(originalCodeLen), StageModuleInstrumentation)
}

// ForModuleInstantiation charges per-byte for every declared section and
// computes the program's final memory size as the larger of its static
// page count and one past its highest allocated page.
func ForModuleInstantiation(counters *gas.Pair, r Rules, sizes instrument.SectionSizes, staticPages, lastAllocationPage uint32) (memSize uint32, err error) {
	total := uint64(sizes.Types)+uint64(sizes.Data)+uint64(sizes.Globals)+uint64(sizes.Exports)+uint64(sizes.Functions)+uint64(sizes.Imports)
	if err := chargeStage(counters, r.SectionPerByte*total, StageModuleInstantiation); err != nil {
		return 0, err
	}
	memSize = staticPages
	if lastAllocationPage+1 > memSize {
		memSize = lastAllocationPage + 1
	}
	return memSize, nil
}

// Outcome is the full result of running the pipeline to completion or to
// its first failing stage.
type Outcome struct {
	Skipped bool
	MemSize uint32
}

// Run executes all six stages in order, stopping at the first failure.
// The caller supplies exports and section sizes already known for the
// program; dispatchKind selects which entry point the message targets.
func Run(counters *gas.Pair, r Rules, dispatchKind string, exports map[string]bool, allocCount uint32, codeLen, originalCodeLen uint32, sizes instrument.SectionSizes, staticPages, lastAllocationPage uint32) (Outcome, error) {
	if err := ForProgram(counters, r); err != nil {
		return Outcome{}, err
	}
	if err := ForAllocations(counters, r, allocCount); err != nil {
		return Outcome{}, err
	}
	skip, err := ForCodeLength(counters, r, dispatchKind, exports)
	if err != nil {
		return Outcome{}, err
	}
	if skip {
		return Outcome{Skipped: true}, nil
	}
	if err := ForCode(counters, r, codeLen); err != nil {
		return Outcome{}, err
	}
	if err := ForInstrumentation(counters, r, originalCodeLen); err != nil {
		return Outcome{}, err
	}
	memSize, err := ForModuleInstantiation(counters, r, sizes, staticPages, lastAllocationPage)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{MemSize: memSize}, nil
}
