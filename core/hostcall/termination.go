package hostcall

import (
	"sync"

	"github.com/gearbox/corevm/core/codes"
)

// TrapReason distinguishes why an Actor trap occurred, matching the
// sub-reasons catalogued in core/codes' SimpleExecutionError.
type TrapReason byte

const (
	TrapUnknown TrapReason = iota
	TrapRanOutOfGas
	TrapMemoryOverflow
	TrapBackendError
	TrapUserspacePanic
	TrapUnreachable
	TrapStackLimitExceeded
)

func (r TrapReason) simpleExecutionError() codes.SimpleExecutionError {
	switch r {
	case TrapRanOutOfGas:
		return codes.RanOutOfGas
	case TrapMemoryOverflow:
		return codes.MemoryOverflow
	case TrapBackendError:
		return codes.BackendError
	case TrapUserspacePanic:
		return codes.UserspacePanic
	case TrapUnreachable:
		return codes.UnreachableInstruction
	case TrapStackLimitExceeded:
		return codes.StackLimitExceeded
	default:
		return codes.ExecutionUnsupported
	}
}

// Kind is the outer shape of a TerminationReason (§7's three error kinds
// plus the successful-actor case).
type Kind byte

const (
	KindActorSuccess Kind = iota
	KindActorTrap
	KindAllowanceExceeded
	KindSystemError
)

// State is the backend's termination-reason object: initialized to
// Actor(Success) and upgraded to Trap(Unknown) if the engine returns
// abnormally while it is still in the Success state (§4.H).
type State struct {
	mu   sync.Mutex
	kind Kind
	trap TrapReason
}

// NewState returns a fresh state initialized to Actor(Success).
func NewState() *State {
	return &State{kind: KindActorSuccess}
}

// Trap records an Actor trap with the given reason, overriding Success.
func (s *State) Trap(reason TrapReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindActorTrap
	s.trap = reason
}

// AllowanceExceeded records the non-terminal, re-queueable outcome.
func (s *State) AllowanceExceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindAllowanceExceeded
}

// SystemError records a fatal engine malfunction.
func (s *State) SystemError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindSystemError
}

// OnAbnormalReturn upgrades a still-Success state to Trap(Unknown); it is a
// no-op if some handler already recorded a more specific reason.
func (s *State) OnAbnormalReturn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == KindActorSuccess {
		s.kind = KindActorTrap
		s.trap = TrapUnknown
	}
}

// Kind reports the current outer shape.
func (s *State) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// ReplyCode renders the current state as the wire ReplyCode a reply
// message header carries, per §6 "termination reason on the wire".
func (s *State) ReplyCode() codes.ReplyCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.kind {
	case KindActorSuccess:
		return codes.Encode(codes.Success{Reason: codes.SuccessAuto})
	case KindActorTrap:
		return codes.Encode(codes.ErrorExecution{Reason: s.trap.simpleExecutionError()})
	default:
		return codes.Encode(codes.Unsupported{})
	}
}
