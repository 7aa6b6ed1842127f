package common

import "errors"

// Sentinel errors shared across gas accounting, memory management and the
// pre-charge pipeline. Subsystem-specific errors live next to the code that
// raises them; these are the ones more than one package needs to compare
// against with errors.Is.
var (
	// ErrNotEnoughGas is returned whenever a charge would exceed the
	// counter's remaining left() value.
	ErrNotEnoughGas = errors.New("common: not enough gas")

	// ErrNodeNotFound names a gas-tree node id that was never created, or
	// was already fully consumed and pruned. core/gastree's own lookups do
	// not return it; they report gastree.ErrInvalidID instead.
	ErrNodeNotFound = errors.New("common: gas tree node not found")

	// ErrForbidden marks an operation attempted against a node in a state
	// that does not permit it (e.g. consume on a node that tracks no
	// children, such as Cut or UnspecifiedLocal).
	ErrForbidden = errors.New("common: operation forbidden on node")

	// ErrReservationNotFound is returned when a reservation id has no
	// entry in the ledger.
	ErrReservationNotFound = errors.New("common: reservation not found")

	// ErrReservationLimitReached is returned when creating a reservation
	// would exceed the configured cap.
	ErrReservationLimitReached = errors.New("common: reservation limit reached")

	// ErrBufferTooLarge is returned by BoundedBytes when data exceeds its cap.
	ErrBufferTooLarge = errors.New("common: buffer exceeds bound")
)
