package codes

// SignalCode is a versioned u32 enumeration with fixed assignments, carried
// in signal dispatches (as opposed to ReplyCode, carried in replies).
type SignalCode uint32

const (
	SignalUserPanic          SignalCode = 100
	SignalOutOfGas           SignalCode = 101
	SignalBackendError       SignalCode = 102
	SignalMemoryOverflow     SignalCode = 103
	SignalUnreachable        SignalCode = 104
	SignalStackLimitExceeded SignalCode = 105
	SignalRemovedFromWaitlist SignalCode = 200
)

var validSignalCodes = map[SignalCode]struct{}{
	SignalUserPanic:           {},
	SignalOutOfGas:            {},
	SignalBackendError:        {},
	SignalMemoryOverflow:      {},
	SignalUnreachable:         {},
	SignalStackLimitExceeded:  {},
	SignalRemovedFromWaitlist: {},
}

// ToU32 renders a SignalCode to its wire form.
func (s SignalCode) ToU32() uint32 { return uint32(s) }

// FromU32 parses a wire u32 back into a SignalCode, the inverse of ToU32.
// It reports ok=false for values outside the fixed assignment set, since
// SignalCode (unlike ReplyCode) has no Unsupported catch-all variant.
func FromU32(v uint32) (SignalCode, bool) {
	s := SignalCode(v)
	_, ok := validSignalCodes[s]
	return s, ok
}
