package codes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplyCodeScenarios(t *testing.T) {
	assert.Equal(t, ReplyCode{1, 0, 0, 0}, Encode(ErrorExecution{Reason: RanOutOfGas}))
	assert.Equal(t, ReplyCode{1, 3, 0, 0}, Encode(ErrorRemovedFromWaitlist{}))
	assert.Equal(t, ReplyCode{0, 0, 0, 0}, Encode(Success{Reason: SuccessAuto}))
}

func TestReplyCodeRoundTrip(t *testing.T) {
	variants := []Code{
		Success{Reason: SuccessAuto},
		Success{Reason: SuccessManual},
		ErrorExecution{Reason: RanOutOfGas},
		ErrorExecution{Reason: StackLimitExceeded},
		ErrorUnavailableActor{Reason: Uninitialized},
		ErrorRemovedFromWaitlist{},
		Unsupported{},
	}
	for _, v := range variants {
		got := Decode(Encode(v))
		assert.Equal(t, v, got)
	}
}

func TestReplyCodeUnknownDiscriminantIsUnsupported(t *testing.T) {
	for _, b := range []byte{2, 10, 254} {
		assert.Equal(t, Unsupported{}, Decode(ReplyCode{b, 0, 0, 0}))
	}
}

func TestReplyCodeHistoricalReservedBytesAreUnsupported(t *testing.T) {
	assert.Equal(t, Unsupported{}, Decode(ReplyCode{1, 1, 0, 0}))
	assert.Equal(t, Unsupported{}, Decode(ReplyCode{1, 4, 0, 0}))
}

func TestSignalCodeRoundTrip(t *testing.T) {
	all := []SignalCode{
		SignalUserPanic, SignalOutOfGas, SignalBackendError,
		SignalMemoryOverflow, SignalUnreachable, SignalStackLimitExceeded,
		SignalRemovedFromWaitlist,
	}
	for _, s := range all {
		got, ok := FromU32(s.ToU32())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
}

func TestSignalCodeUnknownIsRejected(t *testing.T) {
	_, ok := FromU32(999)
	assert.False(t, ok)
}
