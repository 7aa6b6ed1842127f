package gastree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/common"
)

func TestReservationReuseIsRejected(t *testing.T) {
	messageID := common.BytesToHash([]byte("msg1"))
	l := NewLedger(messageID, 0, nil)

	id, err := l.Reserve(u256(1), 1)
	require.NoError(t, err)
	require.NoError(t, l.MarkUsed(id))

	_, _, err = l.Unreserve(id)
	require.ErrorIs(t, err, common.ErrReservationNotFound)
}

func TestReservationNonceStability(t *testing.T) {
	messageID := common.BytesToHash([]byte("msg2"))

	l1 := NewLedger(messageID, 0, nil)
	id1, err := l1.Reserve(u256(10), 5)
	require.NoError(t, err)
	id2, err := l1.Reserve(u256(20), 5)
	require.NoError(t, err)

	// Re-executing the same message from scratch (same starting nonce)
	// must reproduce the same id sequence.
	l2 := NewLedger(messageID, 0, nil)
	rid1, err := l2.Reserve(u256(10), 5)
	require.NoError(t, err)
	rid2, err := l2.Reserve(u256(20), 5)
	require.NoError(t, err)

	require.Equal(t, id1, rid1)
	require.Equal(t, id2, rid2)
}

func TestReservationCapEnforced(t *testing.T) {
	messageID := common.BytesToHash([]byte("msg3"))
	l := NewLedger(messageID, 0, nil)
	l.maxSlots = 2

	_, err := l.Reserve(u256(1), 1)
	require.NoError(t, err)
	_, err = l.Reserve(u256(1), 1)
	require.NoError(t, err)

	_, err = l.Reserve(u256(1), 1)
	require.ErrorIs(t, err, common.ErrReservationLimitReached)
}

func TestUnreserveCreatedYieldsReimbursement(t *testing.T) {
	messageID := common.BytesToHash([]byte("msg4"))
	l := NewLedger(messageID, 0, nil)
	id, err := l.Reserve(u256(50), 7)
	require.NoError(t, err)

	amount, reimb, err := l.Unreserve(id)
	require.NoError(t, err)
	require.NotNil(t, reimb)
	require.Equal(t, uint64(7), reimb.Duration)
	require.Equal(t, uint64(50), amount.Uint64())

	_, ok := l.Get(id)
	require.False(t, ok)
}

func TestUnreserveExistsBecomesRemoved(t *testing.T) {
	messageID := common.BytesToHash([]byte("msg5"))
	l := NewLedger(messageID, 0, nil)
	id, err := l.Reserve(u256(50), 7)
	require.NoError(t, err)
	require.NoError(t, l.Resolve(id, 100, 107))

	_, reimb, err := l.Unreserve(id)
	require.NoError(t, err)
	require.Nil(t, reimb)

	r, ok := l.Get(id)
	require.True(t, ok)
	require.Equal(t, StateRemoved, r.State)
}
