package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/core/gas"
)

type fakeMem struct {
	buf []byte
}

func (m *fakeMem) Size() uint32 { return uint32(len(m.buf)) }
func (m *fakeMem) ReadAt(offset, size uint32) ([]byte, bool) {
	if uint64(offset)+uint64(size) > uint64(len(m.buf)) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, m.buf[offset:offset+size])
	return out, true
}
func (m *fakeMem) WriteAt(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], data)
	return true
}

type recordingPager struct {
	touches []struct {
		offset, size uint32
		write        bool
	}
}

func (p *recordingPager) ChargeAndTouch(mem GuestMemory, offset, size uint32, write bool) error {
	p.touches = append(p.touches, struct {
		offset, size uint32
		write        bool
	}{offset, size, write})
	return nil
}

func TestZeroSizeRegistrationNeverTouchesOrCharges(t *testing.T) {
	mem := &fakeMem{buf: make([]byte, 64)}
	pager := &recordingPager{}
	mgr := NewAccessManager(mem, pager)

	r := mgr.RegisterRead(10, 0)
	require.Equal(t, 0, len(r.Bytes(mem)))

	require.NoError(t, mgr.PreProcess(gas.NewPair(1000, 1000)))
	require.Empty(t, pager.touches, "zero-size registration must not reach the pager")
}

func TestPreProcessChargesUnionOfReadsAndWrites(t *testing.T) {
	mem := &fakeMem{buf: make([]byte, 64)}
	pager := &recordingPager{}
	mgr := NewAccessManager(mem, pager)

	mgr.RegisterRead(0, 8)
	mgr.RegisterWrite(16, 4)

	require.NoError(t, mgr.PreProcess(gas.NewPair(1000, 1000)))
	require.Len(t, pager.touches, 2)
	require.False(t, pager.touches[0].write)
	require.True(t, pager.touches[1].write)
}

func TestPreProcessRejectsOutOfBoundsInterval(t *testing.T) {
	mem := &fakeMem{buf: make([]byte, 16)}
	pager := &recordingPager{}
	mgr := NewAccessManager(mem, pager)

	mgr.RegisterRead(10, 100)
	err := mgr.PreProcess(gas.NewPair(1000, 1000))
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWriteLengthMismatchPanics(t *testing.T) {
	mem := &fakeMem{buf: make([]byte, 16)}
	pager := &recordingPager{}
	mgr := NewAccessManager(mem, pager)
	w := mgr.RegisterWrite(0, 4)
	require.NoError(t, mgr.PreProcess(gas.NewPair(1000, 1000)))

	require.Panics(t, func() {
		w.Put(mem, []byte{1, 2, 3})
	})
}
