package gastree

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
)

// encode renders a GasNode to its canonical persisted form: a fixed-layout
// binary record, since the node shape is closed and known (no reflective
// codec is needed for it, unlike the variable program-page payloads that
// storage.CompressingStore handles separately).
func encode(n *GasNode) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, byte(n.Kind))
	buf = append(buf, n.ExternalID.Bytes()...)
	buf = append(buf, n.Parent.Bytes()...)
	buf = append(buf, n.Root.Bytes()...)
	buf = appendU256(buf, &n.Value)
	for i := range n.LockArr {
		buf = appendU256(buf, &n.LockArr[i])
	}
	buf = appendU256(buf, &n.SystemReserve)
	buf = appendU32(buf, n.Refs.Spec)
	buf = appendU32(buf, n.Refs.Unspec)
	buf = append(buf, boolByte(n.Consumed), boolByte(n.Deposit))
	buf = appendU64(buf, n.Multiplier)
	return buf
}

// decode parses bytes produced by encode back into a GasNode.
func decode(data []byte) (*GasNode, error) {
	const fixedLen = 1 + common.HashLength*3 + 32*(1+5+1) + 4 + 4 + 1 + 1 + 8
	if len(data) != fixedLen {
		return nil, fmt.Errorf("gastree: corrupt node record: want %d bytes, got %d", fixedLen, len(data))
	}
	n := new(GasNode)
	off := 0
	n.Kind = Kind(data[off])
	off++
	n.ExternalID = common.BytesToHash(data[off : off+common.HashLength])
	off += common.HashLength
	n.Parent = common.BytesToHash(data[off : off+common.HashLength])
	off += common.HashLength
	n.Root = common.BytesToHash(data[off : off+common.HashLength])
	off += common.HashLength
	off = readU256(data, off, &n.Value)
	for i := range n.LockArr {
		off = readU256(data, off, &n.LockArr[i])
	}
	off = readU256(data, off, &n.SystemReserve)
	n.Refs.Spec = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	n.Refs.Unspec = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	n.Consumed = data[off] != 0
	off++
	n.Deposit = data[off] != 0
	off++
	n.Multiplier = binary.BigEndian.Uint64(data[off : off+8])
	return n, nil
}

func appendU256(buf []byte, v *uint256.Int) []byte {
	b := v.Bytes32()
	return append(buf, b[:]...)
}

func readU256(data []byte, off int, v *uint256.Int) int {
	v.SetBytes32(data[off : off+32])
	return off + 32
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
