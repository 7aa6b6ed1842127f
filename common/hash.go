// Copyright 2014 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the width in bytes of every id type in this package: program
// ids, message ids, gas-tree node ids and reservation ids are all 32-byte
// values produced by the collaborator's hashing scheme.
const HashLength = 32

// Hash is a 32-byte identifier. ProgramID, MessageID, NodeID and
// ReservationID are all defined in terms of it so that gas-tree and
// reservation code can move freely between the id spaces the spec
// distinguishes only by role, not by representation.
type Hash [HashLength]byte

// ProgramID identifies a persisted WASM program (actor).
type ProgramID = Hash

// MessageID identifies a single dispatch in a cascade.
type MessageID = Hash

// NodeID identifies a node in the gas tree (§3, §4.E).
type NodeID = Hash

// ReservationID identifies a reservation slot (§3, §4.F).
type ReservationID = Hash

// ExternalID identifies the end-user or program that owns the root of a
// gas cascade (the GLOSSARY's "External id").
type ExternalID = Hash

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool { return h == Hash{} }

// String renders the hash as a 0x-prefixed hex string.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Hex is an alias of String kept for parity with the teacher's Address/Hash API.
func (h Hash) Hex() string { return h.String() }

func (h Hash) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, "%"+string(c), h.Bytes())
}
