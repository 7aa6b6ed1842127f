package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gearbox/corevm/core/gas"
)

var (
	// ErrOutOfBounds is returned when a registered interval lies outside
	// current memory size.
	ErrOutOfBounds = errors.New("memory: access out of bounds")

	// ErrDecode is returned when a decoded read's bytes are rejected by
	// the type's canonical decoder.
	ErrDecode = errors.New("memory: decode failed")
)

// interval is a registered access: size 0 is valid and denotes a no-op,
// per §4.B "zero-sized registrations are discarded" (they're kept here so
// callers can still retrieve a zero-length Read/Write handle, but they
// never reach the charged union and never touch memory).
type interval struct {
	offset uint32
	size   uint32
}

// Read is a handle to a previously registered, now pre-processed, read
// interval; Bytes copies out of guest memory.
type Read struct{ offset, size uint32 }

// Write is the write-side counterpart of Read.
type Write struct{ offset, size uint32 }

// Decoder canonically decodes bytes into T; U32Decoder and U64Decoder in
// this file are the ones this package supplies.
type Decoder[T any] func([]byte) (T, error)

// GuestMemory is the minimal surface the access manager needs from the
// engine's instantiated linear memory.
type GuestMemory interface {
	Size() uint32
	ReadAt(offset, size uint32) ([]byte, bool)
	WriteAt(offset uint32, data []byte) bool
}

// PageCharger prices and applies the per-page charges of the lazy-page
// engine for a batch of addresses; core/memory's LazyPagesContext is the
// concrete implementation, kept as an interface so AccessManager can be
// unit-tested without mmap'd memory.
type PageCharger interface {
	ChargeAndTouch(mem GuestMemory, offset, size uint32, write bool) error
}

// AccessManager implements §4.B: two ordered lists of registered intervals,
// pre-processed together by PreProcess. It does not stop bytes moving
// through Mem before PreProcess has run.
type AccessManager struct {
	reads  []interval
	writes []interval
	pager  PageCharger
	mem    GuestMemory
}

func NewAccessManager(mem GuestMemory, pager PageCharger) *AccessManager {
	return &AccessManager{mem: mem, pager: pager}
}

// Mem exposes the underlying guest memory so a handler that has already
// registered a Read/Write against this manager can resolve it with
// Read.Bytes/Write.Put without the caller having to thread the engine's
// memory reference through separately.
func (m *AccessManager) Mem() GuestMemory { return m.mem }

// RegisterRead records a read interval, discarding zero-sized ones rather
// than adding them to the charged union.
func (m *AccessManager) RegisterRead(offset, size uint32) Read {
	if size > 0 {
		m.reads = append(m.reads, interval{offset, size})
	}
	return Read{offset, size}
}

// RegisterReadAs registers exactly width bytes at offset, the fixed encoded
// width of the value read (e.g. 4 for u32, 8 for u64).
func RegisterReadAs(m *AccessManager, offset uint32, width uint32) Read {
	return m.RegisterRead(offset, width)
}

// RegisterReadDecoded registers maxLen bytes — the maximum encoded length
// of T — for a later decode.
func RegisterReadDecoded(m *AccessManager, offset uint32, maxLen uint32) Read {
	return m.RegisterRead(offset, maxLen)
}

// RegisterWrite records a write interval, discarding zero-sized ones.
func (m *AccessManager) RegisterWrite(offset, size uint32) Write {
	if size > 0 {
		m.writes = append(m.writes, interval{offset, size})
	}
	return Write{offset, size}
}

func RegisterWriteAs(m *AccessManager, offset uint32, width uint32) Write {
	return m.RegisterWrite(offset, width)
}

// PreProcess charges for the union of registered reads and writes in one
// atomic step, then clears both lists regardless of outcome (so a failed
// pre-process never leaves half-charged state lying around for reuse).
func (m *AccessManager) PreProcess(counters *gas.Pair) error {
	defer func() {
		m.reads = m.reads[:0]
		m.writes = m.writes[:0]
	}()

	memSize := m.mem.Size()
	for _, iv := range m.reads {
		if err := m.checkBounds(iv, memSize); err != nil {
			return err
		}
	}
	for _, iv := range m.writes {
		if err := m.checkBounds(iv, memSize); err != nil {
			return err
		}
	}

	for _, iv := range m.reads {
		if err := m.pager.ChargeAndTouch(m.mem, iv.offset, iv.size, false); err != nil {
			return err
		}
	}
	for _, iv := range m.writes {
		if err := m.pager.ChargeAndTouch(m.mem, iv.offset, iv.size, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *AccessManager) checkBounds(iv interval, memSize uint32) error {
	if iv.size == 0 {
		return nil
	}
	end := uint64(iv.offset) + uint64(iv.size)
	if end > uint64(memSize) {
		return fmt.Errorf("%w: [%d,%d) exceeds memory size %d", ErrOutOfBounds, iv.offset, end, memSize)
	}
	return nil
}

// Bytes copies a read's bytes out of guest memory. It does not check
// whether PreProcess has run; it panics if the interval is out of bounds.
func (r Read) Bytes(mem GuestMemory) []byte {
	if r.size == 0 {
		return nil
	}
	b, ok := mem.ReadAt(r.offset, r.size)
	if !ok {
		panic(fmt.Sprintf("memory: read [%d,%d) out of bounds after pre-processing", r.offset, r.offset+r.size))
	}
	return b
}

// DecodeRead reads and canonically decodes this registration's bytes.
func DecodeRead[T any](r Read, mem GuestMemory, dec Decoder[T]) (T, error) {
	var zero T
	b := r.Bytes(mem)
	if len(b) == 0 {
		return zero, nil
	}
	v, err := dec(b)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

// Put writes buf into a pre-processed write registration. A length
// mismatch is a programmer error — the spec requires a hard abort, not a
// recoverable error, since it indicates the caller mis-registered.
func (w Write) Put(mem GuestMemory, buf []byte) {
	if uint32(len(buf)) != w.size {
		panic(fmt.Sprintf("memory: write buffer length %d != registered size %d", len(buf), w.size))
	}
	if w.size == 0 {
		return
	}
	if !mem.WriteAt(w.offset, buf) {
		panic(fmt.Sprintf("memory: write [%d,%d) out of bounds after pre-processing", w.offset, w.offset+w.size))
	}
}

// U32Decoder and U64Decoder are the canonical decoders for the ABI's
// fixed-width integer wire types (§6 "Syscall ABI").
func U32Decoder(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("want 4 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func U64Decoder(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
