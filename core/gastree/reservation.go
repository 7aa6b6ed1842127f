package gastree

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/btree"
	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/params"
)

// ReservationStateKind tags the three-way reservation lifecycle of §3.
type ReservationStateKind byte

const (
	StateExists ReservationStateKind = iota
	StateCreated
	StateRemoved
)

// Reservation is one entry of a program's reservation map. Not every field
// is meaningful in every state; Exists carries start/finish, Created
// carries a duration not yet resolved to a block range, Removed retains
// only its expiration for the collaborator's honour-then-drop schedule.
type Reservation struct {
	State    ReservationStateKind
	Amount   uint256.Int
	Start    uint64
	Finish   uint64
	Duration uint64
	Used     bool
}

// Reimbursement is returned by Unreserve for a Created (not yet resolved)
// reservation: the caller redeems it to move gas back to the counter
// rather than the ledger doing so itself, keeping the ledger free of a
// direct gas.Counter dependency.
type Reimbursement struct {
	Duration uint64
}

// expiryItem orders live reservations by Finish for cheap sweep-by-block
// queries; Removed entries aren't tracked here since they no longer
// compete for the cap.
type expiryItem struct {
	finish uint64
	id     common.ReservationID
}

func (a expiryItem) Less(than btree.Item) bool {
	b := than.(expiryItem)
	if a.finish != b.finish {
		return a.finish < b.finish
	}
	return string(a.id.Bytes()) < string(b.id.Bytes())
}

// Ledger is the reservation ledger bound to one executing message, per
// §4.F. Construction freezes the message id; nonce increments monotonically
// so re-execution of the same message reproduces the same id sequence.
type Ledger struct {
	messageID common.MessageID
	nonce     uint64
	slots     map[common.ReservationID]*Reservation
	expiry    *btree.BTree
	maxSlots  int
}

// NewLedger opens a ledger for messageID, seeded with a starting nonce
// carried over from a prior execution of the same message (zero for a
// fresh message), so that re-queued re-execution continues the same id
// sequence rather than restarting it (§8 "Nonce stability").
func NewLedger(messageID common.MessageID, startNonce uint64, existing map[common.ReservationID]*Reservation) *Ledger {
	l := &Ledger{
		messageID: messageID,
		nonce:     startNonce,
		slots:     make(map[common.ReservationID]*Reservation),
		expiry:    btree.New(32),
		maxSlots:  params.MaxReservations,
	}
	for id, r := range existing {
		l.slots[id] = r
		if r.State == StateExists {
			l.expiry.ReplaceOrInsert(expiryItem{finish: r.Finish, id: id})
		}
	}
	return l
}

// liveCount counts Exists + Created entries, the only ones that count
// against the cap (Removed entries are excluded per §8).
func (l *Ledger) liveCount() int {
	n := 0
	for _, r := range l.slots {
		if r.State == StateExists || r.State == StateCreated {
			n++
		}
	}
	return n
}

func deriveID(messageID common.MessageID, nonce uint64) common.ReservationID {
	h := sha256.New()
	h.Write(messageID.Bytes())
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	h.Write(nb[:])
	return common.BytesToHash(h.Sum(nil))
}

// Reserve creates a Created reservation for amount/duration, failing if the
// cap is already reached. The returned id is deterministic in the nonce,
// which is bumped only when the reservation is created: a reserve rejected
// by the cap leaves the nonce unchanged.
func (l *Ledger) Reserve(amount uint256.Int, duration uint64) (common.ReservationID, error) {
	if l.liveCount() >= l.maxSlots {
		return common.ReservationID{}, fmt.Errorf("%w: %d/%d", common.ErrReservationLimitReached, l.liveCount(), l.maxSlots)
	}
	l.nonce++
	id := deriveID(l.messageID, l.nonce)
	l.slots[id] = &Reservation{State: StateCreated, Amount: amount, Duration: duration}
	return id, nil
}

// Unreserve fails on an unknown id, an already-removed reservation, or a
// used one; on success it transitions Created->gone (with a Reimbursement
// the caller redeems) or Exists->Removed.
func (l *Ledger) Unreserve(id common.ReservationID) (uint256.Int, *Reimbursement, error) {
	r, ok := l.slots[id]
	if !ok {
		return uint256.Int{}, nil, fmt.Errorf("%w: %s", common.ErrReservationNotFound, id)
	}
	if r.State == StateRemoved {
		return uint256.Int{}, nil, fmt.Errorf("%w: %s already removed", common.ErrReservationNotFound, id)
	}
	if r.Used {
		return uint256.Int{}, nil, fmt.Errorf("%w: %s already used", common.ErrReservationNotFound, id)
	}
	switch r.State {
	case StateCreated:
		amount := r.Amount
		delete(l.slots, id)
		return amount, &Reimbursement{Duration: r.Duration}, nil
	case StateExists:
		amount := r.Amount
		l.expiry.Delete(expiryItem{finish: r.Finish, id: id})
		l.slots[id] = &Reservation{State: StateRemoved, Finish: r.Finish}
		return amount, nil, nil
	default:
		return uint256.Int{}, nil, fmt.Errorf("%w: %s in unknown state", ErrInconsistent, id)
	}
}

// MarkUsed sets the used flag, failing on double-use.
func (l *Ledger) MarkUsed(id common.ReservationID) error {
	r, ok := l.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrReservationNotFound, id)
	}
	if r.Used {
		return fmt.Errorf("%w: %s already used", ErrInconsistent, id)
	}
	r.Used = true
	return nil
}

// Resolve transitions a Created reservation to Exists once its start/finish
// block range is known (the block-number-dependent step the collaborator
// performs after the gas side of Reserve has already committed).
func (l *Ledger) Resolve(id common.ReservationID, start, finish uint64) error {
	r, ok := l.slots[id]
	if !ok || r.State != StateCreated {
		return fmt.Errorf("%w: %s is not a pending reservation", common.ErrReservationNotFound, id)
	}
	r.State = StateExists
	r.Start = start
	r.Finish = finish
	l.expiry.ReplaceOrInsert(expiryItem{finish: finish, id: id})
	return nil
}

// Get returns the current state of id, if present.
func (l *Ledger) Get(id common.ReservationID) (*Reservation, bool) {
	r, ok := l.slots[id]
	return r, ok
}

// ExpireUpTo returns every live (Exists) reservation whose Finish is <= at,
// for the collaborator's expiration sweep; it does not mutate the ledger.
func (l *Ledger) ExpireUpTo(at uint64) []common.ReservationID {
	var out []common.ReservationID
	l.expiry.Ascend(func(i btree.Item) bool {
		item := i.(expiryItem)
		if item.finish > at {
			return false
		}
		out = append(out, item.id)
		return true
	})
	return out
}

// Slots serializes the ledger to the map of slot values persisted at
// session commit (§4.F); Removed entries are retained here and dropped by
// the collaborator once their expiration has been honoured.
func (l *Ledger) Slots() map[common.ReservationID]*Reservation {
	out := make(map[common.ReservationID]*Reservation, len(l.slots))
	for id, r := range l.slots {
		cp := *r
		out[id] = &cp
	}
	return out
}

// Nonce returns the current nonce, to be persisted alongside the slot map
// so the next execution of the same message continues the sequence.
func (l *Ledger) Nonce() uint64 { return l.nonce }
