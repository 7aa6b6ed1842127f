package gastree

import (
	"errors"
	"fmt"

	"github.com/hashicorp/golang-lru"
	"github.com/holiman/bloomfilter/v2"
	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/storage"
)

// Operation-level errors, distinct from the common package's cross-cutting
// sentinels because callers attribute them to a specific gas-tree op.
var (
	ErrInvalidID         = errors.New("gastree: invalid id")
	ErrInsufficientBalance = errors.New("gastree: insufficient balance")
	ErrNonExistingParent = errors.New("gastree: non-existing parent")
	ErrCyclicReference   = errors.New("gastree: cyclic reference")
	ErrInconsistent      = errors.New("gastree: inconsistent state")
)

// Tree is the append-mostly persistent graph of §4.E. It never holds a
// pointer graph in RAM: every mutation is a sequence of reads and writes
// against the store, keyed by node id, exactly as design note "Cyclic
// ownership in the gas tree" prescribes.
type Tree struct {
	store *storage.Store

	// existence is a probabilistic pre-check so a lookup for an id that
	// was never created can skip the storage round trip entirely.
	existence *bloomfilter.Filter

	// cache holds recently touched nodes; mutations always write through
	// to store, this is a read accelerator only.
	cache *lru.Cache
}

const cacheSize = 4096

// NewTree opens a gas tree over store. expectedNodes sizes the existence
// filter's backing bit array; it can be a coarse over-estimate.
func NewTree(store *storage.Store, expectedNodes uint64) (*Tree, error) {
	filter, err := bloomfilter.NewOptimal(expectedNodes, 0.001)
	if err != nil {
		return nil, fmt.Errorf("gastree: allocate existence filter: %w", err)
	}
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Tree{store: store, existence: filter, cache: c}, nil
}

func idKey(id common.NodeID) []byte { return id.Bytes() }

func (t *Tree) get(id common.NodeID) (*GasNode, bool, error) {
	if v, ok := t.cache.Get(id); ok {
		return v.(*GasNode), true, nil
	}
	raw, err := t.store.Get(storage.GasNodesPrefix, idKey(id))
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	n, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	t.cache.Add(id, n)
	return n, true, nil
}

func (t *Tree) put(id common.NodeID, n *GasNode) error {
	t.cache.Add(id, n)
	bf := bloomHash(id)
	t.existence.Add(bf)
	return t.store.Put(storage.GasNodesPrefix, idKey(id), encode(n))
}

func (t *Tree) delete(id common.NodeID) error {
	t.cache.Remove(id)
	return t.store.Remove(storage.GasNodesPrefix, idKey(id))
}

func bloomHash(id common.NodeID) bloomfilter.Hashable {
	return hashable(id)
}

type hashable common.NodeID

func (h hashable) Hash() (uint64, uint64) {
	a := common.Hash(h)
	lo := uint64(0)
	hi := uint64(0)
	for i := 0; i < 8; i++ {
		lo = lo<<8 | uint64(a[i])
		hi = hi<<8 | uint64(a[i+8])
	}
	return lo, hi
}

// mayExist is a fast existence pre-check; a false result is conclusive
// (the id was never created), a true result requires the store lookup to
// confirm (possible false positive).
func (t *Tree) mayExist(id common.NodeID) bool {
	return t.existence.Contains(bloomHash(id))
}

// Create inserts an External root. Fails if root already exists.
func (t *Tree) Create(root common.NodeID, externalID common.ExternalID, value uint256.Int, multiplier uint64, deposit bool) error {
	if t.mayExist(root) {
		if _, ok, err := t.get(root); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: root %s already exists", ErrInvalidID, root)
		}
	}
	n := &GasNode{
		Kind:       KindExternal,
		ExternalID: externalID,
		Value:      value,
		Multiplier: multiplier,
		Deposit:    deposit,
	}
	return t.put(root, n)
}

// Cut carves a detached Cut node from parent, subtracting value from the
// parent's balance. The child inherits the parent's external id and
// multiplier but is not recorded in the parent's child refs.
func (t *Tree) Cut(parent, child common.NodeID, value uint256.Int) error {
	p, ok, err := t.get(parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNonExistingParent, parent)
	}
	if !p.HasValue() || p.Value.Cmp(&value) < 0 {
		return ErrInsufficientBalance
	}
	p.Value.Sub(&p.Value, &value)
	if err := t.put(parent, p); err != nil {
		return err
	}
	c := &GasNode{
		Kind:       KindCut,
		ExternalID: p.ExternalID,
		Value:      value,
		Multiplier: p.Multiplier,
	}
	return t.put(child, c)
}

// Split creates an UnspecifiedLocal child with no balance of its own,
// incrementing parent.refs.unspec.
func (t *Tree) Split(parent, child common.NodeID) error {
	p, ok, err := t.get(parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNonExistingParent, parent)
	}
	root := parent
	if p.HasParent() {
		root = p.Root
	}
	if !p.HasRefs() {
		return fmt.Errorf("%w: %s cannot hold children", ErrInconsistent, parent)
	}
	p.Refs.Unspec++
	if err := t.put(parent, p); err != nil {
		return err
	}
	c := &GasNode{Kind: KindUnspecifiedLocal, Parent: parent, Root: root}
	return t.put(child, c)
}

// SplitWithValue creates a SpecifiedLocal child, transferring value out of
// the parent's own balance, incrementing parent.refs.spec.
func (t *Tree) SplitWithValue(parent, child common.NodeID, value uint256.Int) error {
	p, ok, err := t.get(parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNonExistingParent, parent)
	}
	if !p.HasValue() || p.Value.Cmp(&value) < 0 {
		return ErrInsufficientBalance
	}
	if !p.HasRefs() {
		return fmt.Errorf("%w: %s cannot hold children", ErrInconsistent, parent)
	}
	root := parent
	if p.HasParent() {
		root = p.Root
	}
	p.Value.Sub(&p.Value, &value)
	p.Refs.Spec++
	if err := t.put(parent, p); err != nil {
		return err
	}
	c := &GasNode{Kind: KindSpecifiedLocal, Parent: parent, Root: root, Value: value}
	return t.put(child, c)
}

// Reserve creates a Reserved node acting as the root of a future cascade,
// inheriting external id and multiplier from origin's root.
func (t *Tree) Reserve(origin, child common.NodeID, amount uint256.Int) error {
	o, ok, err := t.get(origin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: origin %s", ErrInvalidID, origin)
	}
	rootID := origin
	if o.HasParent() {
		rootID = o.Root
	}
	root, ok, err := t.get(rootID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: root %s", ErrInvalidID, rootID)
	}
	c := &GasNode{
		Kind:       KindReserved,
		ExternalID: root.ExternalID,
		Value:      amount,
		Multiplier: root.Multiplier,
	}
	return t.put(child, c)
}

// holderOf walks up from id to the nearest ancestor that carries its own
// balance, per §4.E "spend": self if it qualifies, else the parent chain.
func (t *Tree) holderOf(id common.NodeID) (common.NodeID, *GasNode, error) {
	cur := id
	for i := 0; i < 4096; i++ {
		n, ok, err := t.get(cur)
		if err != nil {
			return common.NodeID{}, nil, err
		}
		if !ok {
			return common.NodeID{}, nil, fmt.Errorf("%w: %s", ErrInvalidID, cur)
		}
		if n.HasValue() {
			return cur, n, nil
		}
		if !n.HasParent() {
			return common.NodeID{}, nil, fmt.Errorf("%w: %s has no balance and no parent", ErrInconsistent, cur)
		}
		cur = n.Parent
	}
	return common.NodeID{}, nil, fmt.Errorf("%w: parent chain too long, possible cycle", ErrCyclicReference)
}

// Spend deducts amount from the nearest ancestor of id (including id
// itself) that holds a balance.
func (t *Tree) Spend(id common.NodeID, amount uint256.Int) error {
	holderID, holder, err := t.holderOf(id)
	if err != nil {
		return err
	}
	if holder.Value.Cmp(&amount) < 0 {
		return ErrInsufficientBalance
	}
	holder.Value.Sub(&holder.Value, &amount)
	return t.put(holderID, holder)
}

// Lock moves amount from the balance-holding ancestor's Value into id's own
// lock slot for purpose. Unlock is the inverse. Both target id's own Lock
// array, since every variant carries one, but draw/return funds from
// whichever ancestor actually holds a balance.
func (t *Tree) Lock(id common.NodeID, purpose int, amount uint256.Int) error {
	n, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	holderID, holder, err := t.holderOf(id)
	if err != nil {
		return err
	}
	if holder.Value.Cmp(&amount) < 0 {
		return ErrInsufficientBalance
	}
	holder.Value.Sub(&holder.Value, &amount)
	n.LockArr[purpose].Add(&n.LockArr[purpose], &amount)
	if holderID != id {
		if err := t.put(holderID, holder); err != nil {
			return err
		}
		return t.put(id, n)
	}
	n.Value = holder.Value
	return t.put(id, n)
}

func (t *Tree) Unlock(id common.NodeID, purpose int, amount uint256.Int) error {
	n, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	if n.LockArr[purpose].Cmp(&amount) < 0 {
		return ErrInsufficientBalance
	}
	holderID, holder, err := t.holderOf(id)
	if err != nil {
		return err
	}
	n.LockArr[purpose].Sub(&n.LockArr[purpose], &amount)
	holder.Value.Add(&holder.Value, &amount)
	if holderID != id {
		if err := t.put(holderID, holder); err != nil {
			return err
		}
		return t.put(id, n)
	}
	n.Value = holder.Value
	return t.put(id, n)
}

// SystemReserve moves amount into id's SystemReserve slot, drawing it from
// the Value of the nearest balance-holding node (id itself or an ancestor).
// Only External, SpecifiedLocal and UnspecifiedLocal carry the slot; other
// variants are rejected with common.ErrForbidden.
func (t *Tree) SystemReserve(id common.NodeID, amount uint256.Int) error {
	n, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	if n.Kind == KindCut || n.Kind == KindReserved {
		return fmt.Errorf("%w: %s has no system reserve slot", common.ErrForbidden, id)
	}
	holderID, holder, err := t.holderOf(id)
	if err != nil {
		return err
	}
	if holder.Value.Cmp(&amount) < 0 {
		return ErrInsufficientBalance
	}
	holder.Value.Sub(&holder.Value, &amount)
	n.SystemReserve.Add(&n.SystemReserve, &amount)
	if holderID != id {
		if err := t.put(holderID, holder); err != nil {
			return err
		}
		return t.put(id, n)
	}
	n.Value = holder.Value
	return t.put(id, n)
}

func (t *Tree) SystemUnreserve(id common.NodeID, amount uint256.Int) error {
	n, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	if n.SystemReserve.Cmp(&amount) < 0 {
		return ErrInsufficientBalance
	}
	holderID, holder, err := t.holderOf(id)
	if err != nil {
		return err
	}
	n.SystemReserve.Sub(&n.SystemReserve, &amount)
	holder.Value.Add(&holder.Value, &amount)
	if holderID != id {
		if err := t.put(holderID, holder); err != nil {
			return err
		}
		return t.put(id, n)
	}
	n.Value = holder.Value
	return t.put(id, n)
}

// Consume marks id consumed, cascading deletion up the parent chain while
// nodes become non-patrons.
func (t *Tree) Consume(id common.NodeID) error {
	n, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	if !n.HasRefs() {
		return ErrForbiddenConsume(id)
	}
	if n.Consumed {
		return fmt.Errorf("%w: %s already consumed", ErrInconsistent, id)
	}
	n.Consumed = true
	if err := t.put(id, n); err != nil {
		return err
	}
	return t.collapseIfNonPatron(id, n)
}

func ErrForbiddenConsume(id common.NodeID) error {
	return fmt.Errorf("%w: %s", common.ErrForbidden, id)
}

// collapseIfNonPatron deletes id if it is no longer a patron, returning its
// remaining value to its parent (or external id, for roots) and
// decrementing the parent's ref count, then recursing upward if the parent
// itself becomes a non-patron as a result.
func (t *Tree) collapseIfNonPatron(id common.NodeID, n *GasNode) error {
	if n.IsPatron() {
		return nil
	}
	if n.Refs.Spec != 0 || n.Refs.Unspec != 0 {
		return fmt.Errorf("%w: %s has live children and cannot be deleted", ErrInconsistent, id)
	}
	if !n.HasParent() {
		// Root node: remaining value simply stays attributed to its
		// external id; nothing further to cascade.
		return t.delete(id)
	}
	parent, ok, err := t.get(n.Parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNonExistingParent, n.Parent)
	}
	if n.HasValue() {
		parent.Value.Add(&parent.Value, &n.Value)
		if parent.Refs.Spec == 0 {
			return fmt.Errorf("%w: parent %s spec refs underflow", ErrInconsistent, n.Parent)
		}
		parent.Refs.Spec--
	} else {
		if parent.Refs.Unspec == 0 {
			return fmt.Errorf("%w: parent %s unspec refs underflow", ErrInconsistent, n.Parent)
		}
		parent.Refs.Unspec--
	}
	if err := t.delete(id); err != nil {
		return err
	}
	if err := t.put(n.Parent, parent); err != nil {
		return err
	}
	return t.collapseIfNonPatron(n.Parent, parent)
}

// Get exposes a read-only view of a node for callers that need to inspect
// state without mutating it (e.g. the pre-charge pipeline checking a
// program's owed gas).
func (t *Tree) Get(id common.NodeID) (*GasNode, bool, error) {
	return t.get(id)
}
