// Package gastree implements the persistent gas-accounting graph of
// SPEC_FULL §3/§4.E: a tagged-union GasNode keyed by id, mutated through an
// external key/value store rather than an in-RAM pointer graph, following
// the collaborator's own stateObject discipline of a discriminant byte plus
// one payload struct per variant (core/state/state_object.go).
package gastree

import (
	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/params"
)

// Kind is the GasNode variant discriminant.
type Kind byte

const (
	KindExternal Kind = iota
	KindCut
	KindReserved
	KindSpecifiedLocal
	KindUnspecifiedLocal
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindCut:
		return "cut"
	case KindReserved:
		return "reserved"
	case KindSpecifiedLocal:
		return "specified_local"
	case KindUnspecifiedLocal:
		return "unspecified_local"
	default:
		return "unknown"
	}
}

// Lock is a fixed-arity balance array indexed by params.LockPurpose.
type Lock [params.NumLockPurposes]uint256.Int

// Total sums every slot, the aggregate "total_locked" of §3.
func (l *Lock) Total() *uint256.Int {
	sum := new(uint256.Int)
	for i := range l {
		sum.Add(sum, &l[i])
	}
	return sum
}

// ChildrenRefs counts live children by whether they carry their own balance.
type ChildrenRefs struct {
	Spec   uint32
	Unspec uint32
}

// GasNode is the tagged union of §3. Only the fields meaningful to Kind are
// populated; accessor methods return ok=false where the variant lacks a
// slot, mirroring the collaborator's optional-accessor convention rather
// than modeling variants as an interface hierarchy.
type GasNode struct {
	Kind Kind

	// Present on External, Cut, Reserved.
	ExternalID common.ExternalID

	// Present on SpecifiedLocal, UnspecifiedLocal.
	Parent common.NodeID
	Root   common.NodeID

	// Balance, present on External, Cut, Reserved, SpecifiedLocal.
	Value uint256.Int

	// Present on every variant.
	LockArr Lock

	// Present on External, SpecifiedLocal, UnspecifiedLocal.
	SystemReserve uint256.Int

	// Present on External, Reserved, SpecifiedLocal.
	Refs ChildrenRefs

	// Present on External, Reserved, SpecifiedLocal.
	Consumed bool

	// Present on External only.
	Deposit bool

	// Present on External, Cut, Reserved.
	Multiplier uint64
}

// HasValue reports whether this variant carries its own balance slot.
func (n *GasNode) HasValue() bool {
	switch n.Kind {
	case KindExternal, KindCut, KindReserved, KindSpecifiedLocal:
		return true
	default:
		return false
	}
}

// HasRefs reports whether this variant tracks children.
func (n *GasNode) HasRefs() bool {
	switch n.Kind {
	case KindExternal, KindReserved, KindSpecifiedLocal:
		return true
	default:
		return false
	}
}

// HasParent reports whether this variant is an internal node (has a parent
// and root), as opposed to a cascade root (External/Cut/Reserved).
func (n *GasNode) HasParent() bool {
	switch n.Kind {
	case KindSpecifiedLocal, KindUnspecifiedLocal:
		return true
	default:
		return false
	}
}

// IsPatron reports whether the node must be kept alive: not consumed, or
// consumed but still referenced by a live Specified or Unspecified child.
// Matches original_source/common/src/gas_provider/node.rs's is_patron():
// deletion is only safe once consumed && spec_refs == 0 && unspec_refs == 0.
func (n *GasNode) IsPatron() bool {
	if !n.HasRefs() {
		return true
	}
	return !n.Consumed || n.Refs.Spec > 0 || n.Refs.Unspec > 0
}
