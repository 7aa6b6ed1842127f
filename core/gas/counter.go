// Package gas implements the saturating gas counter pair described in
// SPEC_FULL §4.A: a limit counter and a block allowance counter, charged
// together so that either one running out aborts the charge atomically.
package gas

import "github.com/holiman/uint256"

// ChargeResult reports whether a charge_if_enough call succeeded.
type ChargeResult uint8

const (
	Enough ChargeResult = iota
	NotEnough
)

// Counter is a saturating gas accumulator: burned + left == limit holds at
// every quiescent point, and a failed charge leaves both fields untouched.
type Counter struct {
	limit  uint64
	left   uint64
	burned uint64
}

// NewCounter starts a counter with its full limit available.
func NewCounter(limit uint64) *Counter {
	return &Counter{limit: limit, left: limit}
}

// Limit returns the counter's original budget.
func (c *Counter) Limit() uint64 { return c.limit }

// Left returns the unspent amount.
func (c *Counter) Left() uint64 { return c.left }

// Burned returns the amount charged so far.
func (c *Counter) Burned() uint64 { return c.burned }

// ChargeIfEnough charges amount if left >= amount, mutating left and burned
// only on success.
func (c *Counter) ChargeIfEnough(amount uint64) ChargeResult {
	if amount > c.left {
		return NotEnough
	}
	c.left -= amount
	c.burned += amount
	return Enough
}

// Burn unconditionally charges amount, saturating left at zero; when amount
// exceeds left, only what was left is added to burned — used where the
// caller has already verified sufficiency and only wants the mutation.
func (c *Counter) Burn(amount uint64) {
	if amount > c.left {
		c.burned += c.left
		c.left = 0
		return
	}
	c.left -= amount
	c.burned += amount
}

// Refund returns amount from burned back to left, bounded by Burned(); it
// never grows the counter past its original limit's accounting identity.
func (c *Counter) Refund(amount uint64) {
	if amount > c.burned {
		amount = c.burned
	}
	c.burned -= amount
	c.left += amount
}

// AsU256 renders Left as a uint256 for callers that compute guest-visible
// values alongside node balances (which are uint256-typed, see core/gastree).
func (c *Counter) AsU256() *uint256.Int {
	return uint256.NewInt(c.left)
}

// Pair bundles the limit counter with the per-block allowance counter; the
// collaborator charges both atomically for every billable operation.
type Pair struct {
	Limit     *Counter
	Allowance *Counter
}

// NewPair constructs a Pair from independent limit and allowance budgets.
func NewPair(limit, allowance uint64) *Pair {
	return &Pair{Limit: NewCounter(limit), Allowance: NewCounter(allowance)}
}

// Outcome distinguishes why a paired charge failed, since the two failure
// modes have different recovery policies (§7).
type Outcome uint8

const (
	ChargeOK Outcome = iota
	ChargeLimitExceeded
	ChargeAllowanceExceeded
)

// ChargeBoth charges amount on both counters, succeeding only if both have
// enough; on failure neither counter is mutated, and the outcome says which
// counter was the blocker (limit is checked first, matching the
// collaborator's precedence for stage-tagged failures in §4.G).
func (p *Pair) ChargeBoth(amount uint64) Outcome {
	if amount > p.Limit.left {
		return ChargeLimitExceeded
	}
	if amount > p.Allowance.left {
		return ChargeAllowanceExceeded
	}
	p.Limit.Burn(amount)
	p.Allowance.Burn(amount)
	return ChargeOK
}
