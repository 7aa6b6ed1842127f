package gas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterChargeIfEnough(t *testing.T) {
	c := NewCounter(100)
	require.Equal(t, Enough, c.ChargeIfEnough(40))
	assert.Equal(t, uint64(60), c.Left())
	assert.Equal(t, uint64(40), c.Burned())

	require.Equal(t, NotEnough, c.ChargeIfEnough(1000))
	assert.Equal(t, uint64(60), c.Left(), "failed charge must not mutate left")
	assert.Equal(t, uint64(40), c.Burned(), "failed charge must not mutate burned")
}

func TestCounterBurnedPlusLeftInvariant(t *testing.T) {
	c := NewCounter(777)
	for _, amt := range []uint64{10, 20, 300, 1} {
		c.ChargeIfEnough(amt)
		assert.Equal(t, c.Limit(), c.Burned()+c.Left())
	}
}

func TestCounterRefundBoundedByBurned(t *testing.T) {
	c := NewCounter(100)
	c.ChargeIfEnough(30)
	c.Refund(1000)
	assert.Equal(t, uint64(0), c.Burned())
	assert.Equal(t, uint64(100), c.Left())
}

func TestPairChargeBothBlocksOnEitherCounter(t *testing.T) {
	p := NewPair(100, 5)
	require.Equal(t, ChargeAllowanceExceeded, p.ChargeBoth(10))
	assert.Equal(t, uint64(100), p.Limit.Left(), "blocked charge must not mutate limit")
	assert.Equal(t, uint64(5), p.Allowance.Left())

	p2 := NewPair(5, 100)
	require.Equal(t, ChargeLimitExceeded, p2.ChargeBoth(10))
	assert.Equal(t, uint64(5), p2.Limit.Left())
	assert.Equal(t, uint64(100), p2.Allowance.Left())

	p3 := NewPair(50, 50)
	require.Equal(t, ChargeOK, p3.ChargeBoth(20))
	assert.Equal(t, uint64(30), p3.Limit.Left())
	assert.Equal(t, uint64(30), p3.Allowance.Left())
}
