// Package metrics provides the minimal Counter/Gauge primitives
// core/processor reports dispatch-level gas and page-fault counts through,
// plus the EnabledExpensive flag that gates expensive per-call accounting
// the way the collaborator's metrics package does.
package metrics

import "sync/atomic"

// EnabledExpensive gates metrics whose collection cost is itself
// significant (e.g. per-syscall counters in the hot dispatch path).
// Off by default; cmd/gearrun turns it on with --metrics.expensive.
var EnabledExpensive = false

// Counter is an integer metric moved up by Inc and down by Dec.
type Counter interface {
	Inc(delta int64)
	Dec(delta int64)
	Count() int64
}

type counter struct{ n int64 }

// NewCounter returns a registered-nowhere standalone counter. The
// collaborator normally registers these into a named registry; this runtime
// has no metrics server (out of scope, see SPEC_FULL §1), so counters are
// created and read directly by the components that own them.
func NewCounter() Counter { return &counter{} }

func (c *counter) Inc(delta int64) { atomic.AddInt64(&c.n, delta) }
func (c *counter) Dec(delta int64) { atomic.AddInt64(&c.n, -delta) }
func (c *counter) Count() int64    { return atomic.LoadInt64(&c.n) }

// Gauge holds a value that can move up or down, such as the current page
// count resident in a lazy-pages context.
type Gauge interface {
	Update(v int64)
	Value() int64
}

type gauge struct{ v int64 }

func NewGauge() Gauge { return &gauge{} }

func (g *gauge) Update(v int64) { atomic.StoreInt64(&g.v, v) }
func (g *gauge) Value() int64   { return atomic.LoadInt64(&g.v) }
