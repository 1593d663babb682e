package engine

// capacityBudget tracks weight pulled from one category against that
// category's capacity for a single tick.
//
// A fresh budget is created per category per tick. take refuses any item
// that would push pulled past capacity, which is what guarantees the
// per-tick capacity bound. Zero-weight items always fit.
type capacityBudget struct {
	capacity float64
	pulled   float64
}

func newCapacityBudget(capacity float64) *capacityBudget {
	return &capacityBudget{capacity: capacity}
}

// exhausted reports whether the scheduler should stop visiting lanes.
func (b *capacityBudget) exhausted() bool {
	return b.pulled >= b.capacity
}

// take charges weight against the budget if it fits.
func (b *capacityBudget) take(weight float64) bool {
	if b.pulled+weight > b.capacity {
		return false
	}
	b.pulled += weight
	return true
}

// Pulled returns the weight charged so far.
func (b *capacityBudget) Pulled() float64 {
	return b.pulled
}
