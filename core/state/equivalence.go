package state

import "reflect"

// IsEquivalentTo reports whether e and other hold structurally identical
// projections. It exists to check that replaying a log from genesis
// produces the same State as the live, incrementally-built one: the
// property that justifies treating the event log as the sole source of
// truth. The fetched-stake caches are observed values outside the event
// log, so they are blanked before comparing.
func (e *Engine) IsEquivalentTo(other *Engine) bool {
	var a, b State
	e.View(func(st *State) { a = *st })
	other.View(func(st *State) { b = *st })
	a.ShortTermStakeFetched, b.ShortTermStakeFetched = 0, 0
	a.LongTermStakeFetched, b.LongTermStakeFetched = 0, 0
	return reflect.DeepEqual(&a, &b)
}
