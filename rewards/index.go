// Package rewards implements the reward dispatch operation: harvesting
// matured ICP from the origin neurons, splitting it between the nT
// treasury and the governance share, and a simple-interest global index
// used purely for APR-style dashboard reporting.
package rewards

import (
	"math/big"
	"time"
)

const (
	secondsPerYear   = 365 * 24 * 60 * 60
	basisPointsDenom = 10_000
	indexScale       = int64(1_000_000_000_000_000_000)
)

var (
	indexScaleBig = big.NewInt(indexScale)
	accrualDenom  = big.NewInt(secondsPerYear * basisPointsDenom)
)

// Index tracks a global, monotonically non-decreasing simple-interest
// index: elapsed time times an APR in basis points. It reports the
// protocol's realized reward rate for dashboards; it does not accrue a
// claimable balance.
type Index struct {
	value      *big.Int
	lastUpdate uint64
}

// NewIndex constructs an Index seeded at 1.0 (indexScale).
func NewIndex() *Index {
	return &Index{value: new(big.Int).Set(indexScaleBig)}
}

// Value returns a copy of the current index.
func (idx *Index) Value() *big.Int {
	if idx == nil || idx.value == nil {
		return new(big.Int).Set(indexScaleBig)
	}
	return new(big.Int).Set(idx.value)
}

// Update advances the index for the elapsed time since the last call,
// applying aprBps (realized APR in basis points) as simple interest.
func (idx *Index) Update(at time.Time, aprBps uint64) {
	if idx.value == nil {
		idx.value = new(big.Int).Set(indexScaleBig)
	}
	ts := uint64(at.UTC().Unix())
	if idx.lastUpdate == 0 {
		idx.lastUpdate = ts
		return
	}
	if ts <= idx.lastUpdate {
		return
	}
	delta := ts - idx.lastUpdate
	idx.lastUpdate = ts
	if aprBps == 0 {
		return
	}
	increment := new(big.Int).SetUint64(delta)
	increment.Mul(increment, new(big.Int).SetUint64(aprBps))
	increment.Mul(increment, indexScaleBig)
	increment.Quo(increment, accrualDenom)
	idx.value.Add(idx.value, increment)
}
