// Package airdrop implements the tiered deposit-reward schedule and the
// claim bookkeeping for the R token.
//
// The schedule is a seven-tier step function of cumulative T deposited:
// each tier has a constant marginal reward rate per T
// deposited, geometrically decreasing tier to tier. A deposit's reward is
// the integral of this step function over the range of cumulative T it
// moves the protocol through, i.e. the sum, over every tier the deposit
// interval crosses, of (T deposited within that tier) * (that tier's rate).
package airdrop

import (
	"math/big"

	"liquidneuron/amount"
)

// tier is one bracket of the schedule: it covers cumulative T deposited in
// (prior tier's upperT, upperT] at a constant reward rate.
type tier struct {
	upperT uint64 // cumulative T e8s at which this tier ends
	rateQ  uint64 // R per T for deposits within this tier, scaled by amount.Scale
}

// schedule is the fixed seven-tier curve: cumulative
// breakpoints 80k, 160k, 320k, 640k, 1.28M, 2.56M, 5.12M T (each double the
// last), with rates 8, 4, 2, 1, 0.5, 0.25, 0.125 R per T (each half the
// last).
var schedule = []tier{
	{upperT: 80_000 * amount.Scale, rateQ: 8 * amount.Scale},
	{upperT: 160_000 * amount.Scale, rateQ: 4 * amount.Scale},
	{upperT: 320_000 * amount.Scale, rateQ: 2 * amount.Scale},
	{upperT: 640_000 * amount.Scale, rateQ: 1 * amount.Scale},
	{upperT: 1_280_000 * amount.Scale, rateQ: amount.Scale / 2},
	{upperT: 2_560_000 * amount.Scale, rateQ: amount.Scale / 4},
	{upperT: 5_120_000 * amount.Scale, rateQ: amount.Scale / 8},
}

// Cap is the cumulative T deposited at which the schedule is exhausted;
// deposits beyond this point earn no further R.
var Cap = amount.T(schedule[len(schedule)-1].upperT)

// segmentReward returns the R e8s earned for depositing d e8s of T entirely
// within a single tier paying rateQ R per T (scaled by amount.Scale):
// floor(d * rateQ / amount.Scale). Computed in big.Int so the intermediate
// product cannot wrap.
func segmentReward(d, rateQ uint64) uint64 {
	if d == 0 || rateQ == 0 {
		return 0
	}
	prod := new(big.Int).Mul(new(big.Int).SetUint64(d), new(big.Int).SetUint64(rateQ))
	quo := new(big.Int).Quo(prod, new(big.Int).SetUint64(amount.Scale))
	if !quo.IsUint64() {
		panic(amount.ErrOverflow{Op: "airdrop.segmentReward"})
	}
	return quo.Uint64()
}

// Integral returns the R credited for a deposit that moves cumulative T
// deposited from `from` to `to` (to >= from): the integral of the schedule
// over that range. Deposits entirely at or beyond Cap earn nothing; a
// deposit straddling Cap is credited only for the portion below it.
func Integral(from, to amount.T) amount.R {
	fromX, toX := uint64(from), uint64(to)
	if toX <= fromX {
		return 0
	}
	if fromX >= uint64(Cap) {
		return 0
	}
	if toX > uint64(Cap) {
		toX = uint64(Cap)
	}

	var total amount.R
	lowerT := uint64(0)
	for _, t := range schedule {
		segLo, segHi := lowerT, t.upperT
		lo, hi := fromX, toX
		if lo < segLo {
			lo = segLo
		}
		if hi > segHi {
			hi = segHi
		}
		if lo < hi {
			total = amount.AddR(total, amount.R(segmentReward(hi-lo, t.rateQ)))
		}
		lowerT = t.upperT
	}
	return total
}
