// Package amount implements the protocol's fixed-point quantities.
//
// T, NT and R share an implicit scale of 1e8 ("e8s") and are distinct named
// types so the compiler rejects accidental mixing of staked tokens, the
// liquid derivative, and the reward token. All conversions between them are
// checked: overflow is a programming error, not a recoverable condition, and
// panics rather than silently wrapping.
package amount

import (
	"fmt"
	"math/big"
)

// Scale is the number of decimal places every amount type is denominated in.
const Scale = 100_000_000

// T is a quantity of the native staked token, in e8s.
type T uint64

// NT is a quantity of the liquid derivative token, in e8s.
type NT uint64

// R is a quantity of the reward/airdrop token, in e8s.
type R uint64

// Ledger fees per unit. nT's minting account charges no fee.
const (
	FeeT  = T(10_000)
	FeeR  = R(1_000_000)
	FeeNT = NT(0)
)

// ErrOverflow is raised (via panic) when a checked arithmetic operation
// would wrap.
type ErrOverflow struct {
	Op string
}

func (e ErrOverflow) Error() string {
	return fmt.Sprintf("amount: overflow in %s", e.Op)
}

// AddT adds two T amounts, panicking on overflow.
func AddT(a, b T) T {
	sum := a + b
	if sum < a {
		panic(ErrOverflow{Op: "AddT"})
	}
	return sum
}

// SubT subtracts b from a, panicking if the result would be negative.
func SubT(a, b T) T {
	if b > a {
		panic(ErrOverflow{Op: "SubT"})
	}
	return a - b
}

// AddNT adds two NT amounts, panicking on overflow.
func AddNT(a, b NT) NT {
	sum := a + b
	if sum < a {
		panic(ErrOverflow{Op: "AddNT"})
	}
	return sum
}

// SubNT subtracts b from a, panicking if the result would be negative.
func SubNT(a, b NT) NT {
	if b > a {
		panic(ErrOverflow{Op: "SubNT"})
	}
	return a - b
}

// AddR adds two R amounts, panicking on overflow.
func AddR(a, b R) R {
	sum := a + b
	if sum < a {
		panic(ErrOverflow{Op: "AddR"})
	}
	return sum
}

// mulDivFloor computes floor(a*b/c). The product is held in a big.Int
// scratch value; nothing here widens beyond 128 bits.
func mulDivFloor(a, b, c uint64) uint64 {
	if c == 0 {
		panic(ErrOverflow{Op: "mulDivFloor: division by zero"})
	}
	prod := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	quo := new(big.Int).Quo(prod, new(big.Int).SetUint64(c))
	if !quo.IsUint64() {
		panic(ErrOverflow{Op: "mulDivFloor"})
	}
	return quo.Uint64()
}

// DepositRateBootstrapWindow is the interval after inception during which
// deposits mint 1:1 regardless of the tracked stake. The proportional rate
// only takes effect once the protocol has had a week to accrue a meaningful
// tracked balance.
const DepositRateBootstrapWindow = 7 * 24 * 60 * 60 // seconds

// DepositRate computes the amount of nT minted for a T deposit:
// floor(t_in * total_nt_circulating / tracked_short_term_stake) when both
// are non-zero and the wall clock has passed inception + one week;
// otherwise 1:1.
func DepositRate(tIn T, totalNT NT, trackedStake T, inceptionTs, nowUnix int64) NT {
	if totalNT == 0 || trackedStake == 0 {
		return NT(tIn)
	}
	if nowUnix < inceptionTs+DepositRateBootstrapWindow {
		return NT(tIn)
	}
	return NT(mulDivFloor(uint64(tIn), uint64(totalNT), uint64(trackedStake)))
}

// WithdrawRate computes the T due for a nT burn:
// floor(nt_in * tracked_short_term_stake / total_nt_circulating).
func WithdrawRate(ntIn NT, trackedStake T, totalNT NT) T {
	if totalNT == 0 {
		return 0
	}
	return T(mulDivFloor(uint64(ntIn), uint64(trackedStake), uint64(totalNT)))
}

// GovernanceShare splits a T balance into a governance share (floored) and
// the complement. ratioBps is the governance share expressed in basis
// points of 10_000.
func GovernanceShare(balance T, ratioBps uint64) (share T, complement T) {
	if ratioBps > 10_000 {
		panic(fmt.Errorf("amount: governance share ratio %d exceeds 10000 bps", ratioBps))
	}
	share = T(mulDivFloor(uint64(balance), ratioBps, 10_000))
	complement = SubT(balance, share)
	return share, complement
}

// ExchangeRate returns the current T-per-nT exchange rate as a float64,
// solely for display/reporting (GetInfo, dashboards); no protocol decision
// may depend on this floating-point value. A zero nT supply reports 1.0,
// the inception rate.
func ExchangeRate(trackedStake T, totalNT NT) float64 {
	if totalNT == 0 {
		return 1.0
	}
	return float64(trackedStake) / Scale / (float64(totalNT) / Scale)
}
