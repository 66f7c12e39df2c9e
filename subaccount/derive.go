// Package subaccount implements the protocol's stable subaccount
// derivations. Deposit, Withdrawal and NeuronStake are SHA-256 digests
// over a fixed domain-separation prefix, so two distinct principals never
// collide; RewardOrigin is a little-endian counter zero-padded to 32
// bytes. The same inputs always reproduce the same bytes across restarts.
package subaccount

import (
	"crypto/sha256"
	"encoding/binary"
)

// RewardOriginVariant selects which of the two reward-origin subaccounts
// to derive.
type RewardOriginVariant uint64

const (
	// SnsGovernanceEightYears is the origin subaccount receiving the
	// long-term (8-year) neuron's spawned maturity.
	SnsGovernanceEightYears RewardOriginVariant = 0
	// NICPSixMonths is the origin subaccount receiving the short-term
	// (6-month) neuron's spawned maturity.
	NICPSixMonths RewardOriginVariant = 1

	rewardOriginBase = 1234
)

// Nonces the protocol stakes its two main neurons under; NeuronStake over
// the canister principal and one of these reproduces each neuron's
// governance staking account.
const (
	ShortTermNeuronNonce uint64 = 0
	LongTermNeuronNonce  uint64 = 1
)

// Deposit derives the deposit account a caller transfers T into before
// calling IcpToNicp: SHA-256("STAKE-ICP" || owner_bytes).
func Deposit(owner []byte) [32]byte {
	return digest("STAKE-ICP", owner)
}

// Withdrawal derives the deposit account a caller transfers nT into before
// calling NicpToIcp: SHA-256("UNSTAKE-nICP" || owner_bytes).
func Withdrawal(owner []byte) [32]byte {
	return digest("UNSTAKE-nICP", owner)
}

// NeuronStake derives the staking subaccount governance uses to track a
// neuron controlled by controller with the given nonce:
// SHA-256(0x0c || "neuron-stake" || controller_bytes || nonce_be).
func NeuronStake(controller []byte, nonce uint64) [32]byte {
	buf := make([]byte, 0, 1+len("neuron-stake")+len(controller)+8)
	buf = append(buf, 0x0c)
	buf = append(buf, "neuron-stake"...)
	buf = append(buf, controller...)
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	buf = append(buf, nonceBytes[:]...)
	return sha256.Sum256(buf)
}

// RewardOrigin derives the deterministic origin subaccount a spawned
// maturity neuron disburses into: a little-endian u64 of
// (1234 + variant index), zero-padded to 32 bytes.
func RewardOrigin(variant RewardOriginVariant) [32]byte {
	var out [32]byte
	binary.LittleEndian.PutUint64(out[:8], rewardOriginBase+uint64(variant))
	return out
}

func digest(prefix string, owner []byte) [32]byte {
	buf := make([]byte, 0, len(prefix)+len(owner))
	buf = append(buf, prefix...)
	buf = append(buf, owner...)
	return sha256.Sum256(buf)
}
