// Package eventlog implements the append-only, durable sequence of
// state-transition events. Every mutation to
// core/state.Engine passes through here first: Append must succeed before
// the in-memory projection is updated, and a crash between the two is
// impossible because bbolt's transaction commits atomically.
package eventlog

import (
	"liquidneuron/core"
)

// Payload is a tagged event variant. The gob type name (registered in
// codec.go) is the actual wire discriminant, since gob already provides
// forward-compatible, self-describing encoding; Tag exists so replay and
// the public GetEvents API can report a stable ordinal numbering.
type Payload interface {
	Tag() uint8
	EventType() string
}

// Init carries the genesis configuration. It must be the first event in
// every log; a log whose first event is not Init is a fatal inconsistency.
type Init struct {
	LedgerCanisterT      string
	LedgerCanisterNT     string
	LedgerCanisterR      string
	GovernanceCanister   string
	SecondaryDAOCanister string
	CanisterPrincipal    string
	GovernanceShareBps   uint64
	MinDepositE8s        uint64
	MinWithdrawE8s       uint64
	InceptionTs          int64
}

func (Init) Tag() uint8        { return 0 }
func (Init) EventType() string { return "Init" }

// Upgrade adjusts tunables post-init. Nil fields are left unchanged.
type Upgrade struct {
	GovernanceShareBps *uint64
	MinDepositE8s      *uint64
	MinWithdrawE8s     *uint64
}

func (Upgrade) Tag() uint8        { return 1 }
func (Upgrade) EventType() string { return "Upgrade" }

// DistributeICPtoSNS records a secondary-DAO distribution payout.
type DistributeICPtoSNS struct {
	Amount   uint64
	Receiver core.Account
}

func (DistributeICPtoSNS) Tag() uint8        { return 2 }
func (DistributeICPtoSNS) EventType() string { return "DistributeICPtoSNS" }

// TransferExecuted marks a pending transfer as settled.
type TransferExecuted struct {
	TransferId core.TransferId
	BlockIndex *uint64
}

func (TransferExecuted) Tag() uint8        { return 3 }
func (TransferExecuted) EventType() string { return "TransferExecuted" }

// IcpDeposit records a completed T deposit and the resulting nT mint.
type IcpDeposit struct {
	Receiver   core.Account
	Amount     uint64
	BlockIndex uint64
	NtMinted   uint64
}

func (IcpDeposit) Tag() uint8        { return 4 }
func (IcpDeposit) EventType() string { return "IcpDeposit" }

// NIcpWithdrawal records a burned nT amount starting the withdrawal
// lifecycle.
type NIcpWithdrawal struct {
	Receiver      core.Account
	NicpBurned    uint64
	NicpBurnIndex uint64
	TDue          uint64
}

func (NIcpWithdrawal) Tag() uint8        { return 5 }
func (NIcpWithdrawal) EventType() string { return "NIcpWithdrawal" }

// FromNeuronType distinguishes which main neuron a reward/maturity event
// originated from.
type FromNeuronType uint8

const (
	FromShortTerm FromNeuronType = iota
	FromLongTerm
)

// DispatchICPRewards records a reward-dispatch split between the nT
// treasury and the governance share.
type DispatchICPRewards struct {
	NicpAmount     uint64
	SnsGovAmount   uint64
	FromNeuronType FromNeuronType
}

func (DispatchICPRewards) Tag() uint8        { return 6 }
func (DispatchICPRewards) EventType() string { return "DispatchICPRewards" }

// SplitNeuron records the neuron created for a withdrawal's split step.
type SplitNeuron struct {
	WithdrawalId core.WithdrawalId
	NeuronId     core.NeuronId
}

func (SplitNeuron) Tag() uint8        { return 7 }
func (SplitNeuron) EventType() string { return "SplitNeuron" }

// StartedToDissolve records that a withdrawal's neuron has begun dissolving.
type StartedToDissolve struct {
	WithdrawalId core.WithdrawalId
	DisburseAt   int64
}

func (StartedToDissolve) Tag() uint8        { return 8 }
func (StartedToDissolve) EventType() string { return "StartedToDissolve" }

// DisbursedUserNeuron records the final payout of a user's withdrawal.
type DisbursedUserNeuron struct {
	WithdrawalId        core.WithdrawalId
	TransferBlockHeight uint64
}

func (DisbursedUserNeuron) Tag() uint8        { return 9 }
func (DisbursedUserNeuron) EventType() string { return "DisbursedUserNeuron" }

// MaturityNeuron records a spawned maturity neuron awaiting disbursement.
type MaturityNeuron struct {
	NeuronId       core.NeuronId
	FromNeuronType FromNeuronType
	Receiver       core.Account
	DisburseAt     int64
}

func (MaturityNeuron) Tag() uint8        { return 10 }
func (MaturityNeuron) EventType() string { return "MaturityNeuron" }

// DisbursedMaturityNeuron records the final payout of a maturity neuron.
type DisbursedMaturityNeuron struct {
	NeuronId            core.NeuronId
	TransferBlockHeight uint64
}

func (DisbursedMaturityNeuron) Tag() uint8        { return 11 }
func (DisbursedMaturityNeuron) EventType() string { return "DisbursedMaturityNeuron" }

// NeuronSixMonths marks the short-term main neuron reaching its target
// dissolve delay. Replay records the neuron id and seeds the genesis
// neuron's initial stake into both tracked balances: the protocol's first
// T and nT enter circulation here, not at Init.
type NeuronSixMonths struct {
	NeuronId core.NeuronId
}

func (NeuronSixMonths) Tag() uint8        { return 12 }
func (NeuronSixMonths) EventType() string { return "NeuronSixMonths" }

// NeuronEightYears marks the long-term main neuron reaching its target
// dissolve delay. Unlike NeuronSixMonths it seeds no stake: the long-term
// neuron backs voting weight, not the nT exchange rate.
type NeuronEightYears struct {
	NeuronId core.NeuronId
}

func (NeuronEightYears) Tag() uint8        { return 13 }
func (NeuronEightYears) EventType() string { return "NeuronEightYears" }

// ClaimedAirdrop records an R claim payout.
type ClaimedAirdrop struct {
	Caller     string
	BlockIndex uint64
}

func (ClaimedAirdrop) Tag() uint8        { return 14 }
func (ClaimedAirdrop) EventType() string { return "ClaimedAirdrop" }

// MirroredProposal records a mirrored secondary-DAO proposal.
type MirroredProposal struct {
	NnsId core.ProposalId
	SnsId core.ProposalId
}

func (MirroredProposal) Tag() uint8        { return 15 }
func (MirroredProposal) EventType() string { return "MirroredProposal" }

// MergeNeuron records a cancelled withdrawal's neuron merging back into the
// short-term neuron.
type MergeNeuron struct {
	NeuronId core.NeuronId
}

func (MergeNeuron) Tag() uint8        { return 16 }
func (MergeNeuron) EventType() string { return "MergeNeuron" }
