// Package state owns the protocol's in-memory projection.
// Engine is the only writer: every mutation flows through Apply, which
// appends to the event log first and only then updates the projection, so
// the two steps are atomic with respect to external observation (a crash
// between them simply means the event was never applied, and replay from
// the log reconstructs an identical state on restart).
package state

import (
	"time"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/eventlog"
)

// PendingTransfer is a ledger side-effect not yet executed.
type PendingTransfer struct {
	TransferId     core.TransferId
	FromSubaccount *[32]byte
	ToAccount      core.Account
	Amount         uint64
	Unit           core.Unit
	Memo           *uint64
}

// ExecutedTransfer is a PendingTransfer that has settled.
type ExecutedTransfer struct {
	PendingTransfer
	CompletedAt time.Time
	BlockIndex  *uint64
}

// WithdrawalRequest tracks a single nT -> T redemption moving through the
// lifecycle state machine.
type WithdrawalRequest struct {
	WithdrawalId core.WithdrawalId
	Receiver     core.Account
	NtBurned     amount.NT
	NtBurnBlock  uint64
	TDue         amount.T
	NeuronId     *core.NeuronId
	CreatedAt    time.Time
}

// DisburseKind distinguishes whether a DisburseRequest came from a user
// withdrawal (and must resolve back to a WithdrawalId on completion) or a
// spawned maturity neuron.
type DisburseKind uint8

const (
	DisburseUserWithdrawal DisburseKind = iota
	DisburseMaturity
)

// DisburseRequest is enqueued once a neuron (user withdrawal or spawned
// maturity) has started dissolving.
type DisburseRequest struct {
	DisburseAt time.Time
	Receiver   core.Account
	NeuronId   core.NeuronId
	Kind       DisburseKind
	WithdrawalId core.WithdrawalId // valid only when Kind == DisburseUserWithdrawal
	FromNeuronType eventlog.FromNeuronType // valid only when Kind == DisburseMaturity
}

// State is the process-wide singleton projection. Every field here is
// persisted implicitly via event replay; nothing here is authoritative on
// its own, the event log is.
type State struct {
	// Configuration, set once by Init and adjusted by Upgrade.
	LedgerCanisterT      string
	LedgerCanisterNT     string
	LedgerCanisterR      string
	GovernanceCanister   string
	SecondaryDAOCanister string
	CanisterPrincipal    string
	GovernanceShareBps   uint64
	InceptionTs          int64
	MinDepositE8s        uint64
	MinWithdrawE8s       uint64
	Initialized          bool

	NeuronIdShortTerm *core.NeuronId
	NeuronIdLongTerm  *core.NeuronId

	TotalNTCirculating    amount.NT
	TrackedShortTermStake amount.T
	TotalTDeposited       amount.T

	// ShortTermStakeFetched and LongTermStakeFetched cache the stake
	// governance last reported for the two main neurons. They are observed
	// values refreshed by the periodic refresh tasks, not event-sourced
	// state, and are excluded from replay equivalence.
	ShortTermStakeFetched amount.T
	LongTermStakeFetched  amount.T

	NextTransferId   core.TransferId
	NextWithdrawalId core.WithdrawalId

	PendingTransfers map[core.TransferId]PendingTransfer
	PendingOrder     []core.TransferId
	ExecutedTransfers map[core.TransferId]ExecutedTransfer

	WithdrawalByID        map[core.WithdrawalId]*WithdrawalRequest
	WithdrawalsToSplit    []core.WithdrawalId
	WithdrawalsToDissolve []core.WithdrawalId
	WithdrawalsToDisburse []core.WithdrawalId
	WithdrawalsFinalized  map[core.WithdrawalId]uint64

	ToDisburse        map[core.NeuronId]DisburseRequest
	MaturityDisbursed map[core.NeuronId]uint64

	Proposals map[core.ProposalId]core.ProposalId

	Airdrop            map[string]amount.R
	AirdropDistributed map[string]amount.T // cumulative deposits credited, for the tiered schedule
	LastDistributionTs int64

	NeuronSixMonthsSeen  bool
	NeuronEightYearsSeen bool
}

// New constructs an empty, uninitialized State. Init must be the first
// event applied before any other operation is valid.
func New() *State {
	return &State{
		PendingTransfers:   make(map[core.TransferId]PendingTransfer),
		ExecutedTransfers:  make(map[core.TransferId]ExecutedTransfer),
		WithdrawalByID:     make(map[core.WithdrawalId]*WithdrawalRequest),
		WithdrawalsFinalized: make(map[core.WithdrawalId]uint64),
		ToDisburse:         make(map[core.NeuronId]DisburseRequest),
		MaturityDisbursed:  make(map[core.NeuronId]uint64),
		Proposals:          make(map[core.ProposalId]core.ProposalId),
		Airdrop:            make(map[string]amount.R),
		AirdropDistributed: make(map[string]amount.T),
	}
}
