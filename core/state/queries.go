package state

import (
	"sort"

	"liquidneuron/amount"
	"liquidneuron/core"
)

func sortWithdrawalIDs(ids []core.WithdrawalId) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Info is the public, read-only snapshot returned by the GetInfo
// operation.
type Info struct {
	TotalNTCirculating    amount.NT
	TrackedShortTermStake amount.T
	TotalTDeposited       amount.T
	ExchangeRate          float64
	GovernanceShareBps    uint64
	NeuronIdShortTerm     *core.NeuronId
	NeuronIdLongTerm      *core.NeuronId
	InceptionTs           int64
}

// GetInfo returns the protocol's public dashboard figures.
func (e *Engine) GetInfo() Info {
	var info Info
	e.View(func(st *State) {
		info = Info{
			TotalNTCirculating:    st.TotalNTCirculating,
			TrackedShortTermStake: st.TrackedShortTermStake,
			TotalTDeposited:       st.TotalTDeposited,
			ExchangeRate:          amount.ExchangeRate(st.TrackedShortTermStake, st.TotalNTCirculating),
			GovernanceShareBps:    st.GovernanceShareBps,
			NeuronIdShortTerm:     st.NeuronIdShortTerm,
			NeuronIdLongTerm:      st.NeuronIdLongTerm,
			InceptionTs:           st.InceptionTs,
		}
	})
	return info
}

// Status is the operational snapshot used by the dashboard:
// queue depths and lifecycle counts that GetInfo
// intentionally omits to keep its response stable for external indexers.
type Status struct {
	PendingTransfers      int
	ExecutedTransfers     int
	WithdrawalsToSplit    int
	WithdrawalsToDissolve int
	WithdrawalsToDisburse int
	WithdrawalsFinalized  int
	ToDisburse            int
	MaturityDisbursed     int
	LastDistributionTs    int64
}

// GetStatus reports queue depths for operators and the dashboard.
func (e *Engine) GetStatus() Status {
	var s Status
	e.View(func(st *State) {
		s = Status{
			PendingTransfers:      len(st.PendingTransfers),
			ExecutedTransfers:     len(st.ExecutedTransfers),
			WithdrawalsToSplit:    len(st.WithdrawalsToSplit),
			WithdrawalsToDissolve: len(st.WithdrawalsToDissolve),
			WithdrawalsToDisburse: len(st.WithdrawalsToDisburse),
			WithdrawalsFinalized:  len(st.WithdrawalsFinalized),
			ToDisburse:            len(st.ToDisburse),
			MaturityDisbursed:     len(st.MaturityDisbursed),
			LastDistributionTs:    st.LastDistributionTs,
		}
	})
	return s
}

// Withdrawal returns a copy of the withdrawal request for id, if any.
func (e *Engine) Withdrawal(id core.WithdrawalId) (WithdrawalRequest, bool) {
	var req WithdrawalRequest
	var ok bool
	e.View(func(st *State) {
		if r, found := st.WithdrawalByID[id]; found {
			req, ok = *r, true
		}
	})
	return req, ok
}

// AirdropBalance returns the claimable R entitlement for principal.
func (e *Engine) AirdropBalance(principal string) amount.R {
	var bal amount.R
	e.View(func(st *State) { bal = st.Airdrop[principal] })
	return bal
}

// PendingTransfersSnapshot returns a stable-ordered copy of the pending
// transfer queue, for transferqueue.Processor to drain.
func (e *Engine) PendingTransfersSnapshot() []PendingTransfer {
	var out []PendingTransfer
	e.View(func(st *State) {
		out = make([]PendingTransfer, 0, len(st.PendingOrder))
		for _, id := range st.PendingOrder {
			out = append(out, st.PendingTransfers[id])
		}
	})
	return out
}

// DueDisbursements returns every ToDisburse entry whose DisburseAt has
// passed nowUnix, for scheduler tasks.
func (e *Engine) DueDisbursements(nowUnix int64) []DisburseRequest {
	var out []DisburseRequest
	e.View(func(st *State) {
		for _, dr := range st.ToDisburse {
			if dr.DisburseAt.Unix() <= nowUnix {
				out = append(out, dr)
			}
		}
	})
	return out
}

// WithdrawalsAwaitingSplit returns a copy of the split queue in FIFO order.
func (e *Engine) WithdrawalsAwaitingSplit() []core.WithdrawalId {
	var out []core.WithdrawalId
	e.View(func(st *State) {
		out = append(out, st.WithdrawalsToSplit...)
	})
	return out
}

// WithdrawalsAwaitingDissolveStart returns a copy of the dissolve-start
// queue in FIFO order.
func (e *Engine) WithdrawalsAwaitingDissolveStart() []core.WithdrawalId {
	var out []core.WithdrawalId
	e.View(func(st *State) {
		out = append(out, st.WithdrawalsToDissolve...)
	})
	return out
}

// MirroredProposals returns a copy of the external-ProposalId to
// mirrored-ProposalId map the proposal mirror consults to avoid
// re-submitting a proposal it has already mirrored.
func (e *Engine) MirroredProposals() map[core.ProposalId]core.ProposalId {
	out := make(map[core.ProposalId]core.ProposalId)
	e.View(func(st *State) {
		for k, v := range st.Proposals {
			out[k] = v
		}
	})
	return out
}

// ProposalByMirroredId looks up the external (NNS-side) ProposalId for a
// mirrored (SNS-side) ProposalId, for relaying a secondary-DAO approval
// back to the external governance vote.
func (e *Engine) ProposalByMirroredId(mirrored core.ProposalId) (core.ProposalId, bool) {
	var nnsID core.ProposalId
	var ok bool
	e.View(func(st *State) {
		for nns, sns := range st.Proposals {
			if sns == mirrored {
				nnsID, ok = nns, true
				return
			}
		}
	})
	return nnsID, ok
}

// WithdrawalStatus names which of the four lifecycle buckets a
// WithdrawalId currently occupies, for the public GetWithdrawalRequests
// query.
type WithdrawalStatus string

const (
	WithdrawalAwaitingSplit         WithdrawalStatus = "AwaitingSplit"
	WithdrawalAwaitingDissolveStart WithdrawalStatus = "AwaitingDissolveStart"
	WithdrawalDissolving            WithdrawalStatus = "Dissolving"
	WithdrawalFinalized             WithdrawalStatus = "Finalized"
	WithdrawalUnknown               WithdrawalStatus = "Unknown"
)

// WithdrawalStatus reports which lifecycle bucket id currently occupies.
func (e *Engine) WithdrawalStatus(id core.WithdrawalId) WithdrawalStatus {
	status := WithdrawalUnknown
	e.View(func(st *State) {
		for _, v := range st.WithdrawalsToSplit {
			if v == id {
				status = WithdrawalAwaitingSplit
				return
			}
		}
		for _, v := range st.WithdrawalsToDissolve {
			if v == id {
				status = WithdrawalAwaitingDissolveStart
				return
			}
		}
		for _, v := range st.WithdrawalsToDisburse {
			if v == id {
				status = WithdrawalDissolving
				return
			}
		}
		if _, ok := st.WithdrawalsFinalized[id]; ok {
			status = WithdrawalFinalized
		}
	})
	return status
}

// WithdrawalsByAccount returns a stable-ordered copy of every open or
// finalized withdrawal whose receiver matches account, or every withdrawal
// known to the process if account is the zero value.
func (e *Engine) WithdrawalsByAccount(account *core.Account) []WithdrawalRequest {
	var out []WithdrawalRequest
	e.View(func(st *State) {
		ids := make([]core.WithdrawalId, 0, len(st.WithdrawalByID))
		for id := range st.WithdrawalByID {
			ids = append(ids, id)
		}
		sortWithdrawalIDs(ids)
		for _, id := range ids {
			req := st.WithdrawalByID[id]
			if account != nil && !req.Receiver.Equal(*account) {
				continue
			}
			out = append(out, *req)
		}
	})
	return out
}

// TransferStatus is the public-facing settlement state of a TransferId.
type TransferStatus struct {
	TransferId core.TransferId
	Executed   bool
	BlockIndex *uint64
}

// TransferStatuses reports the settlement state of each requested id, in
// request order; an unknown id is reported as neither pending nor
// executed (Executed: false, BlockIndex: nil).
func (e *Engine) TransferStatuses(ids []core.TransferId) []TransferStatus {
	out := make([]TransferStatus, 0, len(ids))
	e.View(func(st *State) {
		for _, id := range ids {
			if exec, ok := st.ExecutedTransfers[id]; ok {
				bi := exec.BlockIndex
				out = append(out, TransferStatus{TransferId: id, Executed: true, BlockIndex: bi})
				continue
			}
			out = append(out, TransferStatus{TransferId: id})
		}
	})
	return out
}
