package state

import (
	"fmt"
	"time"

	"liquidneuron/airdrop"
	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/eventlog"
	"liquidneuron/subaccount"
)

// InitialNeuronStakeE8s is the stake the operator seeds the genesis
// short-term neuron with. It enters the tracked balances when
// NeuronSixMonths is recorded, backing the protocol's first nT.
const InitialNeuronStakeE8s = amount.Scale + 42

// applyLocked folds a single event into st. Callers must already hold e.mu
// (Apply) or be running single-threaded replay (NewEngine). Every branch
// here is the authoritative definition of what an event tag means; nothing
// outside this file may mutate State directly.
func (e *Engine) applyLocked(payload eventlog.Payload, ts time.Time) error {
	st := e.st
	if _, isInit := payload.(eventlog.Init); !isInit && !st.Initialized {
		return fmt.Errorf("state: %s before Init", payload.EventType())
	}
	switch ev := payload.(type) {

	case eventlog.Init:
		if st.Initialized {
			return fmt.Errorf("state: duplicate Init event")
		}
		st.LedgerCanisterT = ev.LedgerCanisterT
		st.LedgerCanisterNT = ev.LedgerCanisterNT
		st.LedgerCanisterR = ev.LedgerCanisterR
		st.GovernanceCanister = ev.GovernanceCanister
		st.SecondaryDAOCanister = ev.SecondaryDAOCanister
		st.CanisterPrincipal = ev.CanisterPrincipal
		st.GovernanceShareBps = ev.GovernanceShareBps
		st.MinDepositE8s = ev.MinDepositE8s
		st.MinWithdrawE8s = ev.MinWithdrawE8s
		st.InceptionTs = ev.InceptionTs
		st.Initialized = true

	case eventlog.Upgrade:
		if !st.Initialized {
			return fmt.Errorf("state: Upgrade before Init")
		}
		if ev.GovernanceShareBps != nil {
			st.GovernanceShareBps = *ev.GovernanceShareBps
		}
		if ev.MinDepositE8s != nil {
			st.MinDepositE8s = *ev.MinDepositE8s
		}
		if ev.MinWithdrawE8s != nil {
			st.MinWithdrawE8s = *ev.MinWithdrawE8s
		}

	case eventlog.IcpDeposit:
		before := st.TotalTDeposited
		st.TrackedShortTermStake = amount.AddT(st.TrackedShortTermStake, amount.T(ev.Amount))
		st.TotalTDeposited = amount.AddT(st.TotalTDeposited, amount.T(ev.Amount))
		st.TotalNTCirculating = amount.AddNT(st.TotalNTCirculating, amount.NT(ev.NtMinted))
		credited := airdrop.Integral(before, st.TotalTDeposited)
		if credited > 0 {
			st.Airdrop[ev.Receiver.Owner] = amount.AddR(st.Airdrop[ev.Receiver.Owner], credited)
			e.storeAirdrop(ev.Receiver.Owner)
		}
		if ev.NtMinted > 0 {
			memo := ev.BlockIndex
			st.enqueueTransfer(PendingTransfer{
				ToAccount: ev.Receiver,
				Amount:    ev.NtMinted,
				Unit:      core.UnitNT,
				Memo:      &memo,
			})
		}

	case eventlog.NIcpWithdrawal:
		st.TrackedShortTermStake = amount.SubT(st.TrackedShortTermStake, amount.T(ev.TDue))
		st.TotalNTCirculating = amount.SubNT(st.TotalNTCirculating, amount.NT(ev.NicpBurned))
		id := st.NextWithdrawalId
		st.NextWithdrawalId++
		st.WithdrawalByID[id] = &WithdrawalRequest{
			WithdrawalId: id,
			Receiver:     ev.Receiver,
			NtBurned:     amount.NT(ev.NicpBurned),
			NtBurnBlock:  ev.NicpBurnIndex,
			TDue:         amount.T(ev.TDue),
			CreatedAt:    ts,
		}
		st.WithdrawalsToSplit = append(st.WithdrawalsToSplit, id)

	case eventlog.SplitNeuron:
		if !removeID(&st.WithdrawalsToSplit, ev.WithdrawalId) {
			return fmt.Errorf("state: SplitNeuron for withdrawal %d not awaiting split", ev.WithdrawalId)
		}
		req, ok := st.WithdrawalByID[ev.WithdrawalId]
		if !ok {
			return fmt.Errorf("state: SplitNeuron for unknown withdrawal %d", ev.WithdrawalId)
		}
		neuronID := ev.NeuronId
		req.NeuronId = &neuronID
		st.WithdrawalsToDissolve = append(st.WithdrawalsToDissolve, ev.WithdrawalId)

	case eventlog.StartedToDissolve:
		if !removeID(&st.WithdrawalsToDissolve, ev.WithdrawalId) {
			return fmt.Errorf("state: StartedToDissolve for withdrawal %d not awaiting dissolve start", ev.WithdrawalId)
		}
		req, ok := st.WithdrawalByID[ev.WithdrawalId]
		if !ok || req.NeuronId == nil {
			return fmt.Errorf("state: StartedToDissolve for withdrawal %d without a split neuron", ev.WithdrawalId)
		}
		st.WithdrawalsToDisburse = append(st.WithdrawalsToDisburse, ev.WithdrawalId)
		st.ToDisburse[*req.NeuronId] = DisburseRequest{
			DisburseAt:   time.Unix(ev.DisburseAt, 0).UTC(),
			Receiver:     req.Receiver,
			NeuronId:     *req.NeuronId,
			Kind:         DisburseUserWithdrawal,
			WithdrawalId: ev.WithdrawalId,
		}

	case eventlog.DisbursedUserNeuron:
		if !removeID(&st.WithdrawalsToDisburse, ev.WithdrawalId) {
			return fmt.Errorf("state: DisbursedUserNeuron for withdrawal %d not awaiting disburse", ev.WithdrawalId)
		}
		req, ok := st.WithdrawalByID[ev.WithdrawalId]
		if !ok || req.NeuronId == nil {
			return fmt.Errorf("state: DisbursedUserNeuron for withdrawal %d without a split neuron", ev.WithdrawalId)
		}
		delete(st.ToDisburse, *req.NeuronId)
		st.WithdrawalsFinalized[ev.WithdrawalId] = ev.TransferBlockHeight

	case eventlog.DispatchICPRewards:
		// Both transfers drain the reward-origin subaccount the harvested
		// neuron disbursed into.
		originSub := subaccount.RewardOrigin(rewardOriginVariant(ev.FromNeuronType))
		if ev.NicpAmount > uint64(amount.FeeT) {
			st.TrackedShortTermStake = amount.AddT(st.TrackedShortTermStake, amount.SubT(amount.T(ev.NicpAmount), amount.FeeT))
		}
		if ev.NicpAmount > 0 {
			memo := uint64(ts.Unix())
			from := originSub
			st.enqueueTransfer(PendingTransfer{
				FromSubaccount: &from,
				ToAccount:      st.shortTermNeuronAccount(),
				Amount:         ev.NicpAmount,
				Unit:           core.UnitT,
				Memo:           &memo,
			})
		}
		if ev.SnsGovAmount > 0 {
			memo := uint64(ts.Unix())
			from := originSub
			// The governance treasury lives with the secondary DAO, never
			// with the external governance canister.
			st.enqueueTransfer(PendingTransfer{
				FromSubaccount: &from,
				ToAccount:      core.NewAccount(st.SecondaryDAOCanister),
				Amount:         ev.SnsGovAmount,
				Unit:           core.UnitT,
				Memo:           &memo,
			})
		}

	case eventlog.MaturityNeuron:
		st.ToDisburse[ev.NeuronId] = DisburseRequest{
			DisburseAt:     time.Unix(ev.DisburseAt, 0).UTC(),
			Receiver:       ev.Receiver,
			NeuronId:       ev.NeuronId,
			Kind:           DisburseMaturity,
			FromNeuronType: ev.FromNeuronType,
		}

	case eventlog.DisbursedMaturityNeuron:
		delete(st.ToDisburse, ev.NeuronId)
		st.MaturityDisbursed[ev.NeuronId] = ev.TransferBlockHeight

	case eventlog.DistributeICPtoSNS:
		st.enqueueTransfer(PendingTransfer{
			ToAccount: ev.Receiver,
			Amount:    ev.Amount,
			Unit:      core.UnitT,
		})
		if ts.Unix() > st.LastDistributionTs {
			st.LastDistributionTs = ts.Unix()
		}

	case eventlog.TransferExecuted:
		pending, ok := st.PendingTransfers[ev.TransferId]
		if !ok {
			return fmt.Errorf("state: TransferExecuted for unknown transfer %d", ev.TransferId)
		}
		delete(st.PendingTransfers, ev.TransferId)
		removePendingOrder(&st.PendingOrder, ev.TransferId)
		st.ExecutedTransfers[ev.TransferId] = ExecutedTransfer{
			PendingTransfer: pending,
			CompletedAt:     ts,
			BlockIndex:      ev.BlockIndex,
		}

	case eventlog.MergeNeuron:
		req := st.withdrawalByNeuron(ev.NeuronId)
		if req == nil {
			return fmt.Errorf("state: MergeNeuron for neuron %d not tied to an open withdrawal", ev.NeuronId)
		}
		removeID(&st.WithdrawalsToDissolve, req.WithdrawalId)
		removeID(&st.WithdrawalsToDisburse, req.WithdrawalId)
		delete(st.ToDisburse, ev.NeuronId)
		delete(st.WithdrawalByID, req.WithdrawalId)
		st.TrackedShortTermStake = amount.AddT(st.TrackedShortTermStake, req.TDue)
		st.TotalNTCirculating = amount.AddNT(st.TotalNTCirculating, req.NtBurned)

	case eventlog.ClaimedAirdrop:
		delete(st.Airdrop, ev.Caller)
		e.storeAirdrop(ev.Caller)

	case eventlog.MirroredProposal:
		st.Proposals[ev.NnsId] = ev.SnsId

	case eventlog.NeuronSixMonths:
		st.NeuronSixMonthsSeen = true
		id := ev.NeuronId
		st.NeuronIdShortTerm = &id
		// The genesis neuron's seed stake enters circulation here: it
		// backs the protocol's first nT at the 1:1 inception rate.
		st.TrackedShortTermStake = amount.AddT(st.TrackedShortTermStake, amount.T(InitialNeuronStakeE8s))
		st.TotalNTCirculating = amount.AddNT(st.TotalNTCirculating, amount.NT(InitialNeuronStakeE8s))

	case eventlog.NeuronEightYears:
		st.NeuronEightYearsSeen = true
		id := ev.NeuronId
		st.NeuronIdLongTerm = &id

	default:
		return fmt.Errorf("state: unknown event variant %T (tag %d)", payload, payload.Tag())
	}
	return nil
}

// rewardOriginVariant maps a harvested neuron's origin to the subaccount
// variant its spawn rewards land in.
func rewardOriginVariant(from eventlog.FromNeuronType) subaccount.RewardOriginVariant {
	if from == eventlog.FromLongTerm {
		return subaccount.SnsGovernanceEightYears
	}
	return subaccount.NICPSixMonths
}

// shortTermNeuronAccount is the governance-owned staking account of the
// short-term main neuron; T sent here tops up its stake.
func (st *State) shortTermNeuronAccount() core.Account {
	sub := subaccount.NeuronStake([]byte(st.CanisterPrincipal), subaccount.ShortTermNeuronNonce)
	return core.NewAccount(st.GovernanceCanister).WithSubaccount(sub)
}

// enqueueTransfer assigns the next TransferId to t and records it as
// pending, in both the lookup map and the insertion-ordered slice the
// transfer queue drains from.
func (st *State) enqueueTransfer(t PendingTransfer) {
	t.TransferId = st.NextTransferId
	st.NextTransferId++
	st.PendingTransfers[t.TransferId] = t
	st.PendingOrder = append(st.PendingOrder, t.TransferId)
}

func (st *State) withdrawalByNeuron(id core.NeuronId) *WithdrawalRequest {
	for _, req := range st.WithdrawalByID {
		if req.NeuronId != nil && *req.NeuronId == id {
			return req
		}
	}
	return nil
}

// removeID deletes id's first occurrence from *ids, reporting whether it
// was present.
func removeID[T comparable](ids *[]T, id T) bool {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

func removePendingOrder(order *[]core.TransferId, id core.TransferId) {
	removeID(order, id)
}
