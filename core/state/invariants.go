package state

import (
	"fmt"
	"log/slog"
)

// checkInvariants enforces the structural invariants the projection must
// never violate. A violation means a bug in applyLocked or a corrupt log,
// either of which this process cannot safely keep running past. It logs
// at Error and panics, the same fatal posture Apply and Append take on
// storage failures.
func checkInvariants(st *State) {
	if err := validate(st); err != nil {
		slog.Error("state: invariant violation", "error", err)
		panic(fmt.Errorf("state: invariant violation: %w", err))
	}
}

func validate(st *State) error {
	if st.GovernanceShareBps > 10_000 {
		return fmt.Errorf("state: governance share %d exceeds 10000 bps", st.GovernanceShareBps)
	}

	if len(st.PendingOrder) != len(st.PendingTransfers) {
		return fmt.Errorf("state: pending order has %d entries, pending transfers has %d", len(st.PendingOrder), len(st.PendingTransfers))
	}
	for _, id := range st.PendingOrder {
		if _, ok := st.PendingTransfers[id]; !ok {
			return fmt.Errorf("state: pending order references unknown transfer %d", id)
		}
	}

	membership := make(map[uint64]int, len(st.WithdrawalByID))
	mark := func(id uint64) error {
		membership[id]++
		if membership[id] > 1 {
			return fmt.Errorf("state: withdrawal %d present in more than one lifecycle set", id)
		}
		return nil
	}
	for _, id := range st.WithdrawalsToSplit {
		if err := mark(uint64(id)); err != nil {
			return err
		}
	}
	for _, id := range st.WithdrawalsToDissolve {
		if err := mark(uint64(id)); err != nil {
			return err
		}
	}
	for _, id := range st.WithdrawalsToDisburse {
		if err := mark(uint64(id)); err != nil {
			return err
		}
	}
	for id := range st.WithdrawalsFinalized {
		if err := mark(uint64(id)); err != nil {
			return err
		}
	}

	for id := range st.WithdrawalByID {
		if uint64(id) >= uint64(st.NextWithdrawalId) {
			return fmt.Errorf("state: withdrawal %d was issued past NextWithdrawalId %d", id, st.NextWithdrawalId)
		}
	}
	for id := range st.PendingTransfers {
		if uint64(id) >= uint64(st.NextTransferId) {
			return fmt.Errorf("state: transfer %d was issued past NextTransferId %d", id, st.NextTransferId)
		}
	}
	for id, exec := range st.ExecutedTransfers {
		if uint64(id) >= uint64(st.NextTransferId) {
			return fmt.Errorf("state: executed transfer %d was issued past NextTransferId %d", id, st.NextTransferId)
		}
		if exec.TransferId != id {
			return fmt.Errorf("state: executed transfer map key %d disagrees with stored TransferId %d", id, exec.TransferId)
		}
	}

	for neuronID, dr := range st.ToDisburse {
		if dr.NeuronId != neuronID {
			return fmt.Errorf("state: to-disburse entry keyed by neuron %d holds mismatched neuron %d", neuronID, dr.NeuronId)
		}
	}

	return nil
}
