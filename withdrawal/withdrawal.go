// Package withdrawal drives the nT -> T withdrawal lifecycle state
// machine: AwaitingSplit -> AwaitingDissolveStart -> Dissolving ->
// Finalized. The engine is clock-injected; each method performs one named
// transition against external state for the withdrawals queued at that
// stage. A withdrawal at any other stage is left alone, not reported as an
// error.
package withdrawal

import (
	"context"
	"fmt"
	"time"

	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
)

// DissolveDelay is the fixed delay applied to every neuron split off for a
// withdrawal before it starts dissolving: the redemption window of
// approximately six months, plus one day of slack.
const DissolveDelay = 6*30*24*time.Hour + 24*time.Hour

// Engine drives withdrawal transitions. Each Process* method is intended to
// be called once per scheduler tick (scheduler/); it is idempotent in the
// sense that a withdrawal already moved past a stage will simply not appear
// in that stage's queue on the next call.
type Engine struct {
	st         *state.Engine
	governance governanceclient.Governance
	shortTerm  func() (core.NeuronId, bool)
	now        func() time.Time
}

// New constructs an Engine. shortTerm returns the short-term main neuron's
// id, the source every withdrawal is split from.
func New(st *state.Engine, governance governanceclient.Governance, shortTerm func() (core.NeuronId, bool)) *Engine {
	return &Engine{st: st, governance: governance, shortTerm: shortTerm, now: time.Now}
}

// ProcessSplits splits a neuron off the short-term main neuron for every
// withdrawal awaiting split, recording SplitNeuron for each.
func (e *Engine) ProcessSplits(ctx context.Context) (int, error) {
	source, ok := e.shortTerm()
	if !ok {
		return 0, fmt.Errorf("withdrawal: short-term neuron not yet known")
	}
	n := 0
	for _, id := range e.st.WithdrawalsAwaitingSplit() {
		req, ok := e.st.Withdrawal(id)
		if !ok {
			continue
		}
		result, err := e.governance.ManageNeuron(ctx, source, governanceclient.CommandSplit, uint64(req.TDue))
		if err != nil {
			return n, fmt.Errorf("withdrawal: split for %d: %w", id, err)
		}
		if err := e.st.Apply(eventlog.SplitNeuron{WithdrawalId: id, NeuronId: core.NeuronId(result)}, e.now().UTC()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ProcessDissolveStarts starts dissolving every split neuron awaiting it,
// recording StartedToDissolve with the resulting disburse time.
func (e *Engine) ProcessDissolveStarts(ctx context.Context) (int, error) {
	n := 0
	for _, id := range e.st.WithdrawalsAwaitingDissolveStart() {
		req, ok := e.st.Withdrawal(id)
		if !ok || req.NeuronId == nil {
			continue
		}
		if _, err := e.governance.ManageNeuron(ctx, *req.NeuronId, governanceclient.CommandDissolve, 0); err != nil {
			return n, fmt.Errorf("withdrawal: start dissolving for %d: %w", id, err)
		}
		disburseAt := e.now().Add(DissolveDelay)
		if err := e.st.Apply(eventlog.StartedToDissolve{WithdrawalId: id, DisburseAt: disburseAt.Unix()}, e.now().UTC()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// listNeuronsChunk bounds how many neuron ids a single list_neurons call
// carries.
const listNeuronsChunk = 100

// ProcessDisbursements disburses every user-withdrawal neuron whose
// dissolve delay has elapsed, confirming with governance first that the
// neuron actually reports itself dissolved. Maturity neurons in the same
// queue are the reward dispatcher's to harvest, not ours.
func (e *Engine) ProcessDisbursements(ctx context.Context) (int, error) {
	nowUnix := e.now().Unix()
	due := make([]state.DisburseRequest, 0)
	for _, dr := range e.st.DueDisbursements(nowUnix) {
		if dr.Kind == state.DisburseUserWithdrawal {
			due = append(due, dr)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]core.NeuronId, len(due))
	for i, dr := range due {
		ids[i] = dr.NeuronId
	}
	dissolved := make(map[core.NeuronId]bool, len(ids))
	for start := 0; start < len(ids); start += listNeuronsChunk {
		end := start + listNeuronsChunk
		if end > len(ids) {
			end = len(ids)
		}
		neurons, err := e.governance.ListNeurons(ctx, ids[start:end])
		if err != nil {
			return 0, fmt.Errorf("withdrawal: list neurons: %w", err)
		}
		for _, neuron := range neurons {
			if neuron.DissolveState == governanceclient.DissolveStateDissolved ||
				(neuron.WhenDissolvedTs > 0 && neuron.WhenDissolvedTs <= nowUnix) {
				dissolved[neuron.NeuronId] = true
			}
		}
	}

	n := 0
	for _, dr := range due {
		if !dissolved[dr.NeuronId] {
			continue
		}
		blockHeight, err := e.governance.ManageNeuron(ctx, dr.NeuronId, governanceclient.CommandDisburse, 0)
		if err != nil {
			return n, fmt.Errorf("withdrawal: disburse neuron %d: %w", dr.NeuronId, err)
		}
		if err := e.st.Apply(eventlog.DisbursedUserNeuron{WithdrawalId: dr.WithdrawalId, TransferBlockHeight: blockHeight}, e.now().UTC()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
