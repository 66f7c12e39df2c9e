package rewards

import (
	"context"
	"fmt"
	"time"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/ledgerclient"
	"liquidneuron/observability/metrics"
	"liquidneuron/subaccount"
)

// Engine harvests a spawned maturity neuron into its reward-origin
// subaccount and splits whatever T has accumulated there between the nT
// treasury and the governance share: governance_share_bps of the balance
// goes to the governance treasury, the complement increases
// tracked_short_term_stake.
type Engine struct {
	st              *state.Engine
	governance      governanceclient.Governance
	tLedger         ledgerclient.Ledger
	metrics         *metrics.RewardsMetrics
	index           *Index
	now             func() time.Time
	minDistribution amount.T
}

// New constructs a reward dispatch Engine. minDistribution is the split
// threshold: an origin balance at or below it is left accumulating for a
// later cycle rather than split at a loss to ledger fees.
func New(st *state.Engine, governance governanceclient.Governance, tLedger ledgerclient.Ledger, minDistribution amount.T) *Engine {
	return &Engine{
		st:              st,
		governance:      governance,
		tLedger:         tLedger,
		metrics:         metrics.Rewards(),
		index:           NewIndex(),
		now:             time.Now,
		minDistribution: minDistribution,
	}
}

// Dispatch disburses neuron's stake into its reward-origin subaccount,
// then reads that subaccount's on-ledger T balance and splits it. A
// spawned maturity neuron holds its harvested rewards as stake, so the
// split works off the ledger balance, never off the neuron's maturity
// field. Disbursing has no dissolve-delay requirement here (the neuron
// never represents a user's principal), so this calls Disburse directly
// rather than going through the split/dissolve/disburse lifecycle
// withdrawal/ drives for user withdrawals.
func (e *Engine) Dispatch(ctx context.Context, neuron core.NeuronId, fromType eventlog.FromNeuronType) (nicpAmount, snsGovAmount uint64, err error) {
	full, err := e.governance.GetFullNeuron(ctx, neuron)
	if err != nil {
		return 0, 0, fmt.Errorf("rewards: get full neuron %d: %w", neuron, err)
	}

	blockHeight, err := e.governance.ManageNeuron(ctx, neuron, governanceclient.CommandDisburse, full.CachedStakeE8s)
	if err != nil {
		return 0, 0, fmt.Errorf("rewards: disburse neuron %d: %w", neuron, err)
	}
	if err := e.st.Apply(eventlog.DisbursedMaturityNeuron{
		NeuronId:            neuron,
		TransferBlockHeight: blockHeight,
	}, e.now().UTC()); err != nil {
		return 0, 0, err
	}

	var govShareBps uint64
	var canisterPrincipal string
	e.st.View(func(s *state.State) {
		govShareBps = s.GovernanceShareBps
		canisterPrincipal = s.CanisterPrincipal
	})

	origin := core.NewAccount(canisterPrincipal).WithSubaccount(subaccount.RewardOrigin(originVariant(fromType)))
	balance, err := e.tLedger.BalanceOf(ctx, origin)
	if err != nil {
		return 0, 0, fmt.Errorf("rewards: read origin balance: %w", err)
	}
	if balance <= uint64(e.minDistribution) {
		return 0, 0, nil
	}

	govShare, ntShare := amount.GovernanceShare(amount.T(balance), govShareBps)

	if err := e.st.Apply(eventlog.DispatchICPRewards{
		NicpAmount:     uint64(ntShare),
		SnsGovAmount:   uint64(govShare),
		FromNeuronType: fromType,
	}, e.now().UTC()); err != nil {
		return 0, 0, err
	}

	e.metrics.RecordDispatch(neuronLabel(fromType))
	e.updateIndex(amount.T(balance))
	return uint64(ntShare), uint64(govShare), nil
}

// originVariant maps a main neuron to the reward-origin subaccount its
// spawned maturity disburses into.
func originVariant(fromType eventlog.FromNeuronType) subaccount.RewardOriginVariant {
	if fromType == eventlog.FromLongTerm {
		return subaccount.SnsGovernanceEightYears
	}
	return subaccount.NICPSixMonths
}

func neuronLabel(fromType eventlog.FromNeuronType) string {
	if fromType == eventlog.FromLongTerm {
		return "long_term"
	}
	return "short_term"
}

// updateIndex refreshes the dashboard APR index using the realized reward
// rate for this dispatch relative to currently tracked stake.
func (e *Engine) updateIndex(disbursed amount.T) {
	var tracked amount.T
	e.st.View(func(s *state.State) { tracked = s.TrackedShortTermStake })
	if tracked == 0 {
		return
	}
	aprBps := uint64(disbursed) * basisPointsDenom * secondsPerYear / uint64(tracked)
	e.index.Update(e.now(), aprBps)
}

// Index returns the current dashboard accrual index.
func (e *Engine) Index() *Index {
	return e.index
}
