// Package secondarydistribution computes and enqueues the proportional T
// payout of a distribution budget across secondary-DAO neurons, weighted
// by stake: big.Rat weights, a deterministic sort for tie-breaking, and an
// explicit undistributed remainder rather than losing it to rounding.
package secondarydistribution

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/secondaryclient"
)

// Paging bounds for neuron enumeration. Enumeration stops after maxPages
// even if the DAO keeps returning fresh ids, and gives up after
// maxConsecutiveListFailures failed calls in a row.
const (
	pageLimit                  = 100
	maxPages                   = 100
	maxConsecutiveListFailures = 5
)

// Payout is one recipient's share of a distribution.
type Payout struct {
	Owner  string
	Amount uint64
}

// Outcome summarizes a computed distribution before it is applied.
type Outcome struct {
	Budget    uint64
	TotalPaid uint64
	Remainder uint64
	Payouts   []Payout
}

// Engine computes and applies secondary distributions. selfPrincipal (this
// process's own principal) is excluded from the payout set: the protocol
// never pays itself.
type Engine struct {
	st            *state.Engine
	dao           secondaryclient.SecondaryDAO
	selfPrincipal string
	now           func() time.Time
}

// New constructs a secondary distribution Engine.
func New(st *state.Engine, dao secondaryclient.SecondaryDAO, selfPrincipal string) *Engine {
	return &Engine{st: st, dao: dao, selfPrincipal: selfPrincipal, now: time.Now}
}

// Compute aggregates stake per owner across every secondary-DAO neuron and
// splits budget proportionally, using exact rational arithmetic so the
// split sums to at most budget (the undistributed remainder is reported,
// never silently dropped).
func Compute(neurons []secondaryclient.Neuron, budget uint64) Outcome {
	stakeByOwner := make(map[string]uint64, len(neurons))
	order := make([]string, 0, len(neurons))
	var totalStake uint64
	for _, n := range neurons {
		if n.StakeE8s == 0 {
			continue
		}
		if _, seen := stakeByOwner[n.Owner]; !seen {
			order = append(order, n.Owner)
		}
		stakeByOwner[n.Owner] += n.StakeE8s
		totalStake += n.StakeE8s
	}
	if totalStake == 0 || budget == 0 {
		return Outcome{Budget: budget, Remainder: budget}
	}

	sort.Slice(order, func(i, j int) bool {
		si, sj := stakeByOwner[order[i]], stakeByOwner[order[j]]
		if si != sj {
			return si > sj
		}
		return order[i] < order[j]
	})

	budgetBig := new(big.Int).SetUint64(budget)
	totalStakeBig := new(big.Int).SetUint64(totalStake)

	var totalPaid uint64
	payouts := make([]Payout, 0, len(order))
	for _, owner := range order {
		weight := new(big.Rat).SetFrac(new(big.Int).SetUint64(stakeByOwner[owner]), totalStakeBig)
		share := new(big.Int).Mul(weight.Num(), budgetBig)
		share.Quo(share, weight.Denom())
		if !share.IsUint64() || share.Sign() <= 0 {
			continue
		}
		amount := share.Uint64()
		payouts = append(payouts, Payout{Owner: owner, Amount: amount})
		totalPaid += amount
	}

	return Outcome{
		Budget:    budget,
		TotalPaid: totalPaid,
		Remainder: budget - totalPaid,
		Payouts:   payouts,
	}
}

// listAllNeurons pages through the DAO's neuron set until a page brings no
// new ids, deduplicating by neuron id. A transient list failure retries
// the same cursor; maxConsecutiveListFailures in a row aborts.
func (e *Engine) listAllNeurons(ctx context.Context) ([]secondaryclient.Neuron, error) {
	seen := make(map[core.NeuronId]struct{})
	var out []secondaryclient.Neuron
	var cursor core.NeuronId
	failures := 0
	for page := 0; page < maxPages; page++ {
		neurons, err := e.dao.ListNeurons(ctx, cursor, pageLimit)
		if err != nil {
			failures++
			if failures >= maxConsecutiveListFailures {
				return nil, fmt.Errorf("secondarydistribution: list neurons after %d attempts: %w", failures, err)
			}
			page--
			continue
		}
		failures = 0
		fresh := 0
		for _, n := range neurons {
			if _, dup := seen[n.NeuronId]; dup {
				continue
			}
			seen[n.NeuronId] = struct{}{}
			out = append(out, n)
			fresh++
			if n.NeuronId > cursor {
				cursor = n.NeuronId
			}
		}
		if fresh == 0 || len(neurons) < pageLimit {
			break
		}
	}
	return out, nil
}

// Distribute enumerates the secondary DAO's neurons, computes the
// proportional split of budget, and enqueues one PendingTransfer per
// payout via DistributeICPtoSNS events. Payouts that would not clear the
// T ledger fee are folded into the remainder instead of being enqueued.
func (e *Engine) Distribute(ctx context.Context, budget uint64) (Outcome, error) {
	neurons, err := e.listAllNeurons(ctx)
	if err != nil {
		return Outcome{}, err
	}
	eligible := neurons[:0]
	for _, n := range neurons {
		if n.Owner == e.selfPrincipal {
			continue
		}
		eligible = append(eligible, n)
	}
	outcome := Compute(eligible, budget)
	now := e.now().UTC()
	kept := outcome.Payouts[:0]
	for _, p := range outcome.Payouts {
		if p.Amount <= uint64(amount.FeeT) {
			outcome.TotalPaid -= p.Amount
			outcome.Remainder += p.Amount
			continue
		}
		if err := e.st.Apply(eventlog.DistributeICPtoSNS{
			Amount:   p.Amount,
			Receiver: core.NewAccount(p.Owner),
		}, now); err != nil {
			return outcome, err
		}
		kept = append(kept, p)
	}
	outcome.Payouts = kept
	return outcome, nil
}
