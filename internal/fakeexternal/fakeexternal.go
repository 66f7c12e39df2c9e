// Package fakeexternal provides in-memory fakes of the three external
// contracts (ledger, governance, secondary DAO) for tests. None of this is
// wired into cmd/liquidneurond; production always talks to the real
// canisters over ledgerclient/governanceclient/secondaryclient's HTTP
// implementations.
package fakeexternal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"liquidneuron/core"
	"liquidneuron/governanceclient"
	"liquidneuron/secondaryclient"
)

// Ledger is an in-memory ledgerclient.Ledger.
type Ledger struct {
	mu          sync.Mutex
	balances    map[string]uint64
	nextBlock   uint64
	TransferErr error
}

// NewLedger returns a Ledger seeded with the given account balances.
func NewLedger(seed map[string]uint64) *Ledger {
	balances := make(map[string]uint64, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &Ledger{balances: balances}
}

func (l *Ledger) Transfer(ctx context.Context, from *[32]byte, to core.Account, amount uint64, memo *uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TransferErr != nil {
		return 0, l.TransferErr
	}
	l.balances[to.String()] += amount
	l.nextBlock++
	return l.nextBlock, nil
}

func (l *Ledger) TransferFrom(ctx context.Context, caller core.Account, to core.Account, amount uint64, memo *uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TransferErr != nil {
		return 0, l.TransferErr
	}
	if l.balances[caller.String()] < amount {
		return 0, fmt.Errorf("fakeexternal: insufficient balance for %s", caller)
	}
	l.balances[caller.String()] -= amount
	l.balances[to.String()] += amount
	l.nextBlock++
	return l.nextBlock, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, account core.Account) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account.String()], nil
}

// Governance is an in-memory governanceclient.Governance.
type Governance struct {
	mu        sync.Mutex
	neurons   map[core.NeuronId]governanceclient.Neuron
	proposals []governanceclient.Proposal
	nextID    core.NeuronId
	ManageErr error
}

// NewGovernance returns a Governance seeded with the given neurons.
func NewGovernance(neurons map[core.NeuronId]governanceclient.Neuron, proposals []governanceclient.Proposal) *Governance {
	cp := make(map[core.NeuronId]governanceclient.Neuron, len(neurons))
	var maxID core.NeuronId
	for k, v := range neurons {
		cp[k] = v
		if k > maxID {
			maxID = k
		}
	}
	return &Governance{neurons: cp, proposals: proposals, nextID: maxID + 1}
}

func (g *Governance) ManageNeuron(ctx context.Context, neuron core.NeuronId, cmd governanceclient.NeuronCommand, arg uint64) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ManageErr != nil {
		return 0, g.ManageErr
	}
	switch cmd {
	case governanceclient.CommandSplit, governanceclient.CommandSpawn:
		id := g.nextID
		g.nextID++
		g.neurons[id] = governanceclient.Neuron{NeuronId: id, CachedStakeE8s: arg}
		return uint64(id), nil
	case governanceclient.CommandDissolve:
		// The fake has no clock: a dissolving neuron is considered
		// dissolved as soon as its recorded timestamp is in the past.
		n := g.neurons[neuron]
		n.NeuronId = neuron
		n.DissolveState = governanceclient.DissolveStateDissolving
		n.WhenDissolvedTs = time.Now().Unix()
		g.neurons[neuron] = n
		return 0, nil
	case governanceclient.CommandStopDissolving:
		n := g.neurons[neuron]
		n.NeuronId = neuron
		n.DissolveState = governanceclient.DissolveStateNotDissolving
		n.WhenDissolvedTs = 0
		g.neurons[neuron] = n
		return 0, nil
	default:
		return 0, nil
	}
}

// SetNeuron overwrites one neuron's reported state.
func (g *Governance) SetNeuron(n governanceclient.Neuron) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.neurons[n.NeuronId] = n
}

func (g *Governance) ListNeurons(ctx context.Context, ids []core.NeuronId) ([]governanceclient.Neuron, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]governanceclient.Neuron, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.neurons[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *Governance) GetFullNeuron(ctx context.Context, id core.NeuronId) (governanceclient.Neuron, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.neurons[id]
	if !ok {
		return governanceclient.Neuron{}, fmt.Errorf("fakeexternal: unknown neuron %d", id)
	}
	return n, nil
}

func (g *Governance) GetPendingProposals(ctx context.Context) ([]governanceclient.Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]governanceclient.Proposal(nil), g.proposals...), nil
}

// SecondaryDAO is an in-memory secondaryclient.SecondaryDAO.
type SecondaryDAO struct {
	mu        sync.Mutex
	neurons   []secondaryclient.Neuron
	proposals map[core.ProposalId]secondaryclient.Proposal
	nextID    core.ProposalId
	ListErr   error
}

// NewSecondaryDAO returns a SecondaryDAO seeded with the given stake-weighted
// neurons. Neurons without an id get sequential ones, so seeds from tests
// that only care about owner/stake still page correctly.
func NewSecondaryDAO(neurons []secondaryclient.Neuron) *SecondaryDAO {
	cp := append([]secondaryclient.Neuron(nil), neurons...)
	for i := range cp {
		if cp[i].NeuronId == 0 {
			cp[i].NeuronId = core.NeuronId(i + 1)
		}
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].NeuronId < cp[j].NeuronId })
	return &SecondaryDAO{neurons: cp, proposals: make(map[core.ProposalId]secondaryclient.Proposal), nextID: 1}
}

func (s *SecondaryDAO) ListNeurons(ctx context.Context, startPageAt core.NeuronId, limit int) ([]secondaryclient.Neuron, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]secondaryclient.Neuron, 0, limit)
	for _, n := range s.neurons {
		if n.NeuronId <= startPageAt {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *SecondaryDAO) GetProposal(ctx context.Context, id core.ProposalId) (secondaryclient.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return secondaryclient.Proposal{}, fmt.Errorf("fakeexternal: unknown proposal %d", id)
	}
	return p, nil
}

func (s *SecondaryDAO) SubmitProposal(ctx context.Context, p secondaryclient.Proposal) (core.ProposalId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	p.ProposalId = id
	s.proposals[id] = p
	return id, nil
}
