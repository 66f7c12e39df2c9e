// Package proposal mirrors pending external-governance proposals into the
// secondary DAO and relays the resulting vote back. Proposal execution
// itself stays with the two governance systems; this engine only mirrors
// and votes.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/secondaryclient"
)

// ErrUnauthorizedCaller is returned by ApproveProposal when the caller is
// not the configured secondary-DAO principal.
var ErrUnauthorizedCaller = errors.New("proposal: caller is not the secondary-DAO principal")

// ErrUnknownMirror is returned by ApproveProposal when the mirrored
// proposal id has no corresponding external proposal on record.
var ErrUnknownMirror = errors.New("proposal: unknown mirrored proposal id")

// Engine mirrors external proposals and relays votes. It holds no state of
// its own beyond what core/state.Engine already tracks in the Proposals
// map; Mirror and ApproveProposal are idempotent with respect to that map.
type Engine struct {
	st                   *state.Engine
	governance           governanceclient.Governance
	secondaryDAO         secondaryclient.SecondaryDAO
	secondaryDAOPrincipal string
	shortTerm            func() (core.NeuronId, bool)
	now                  func() time.Time
}

// New constructs a proposal Engine. secondaryDAOPrincipal is the only
// caller ApproveProposal will accept. shortTerm returns the neuron
// register_vote is issued through.
func New(st *state.Engine, governance governanceclient.Governance, secondaryDAO secondaryclient.SecondaryDAO, secondaryDAOPrincipal string, shortTerm func() (core.NeuronId, bool)) *Engine {
	return &Engine{
		st:                    st,
		governance:            governance,
		secondaryDAO:          secondaryDAO,
		secondaryDAOPrincipal: secondaryDAOPrincipal,
		shortTerm:             shortTerm,
		now:                   time.Now,
	}
}

// Mirror fetches pending external-governance proposals, skips any already
// mirrored, and submits the rest to the secondary DAO, recording a
// MirroredProposal event for each newly submitted one. It returns the
// number of proposals newly mirrored.
func (e *Engine) Mirror(ctx context.Context) (int, error) {
	pending, err := e.governance.GetPendingProposals(ctx)
	if err != nil {
		return 0, fmt.Errorf("proposal: get pending proposals: %w", err)
	}
	already := e.st.MirroredProposals()

	n := 0
	for _, p := range pending {
		if _, mirrored := already[p.ProposalId]; mirrored {
			continue
		}
		snsID, err := e.secondaryDAO.SubmitProposal(ctx, secondaryclient.Proposal{
			Title:   p.Title,
			Summary: p.Summary,
		})
		if err != nil {
			// This proposal simply remains absent from `already` and is
			// retried the next time Mirror runs.
			return n, fmt.Errorf("proposal: submit proposal %d: %w", p.ProposalId, err)
		}
		if err := e.st.Apply(eventlog.MirroredProposal{NnsId: p.ProposalId, SnsId: snsID}, e.now().UTC()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ApproveProposal is invoked by the secondary DAO when a mirrored proposal
// closes; it registers the resulting vote against the external governance
// canister via the short-term neuron. caller must equal the configured
// secondary-DAO principal.
func (e *Engine) ApproveProposal(ctx context.Context, caller string, mirroredID core.ProposalId) error {
	if caller != e.secondaryDAOPrincipal {
		return ErrUnauthorizedCaller
	}
	nnsID, ok := e.st.ProposalByMirroredId(mirroredID)
	if !ok {
		return ErrUnknownMirror
	}
	source, ok := e.shortTerm()
	if !ok {
		return fmt.Errorf("proposal: short-term neuron not yet known")
	}
	if _, err := e.governance.ManageNeuron(ctx, source, governanceclient.CommandRegisterVote, uint64(nnsID)); err != nil {
		return fmt.Errorf("proposal: register vote for %d: %w", nnsID, err)
	}
	return nil
}
