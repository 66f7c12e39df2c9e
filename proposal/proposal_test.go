package proposal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/require"

	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/internal/fakeexternal"
	"liquidneuron/secondaryclient"
)

func newTestEngine(t *testing.T, proposals []governanceclient.Proposal) (*Engine, *state.Engine, core.NeuronId) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log, err := eventlog.Open(db)
	require.NoError(t, err)
	eng, err := state.NewEngine(log)
	require.NoError(t, err)

	require.NoError(t, eng.Apply(eventlog.Init{
		GovernanceShareBps: 1_000,
		InceptionTs:        0,
	}, time.Unix(0, 0).UTC()))

	shortTermID := core.NeuronId(7)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		shortTermID: {NeuronId: shortTermID, CachedStakeE8s: 1_000_000},
	}, proposals)
	dao := fakeexternal.NewSecondaryDAO(nil)

	p := New(eng, gov, dao, "secondary-dao-principal", func() (core.NeuronId, bool) { return shortTermID, true })
	return p, eng, shortTermID
}

func TestMirrorSubmitsNewProposalsOnce(t *testing.T) {
	proposals := []governanceclient.Proposal{
		{ProposalId: 1, Title: "Raise dissolve delay", Summary: "..."},
	}
	p, eng, _ := newTestEngine(t, proposals)

	n, err := p.Mirror(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	mirrored := eng.MirroredProposals()
	require.Len(t, mirrored, 1)
	require.Contains(t, mirrored, core.ProposalId(1))

	// Re-running Mirror with the same pending set is a no-op.
	n, err = p.Mirror(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestApproveProposalRejectsWrongCaller(t *testing.T) {
	proposals := []governanceclient.Proposal{{ProposalId: 1, Title: "t", Summary: "s"}}
	p, _, _ := newTestEngine(t, proposals)

	_, err := p.Mirror(context.Background())
	require.NoError(t, err)

	err = p.ApproveProposal(context.Background(), "someone-else", core.ProposalId(1))
	require.ErrorIs(t, err, ErrUnauthorizedCaller)
}

func TestApproveProposalRegistersVote(t *testing.T) {
	proposals := []governanceclient.Proposal{{ProposalId: 1, Title: "t", Summary: "s"}}
	p, eng, _ := newTestEngine(t, proposals)

	_, err := p.Mirror(context.Background())
	require.NoError(t, err)

	mirrored := eng.MirroredProposals()
	sns := mirrored[core.ProposalId(1)]

	err = p.ApproveProposal(context.Background(), "secondary-dao-principal", sns)
	require.NoError(t, err)
}

func TestApproveProposalUnknownMirrorID(t *testing.T) {
	p, _, _ := newTestEngine(t, nil)
	err := p.ApproveProposal(context.Background(), "secondary-dao-principal", core.ProposalId(999))
	require.ErrorIs(t, err, ErrUnknownMirror)
}

var _ = secondaryclient.Proposal{}
