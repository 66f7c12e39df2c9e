package rewards

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/internal/fakeexternal"
	"liquidneuron/subaccount"
)

const testMinDistribution = amount.T(100 * amount.Scale)

func newTestEngine(t *testing.T) *state.Engine {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	elog, err := eventlog.Open(db)
	require.NoError(t, err)
	eng, err := state.NewEngine(elog)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.Init{
		GovernanceCanister: "governance",
		CanisterPrincipal:  "liquid-neuron",
		GovernanceShareBps: 1000,
		InceptionTs:        now.Unix(),
	}, now))
	return eng
}

func shortTermOrigin() core.Account {
	return core.NewAccount("liquid-neuron").WithSubaccount(subaccount.RewardOrigin(subaccount.NICPSixMonths))
}

func TestDispatchSplitsOriginBalance(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		5: {NeuronId: 5, CachedStakeE8s: 200 * amount.Scale},
	}, nil)
	tLedger := fakeexternal.NewLedger(map[string]uint64{shortTermOrigin().String(): 200 * amount.Scale})
	e := New(eng, gov, tLedger, testMinDistribution)

	before := eng.GetInfo().TrackedShortTermStake
	nicp, gov8, err := e.Dispatch(context.Background(), 5, eventlog.FromShortTerm)
	require.NoError(t, err)
	// 1000 bps of the 200 T origin balance goes to governance.
	require.Equal(t, uint64(180*amount.Scale), nicp)
	require.Equal(t, uint64(20*amount.Scale), gov8)

	after := eng.GetInfo().TrackedShortTermStake
	require.Greater(t, after, before)

	pending := eng.PendingTransfersSnapshot()
	require.Len(t, pending, 2)
}

func TestDispatchClearsPendingDisbursement(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.MaturityNeuron{
		NeuronId:       5,
		FromNeuronType: eventlog.FromShortTerm,
		Receiver:       shortTermOrigin(),
		DisburseAt:     now.Unix() - 1,
	}, now))
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		5: {NeuronId: 5, CachedStakeE8s: 10 * amount.Scale},
	}, nil)
	e := New(eng, gov, fakeexternal.NewLedger(nil), testMinDistribution)

	_, _, err := e.Dispatch(context.Background(), 5, eventlog.FromShortTerm)
	require.NoError(t, err)
	require.Empty(t, eng.DueDisbursements(now.Unix()))
}

func TestDispatchSkipsSplitBelowMinDistribution(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		5: {NeuronId: 5, CachedStakeE8s: 10 * amount.Scale},
	}, nil)
	tLedger := fakeexternal.NewLedger(map[string]uint64{shortTermOrigin().String(): 10 * amount.Scale})
	e := New(eng, gov, tLedger, testMinDistribution)

	nicp, gov8, err := e.Dispatch(context.Background(), 5, eventlog.FromShortTerm)
	require.NoError(t, err)
	require.Zero(t, nicp)
	require.Zero(t, gov8)
	// The origin balance stays put for a later cycle: no split transfers.
	require.Empty(t, eng.PendingTransfersSnapshot())
}
