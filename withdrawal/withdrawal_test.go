package withdrawal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/internal/fakeexternal"
)

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
	require.NoError(t, eng.Apply(eventlog.Init{InceptionTs: now.Unix()}, now))
	require.NoError(t, eng.Apply(eventlog.NeuronSixMonths{NeuronId: 1}, now))
	receiver := core.NewAccount("alice")
	require.NoError(t, eng.Apply(eventlog.IcpDeposit{Receiver: receiver, Amount: 100, BlockIndex: 1, NtMinted: 100}, now))
	require.NoError(t, eng.Apply(eventlog.NIcpWithdrawal{Receiver: receiver, NicpBurned: 50, NicpBurnIndex: 2, TDue: 50}, now))
	return eng
}

func shortTermNeuron(eng *state.Engine) func() (core.NeuronId, bool) {
	return func() (core.NeuronId, bool) {
		info := eng.GetInfo()
		if info.NeuronIdShortTerm == nil {
			return 0, false
		}
		return *info.NeuronIdShortTerm, true
	}
}

func TestLifecycleAdvancesThroughAllStages(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{1: {NeuronId: 1, CachedStakeE8s: 1000}}, nil)
	e := New(eng, gov, shortTermNeuron(eng))
	ctx := context.Background()

	n, err := e.ProcessSplits(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.WithdrawalsAwaitingSplit())

	n, err = e.ProcessDissolveStarts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.WithdrawalsAwaitingDissolveStart())

	e.now = func() time.Time { return time.Now().UTC().Add(DissolveDelay + time.Second) }
	n, err = e.ProcessDisbursements(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.DueDisbursements(time.Now().Unix()+int64(DissolveDelay.Seconds())+10))
}

func TestProcessDisbursementsWaitsForGovernanceToReportDissolved(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{1: {NeuronId: 1, CachedStakeE8s: 1000}}, nil)
	e := New(eng, gov, shortTermNeuron(eng))
	ctx := context.Background()

	_, err := e.ProcessSplits(ctx)
	require.NoError(t, err)
	_, err = e.ProcessDissolveStarts(ctx)
	require.NoError(t, err)

	// Our clock says the neuron is due, but governance still reports it
	// dissolving with time left: the disbursement must wait.
	future := time.Now().Add(DissolveDelay + 48*time.Hour)
	gov.SetNeuron(governanceclient.Neuron{
		NeuronId:        2,
		DissolveState:   governanceclient.DissolveStateDissolving,
		WhenDissolvedTs: future.Unix(),
	})
	e.now = func() time.Time { return time.Now().UTC().Add(DissolveDelay + time.Second) }
	n, err := e.ProcessDisbursements(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, eng.DueDisbursements(e.now().Unix()), 1)
}
