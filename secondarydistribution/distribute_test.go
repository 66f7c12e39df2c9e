package secondarydistribution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/internal/fakeexternal"
	"liquidneuron/secondaryclient"
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
	return eng
}

func TestComputeSplitsProportionallyToStake(t *testing.T) {
	neurons := []secondaryclient.Neuron{
		{NeuronId: 1, Owner: "alice", StakeE8s: 300},
		{NeuronId: 2, Owner: "bob", StakeE8s: 100},
		{NeuronId: 3, Owner: "alice", StakeE8s: 100},
	}
	outcome := Compute(neurons, 1000)
	require.Len(t, outcome.Payouts, 2)

	byOwner := map[string]uint64{}
	for _, p := range outcome.Payouts {
		byOwner[p.Owner] = p.Amount
	}
	require.Equal(t, uint64(800), byOwner["alice"])
	require.Equal(t, uint64(200), byOwner["bob"])
	require.Equal(t, uint64(1000), outcome.TotalPaid)
	require.Zero(t, outcome.Remainder)
}

func TestComputeHandlesZeroStake(t *testing.T) {
	outcome := Compute(nil, 1000)
	require.Empty(t, outcome.Payouts)
	require.Equal(t, uint64(1000), outcome.Remainder)
}

func TestDistributeEnqueuesTransfersPerOwner(t *testing.T) {
	eng := newTestEngine(t)
	dao := fakeexternal.NewSecondaryDAO([]secondaryclient.Neuron{
		{Owner: "alice", StakeE8s: 25 * amount.Scale},
		{Owner: "bob", StakeE8s: 75 * amount.Scale},
	})
	e := New(eng, dao, "self")

	outcome, err := e.Distribute(context.Background(), 100*amount.Scale)
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 2)

	byOwner := map[string]uint64{}
	for _, p := range outcome.Payouts {
		byOwner[p.Owner] = p.Amount
	}
	require.Equal(t, uint64(25*amount.Scale), byOwner["alice"])
	require.Equal(t, uint64(75*amount.Scale), byOwner["bob"])

	pending := eng.PendingTransfersSnapshot()
	require.Len(t, pending, 2)
}

func TestDistributeExcludesOwnPrincipal(t *testing.T) {
	eng := newTestEngine(t)
	dao := fakeexternal.NewSecondaryDAO([]secondaryclient.Neuron{
		{Owner: "alice", StakeE8s: 50 * amount.Scale},
		{Owner: "self", StakeE8s: 50 * amount.Scale},
	})
	e := New(eng, dao, "self")

	outcome, err := e.Distribute(context.Background(), 100*amount.Scale)
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 1)
	require.Equal(t, "alice", outcome.Payouts[0].Owner)
	// alice holds all eligible stake, so the whole budget is hers.
	require.Equal(t, uint64(100*amount.Scale), outcome.Payouts[0].Amount)
}

func TestDistributeDropsPayoutsBelowLedgerFee(t *testing.T) {
	eng := newTestEngine(t)
	dao := fakeexternal.NewSecondaryDAO([]secondaryclient.Neuron{
		{Owner: "whale", StakeE8s: 1_000_000 * amount.Scale},
		{Owner: "shrimp", StakeE8s: 1},
	})
	e := New(eng, dao, "self")

	outcome, err := e.Distribute(context.Background(), 100*amount.Scale)
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 1)
	require.Equal(t, "whale", outcome.Payouts[0].Owner)
	require.NotZero(t, outcome.Remainder)

	pending := eng.PendingTransfersSnapshot()
	require.Len(t, pending, 1)
}

func TestDistributePagesAndDeduplicatesNeurons(t *testing.T) {
	eng := newTestEngine(t)
	// More neurons than one page: the engine must keep paging with the
	// last id as cursor and aggregate every owner exactly once.
	neurons := make([]secondaryclient.Neuron, 0, pageLimit+50)
	for i := 0; i < pageLimit+50; i++ {
		neurons = append(neurons, secondaryclient.Neuron{
			NeuronId: core.NeuronId(i + 1),
			Owner:    "holder",
			StakeE8s: 1 * amount.Scale,
		})
	}
	dao := fakeexternal.NewSecondaryDAO(neurons)
	e := New(eng, dao, "self")

	outcome, err := e.Distribute(context.Background(), 100*amount.Scale)
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 1)
	require.Equal(t, uint64(100*amount.Scale), outcome.Payouts[0].Amount)
}

func TestDistributeGivesUpAfterConsecutiveListFailures(t *testing.T) {
	eng := newTestEngine(t)
	dao := fakeexternal.NewSecondaryDAO(nil)
	dao.ListErr = errors.New("secondary dao unavailable")
	e := New(eng, dao, "self")

	_, err := e.Distribute(context.Background(), 100*amount.Scale)
	require.Error(t, err)
	require.Empty(t, eng.PendingTransfersSnapshot())
}
