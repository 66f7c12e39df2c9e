package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/amount"
	"liquidneuron/config"
	"liquidneuron/conversion"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/internal/fakeexternal"
	"liquidneuron/ledgerclient"
	"liquidneuron/rewards"
	"liquidneuron/secondaryclient"
	"liquidneuron/secondarydistribution"
	"liquidneuron/subaccount"
	"liquidneuron/transferqueue"
	"liquidneuron/withdrawal"
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
	require.NoError(t, eng.Apply(eventlog.Init{
		GovernanceCanister: "governance",
		CanisterPrincipal:  "liquid-neuron",
		GovernanceShareBps: 1000,
		InceptionTs:        now.Unix(),
	}, now))
	return eng
}

func TestBootstrapEmitsInitOnce(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	elog, err := eventlog.Open(db)
	require.NoError(t, err)

	cfg := &config.Config{GovernanceShareBps: 500}
	require.NoError(t, bootstrap(elog, cfg))
	n, err := elog.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	require.NoError(t, bootstrap(elog, cfg))
	n, err = elog.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n, "bootstrap must not re-emit Init once the log is non-empty")
}

func TestInitializeMainNeuronsClaimsConfiguredIds(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		1: {NeuronId: 1},
		2: {NeuronId: 2},
	}, nil)
	d := taskDeps{
		cfg:        &config.Config{ShortTermNeuronId: 1, LongTermNeuronId: 2},
		st:         eng,
		governance: gov,
	}
	require.NoError(t, initializeMainNeurons(context.Background(), d))
}

func TestInitializeMainNeuronsNoopWithoutConfig(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(nil, nil)
	d := taskDeps{cfg: &config.Config{}, st: eng, governance: gov}
	require.NoError(t, initializeMainNeurons(context.Background(), d))
}

func TestRefreshMainNeuronMarksOnceAndIsIdempotent(t *testing.T) {
	eng := newTestEngine(t)
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		7: {NeuronId: 7, DissolveState: "not_dissolving", CachedStakeE8s: 500 * amount.Scale},
	}, nil)
	d := taskDeps{
		cfg:        &config.Config{ShortTermNeuronId: 7},
		st:         eng,
		governance: gov,
	}
	shortTerm := func() (core.NeuronId, bool) {
		info := eng.GetInfo()
		if info.NeuronIdShortTerm == nil {
			return 0, false
		}
		return *info.NeuronIdShortTerm, true
	}

	require.NoError(t, refreshMainNeuron(context.Background(), d, shortTerm, sixMonths, func(id core.NeuronId) eventlog.Payload {
		return eventlog.NeuronSixMonths{NeuronId: id}
	}))
	id, ok := shortTerm()
	require.True(t, ok)
	require.Equal(t, core.NeuronId(7), id)

	// The governance-reported stake landed in the observed cache.
	var fetched amount.T
	eng.View(func(s *state.State) { fetched = s.ShortTermStakeFetched })
	require.Equal(t, amount.T(500*amount.Scale), fetched)

	// A second call refreshes the cache but must not re-mark the neuron.
	require.NoError(t, refreshMainNeuron(context.Background(), d, shortTerm, sixMonths, func(id core.NeuronId) eventlog.Payload {
		t.Fatal("mark should not be invoked once the neuron is already known")
		return nil
	}))
}

func TestSpawnNeuronsAndDispatchMaturedNeurons(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.NeuronSixMonths{NeuronId: 1}, now))

	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		1: {NeuronId: 1, CachedStakeE8s: 200 * amount.Scale},
	}, nil)
	tLedger := fakeexternal.NewLedger(nil)
	d := taskDeps{
		st:         eng,
		governance: gov,
		rewards:    rewards.New(eng, gov, tLedger, amount.T(100*amount.Scale)),
		shortTerm: func() (core.NeuronId, bool) {
			info := eng.GetInfo()
			if info.NeuronIdShortTerm == nil {
				return 0, false
			}
			return *info.NeuronIdShortTerm, true
		},
		longTerm: func() (core.NeuronId, bool) { return 0, false },
	}

	require.NoError(t, spawnNeurons(context.Background(), d))
	due := eng.DueDisbursements(time.Now().Add(2 * spawnMaturationDelay).Unix())
	require.Len(t, due, 1)
	require.Equal(t, state.DisburseMaturity, due[0].Kind)
	require.Equal(t, eventlog.FromShortTerm, due[0].FromNeuronType)

	// The spawned neuron is still inside its maturation backoff, so an
	// immediate dispatch leaves it queued for a later tick.
	require.NoError(t, dispatchMaturedNeurons(context.Background(), d))
	require.Len(t, eng.DueDisbursements(time.Now().Add(2*spawnMaturationDelay).Unix()), 1)
}

// End-to-end: a first deposit mints 1:1, a redemption walks the full
// split/dissolve/disburse lifecycle, and replaying the log afterwards
// reproduces the live state exactly.
func TestFirstDepositAndWithdrawalEndToEnd(t *testing.T) {
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
		MinDepositE8s:      1 * amount.Scale,
		MinWithdrawE8s:     10 * amount.Scale,
		InceptionTs:        now.Unix(),
	}, now))
	require.NoError(t, eng.Apply(eventlog.NeuronSixMonths{NeuronId: 1}, now))

	alice := core.NewAccount("alice")
	gov := fakeexternal.NewGovernance(map[core.NeuronId]governanceclient.Neuron{
		1: {NeuronId: 1, CachedStakeE8s: 1000 * amount.Scale},
	}, nil)
	tLedger := fakeexternal.NewLedger(map[string]uint64{alice.String(): 100 * amount.Scale})
	ntLedger := fakeexternal.NewLedger(nil)
	conv := conversion.New(eng, tLedger, ntLedger, gov, core.NewAccount("treasury"), core.NewAccount("burn"))

	// First deposit: no prior supply, so 100 T mints exactly 100 nT.
	_, minted, err := conv.IcpToNicp(context.Background(), uuid.New(), alice, 100*amount.Scale)
	require.NoError(t, err)
	require.Equal(t, uint64(100*amount.Scale), minted)

	q := transferqueue.New(eng, transferqueue.WithLedgers(map[core.Unit]ledgerclient.Ledger{core.UnitNT: ntLedger}))
	settled, err := q.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, settled)
	bal, err := ntLedger.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100*amount.Scale), bal, "nT mints carry no fee")

	// Redeem 10 nT and drive the lifecycle to finalization.
	wid, tDue, err := conv.NicpToIcp(context.Background(), uuid.New(), alice, 10*amount.Scale)
	require.NoError(t, err)
	require.Equal(t, uint64(10*amount.Scale), tDue)

	wd := withdrawal.New(eng, gov, func() (core.NeuronId, bool) { return 1, true })
	_, err = wd.ProcessSplits(context.Background())
	require.NoError(t, err)
	_, err = wd.ProcessDissolveStarts(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.WithdrawalDissolving, eng.WithdrawalStatus(core.WithdrawalId(wid)))

	// Replay reproduces the live projection field for field.
	replay, err := state.NewEngine(elog)
	require.NoError(t, err)
	require.True(t, eng.IsEquivalentTo(replay))
}

func lastDistributionTs(eng *state.Engine) int64 {
	var ts int64
	eng.View(func(s *state.State) { ts = s.LastDistributionTs })
	return ts
}

func TestRunSecondaryDistributionBelowMinimumIsNoop(t *testing.T) {
	eng := newTestEngine(t)
	origin := core.NewAccount("liquid-neuron").WithSubaccount(subaccount.RewardOrigin(subaccount.SnsGovernanceEightYears))
	tLedger := fakeexternal.NewLedger(map[string]uint64{origin.String(): 50 * amount.Scale})
	dao := secondarydistribution.New(eng, fakeexternal.NewSecondaryDAO([]secondaryclient.Neuron{
		{Owner: "alice", StakeE8s: 100 * amount.Scale},
	}), "self")
	d := taskDeps{
		cfg:          &config.Config{MinDistributionE8s: 100 * amount.Scale},
		st:           eng,
		tLedger:      tLedger,
		distribution: dao,
	}

	require.NoError(t, runSecondaryDistribution(context.Background(), d))
	require.Zero(t, lastDistributionTs(eng))
}

func TestRunSecondaryDistributionAboveMinimumDistributes(t *testing.T) {
	eng := newTestEngine(t)
	origin := core.NewAccount("liquid-neuron").WithSubaccount(subaccount.RewardOrigin(subaccount.SnsGovernanceEightYears))
	tLedger := fakeexternal.NewLedger(map[string]uint64{origin.String(): 150 * amount.Scale})
	dao := secondarydistribution.New(eng, fakeexternal.NewSecondaryDAO([]secondaryclient.Neuron{
		{Owner: "alice", StakeE8s: 100 * amount.Scale},
	}), "self")
	d := taskDeps{
		cfg:          &config.Config{MinDistributionE8s: 100 * amount.Scale},
		st:           eng,
		tLedger:      tLedger,
		distribution: dao,
	}

	require.NoError(t, runSecondaryDistribution(context.Background(), d))
	require.NotZero(t, lastDistributionTs(eng))

	// A second call the same week is a no-op even with a replenished
	// origin balance.
	before := lastDistributionTs(eng)
	require.NoError(t, runSecondaryDistribution(context.Background(), d))
	require.Equal(t, before, lastDistributionTs(eng))
}
