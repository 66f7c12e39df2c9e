package transferqueue

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
	"liquidneuron/internal/fakeexternal"
	"liquidneuron/ledgerclient"
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
	require.NoError(t, eng.Apply(eventlog.Init{GovernanceCanister: "governance", InceptionTs: now.Unix()}, now))
	return eng
}

func TestDrainSettlesPendingTransfer(t *testing.T) {
	eng := newTestEngine(t)
	receiver := core.NewAccount("alice")
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.IcpDeposit{Receiver: receiver, Amount: 100, BlockIndex: 1, NtMinted: 100}, now))
	require.Len(t, eng.PendingTransfersSnapshot(), 1)

	ledger := fakeexternal.NewLedger(nil)
	p := New(eng, WithLedgers(map[core.Unit]ledgerclient.Ledger{core.UnitNT: ledger}))

	n, err := p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.PendingTransfersSnapshot())
}

func TestDrainRetriesAfterFailureRespectsBackoff(t *testing.T) {
	eng := newTestEngine(t)
	receiver := core.NewAccount("alice")
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.IcpDeposit{Receiver: receiver, Amount: 100, BlockIndex: 1, NtMinted: 100}, now))

	ledger := fakeexternal.NewLedger(nil)
	ledger.TransferErr = context.DeadlineExceeded

	clockValue := now
	p := New(eng,
		WithLedgers(map[core.Unit]ledgerclient.Ledger{core.UnitNT: ledger}),
		WithClock(func() time.Time { return clockValue }),
		WithBackoff(time.Minute),
	)

	n, err := p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// Immediate retry within the backoff window should not re-attempt.
	ledger.TransferErr = nil
	n, err = p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	clockValue = clockValue.Add(2 * time.Minute)
	n, err = p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDrainSkipsTransferBelowFee(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now().UTC()
	// A T transfer of exactly the ledger fee can never deliver anything.
	require.NoError(t, eng.Apply(eventlog.DispatchICPRewards{NicpAmount: 10_000}, now))
	require.Len(t, eng.PendingTransfersSnapshot(), 1)

	ledger := fakeexternal.NewLedger(nil)
	p := New(eng, WithLedgers(map[core.Unit]ledgerclient.Ledger{core.UnitT: ledger}))

	n, err := p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.PendingTransfersSnapshot())

	statuses := eng.TransferStatuses([]core.TransferId{0})
	require.Len(t, statuses, 1)
}

func TestDrainSkipsTransferAddressedToGovernance(t *testing.T) {
	eng := newTestEngine(t)
	now := time.Now().UTC()
	require.NoError(t, eng.Apply(eventlog.IcpDeposit{
		Receiver: core.NewAccount("governance"),
		Amount:   100 * 100_000_000,
		NtMinted: 100 * 100_000_000,
	}, now))

	ledger := fakeexternal.NewLedger(nil)
	p := New(eng, WithLedgers(map[core.Unit]ledgerclient.Ledger{core.UnitNT: ledger}))

	n, err := p.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, eng.PendingTransfersSnapshot())

	// Nothing actually moved on the ledger.
	bal, err := ledger.BalanceOf(context.Background(), core.NewAccount("governance"))
	require.NoError(t, err)
	require.Zero(t, bal)
}
