package conversion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liquidneuron/airdrop"
	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/internal/fakeexternal"
)

func depositFor(t *testing.T, eng *state.Engine, owner string, tE8s uint64) {
	t.Helper()
	require.NoError(t, eng.Apply(eventlog.IcpDeposit{
		Receiver:   core.NewAccount(owner),
		Amount:     tE8s,
		NtMinted:   tE8s,
		BlockIndex: 1,
	}, time.Now().UTC()))
}

func TestClaimAirdropRefusesBeforeScheduleExhausted(t *testing.T) {
	eng := newTestEngine(t, 1*amount.Scale, 10*amount.Scale)
	depositFor(t, eng, "alice", 100*amount.Scale)

	c := NewClaimer(eng, fakeexternal.NewLedger(nil))
	_, _, err := c.ClaimAirdrop(context.Background(), "alice")
	require.ErrorIs(t, err, ErrAirdropScheduleNotDone)
}

func TestClaimAirdropRefusesBelowStakeFloor(t *testing.T) {
	eng := newTestEngine(t, 1*amount.Scale, 10*amount.Scale)
	// Past the schedule cap, but only 5.12M T tracked: under the floor.
	depositFor(t, eng, "alice", uint64(airdrop.Cap))

	c := NewClaimer(eng, fakeexternal.NewLedger(nil))
	_, _, err := c.ClaimAirdrop(context.Background(), "alice")
	require.ErrorIs(t, err, ErrStakeBelowClaimFloor)
}

func TestClaimAirdropPaysOutMinusFeeAndClearsEntitlement(t *testing.T) {
	eng := newTestEngine(t, 1*amount.Scale, 10*amount.Scale)
	depositFor(t, eng, "alice", uint64(MinTrackedStakeToClaim))

	ledger := fakeexternal.NewLedger(nil)
	c := NewClaimer(eng, ledger)

	entitled := eng.AirdropBalance("alice")
	require.True(t, entitled > amount.FeeR)

	blockIndex, paid, err := c.ClaimAirdrop(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, entitled-amount.FeeR, paid)
	require.NotZero(t, blockIndex)

	bal, err := ledger.BalanceOf(context.Background(), core.NewAccount("alice"))
	require.NoError(t, err)
	require.Equal(t, uint64(paid), bal)

	// Entitlement is gone; a second claim has nothing left to pay.
	require.Equal(t, amount.R(0), eng.AirdropBalance("alice"))
	_, _, err = c.ClaimAirdrop(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNothingToClaim)
}

func TestClaimAirdropLeavesEntitlementOnTransferFailure(t *testing.T) {
	eng := newTestEngine(t, 1*amount.Scale, 10*amount.Scale)
	depositFor(t, eng, "alice", uint64(MinTrackedStakeToClaim))

	ledger := fakeexternal.NewLedger(nil)
	ledger.TransferErr = context.DeadlineExceeded
	c := NewClaimer(eng, ledger)

	entitled := eng.AirdropBalance("alice")
	_, _, err := c.ClaimAirdrop(context.Background(), "alice")
	require.Error(t, err)
	require.Equal(t, entitled, eng.AirdropBalance("alice"))
}
