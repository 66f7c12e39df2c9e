package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liquidneuron/airdrop"
	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/ledgerclient"
)

// MinTrackedStakeToClaim is the tracked short-term stake the protocol must
// have accumulated before any R claim is honored.
const MinTrackedStakeToClaim = amount.T(21_000_000 * amount.Scale)

// Sentinel errors for the airdrop claim entry point.
var (
	ErrNothingToClaim         = errors.New("conversion: nothing to claim")
	ErrAirdropScheduleNotDone = errors.New("conversion: reward tiers not yet exhausted")
	ErrStakeBelowClaimFloor   = errors.New("conversion: tracked stake below the claim floor")
	ErrClaimBelowFee          = errors.New("conversion: claim does not cover the ledger fee")
)

// Claimer pays out accumulated R entitlements once the airdrop schedule
// has run its course. The payout goes straight through the R ledger rather
// than the pending-transfer queue: a failed transfer leaves the
// entitlement intact and the caller simply retries.
type Claimer struct {
	st      *state.Engine
	rLedger ledgerclient.Ledger
	now     func() time.Time
}

// NewClaimer constructs a Claimer paying out over rLedger.
func NewClaimer(st *state.Engine, rLedger ledgerclient.Ledger) *Claimer {
	return &Claimer{st: st, rLedger: rLedger, now: time.Now}
}

// ClaimAirdrop transfers caller's accumulated R minus the ledger fee and
// clears the entitlement. It refuses until every schedule tier is
// exhausted and the tracked short-term stake has reached
// MinTrackedStakeToClaim.
func (c *Claimer) ClaimAirdrop(ctx context.Context, caller string) (blockIndex uint64, paid amount.R, err error) {
	var (
		balance        amount.R
		totalDeposited amount.T
		tracked        amount.T
	)
	c.st.View(func(s *state.State) {
		balance = s.Airdrop[caller]
		totalDeposited = s.TotalTDeposited
		tracked = s.TrackedShortTermStake
	})
	if totalDeposited < airdrop.Cap {
		return 0, 0, ErrAirdropScheduleNotDone
	}
	if tracked < MinTrackedStakeToClaim {
		return 0, 0, ErrStakeBelowClaimFloor
	}
	if balance == 0 {
		return 0, 0, ErrNothingToClaim
	}
	if balance <= amount.FeeR {
		return 0, 0, ErrClaimBelowFee
	}
	paid = balance - amount.FeeR

	blockIndex, err = c.rLedger.Transfer(ctx, nil, core.NewAccount(caller), uint64(paid), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("conversion: claim transfer: %w", err)
	}
	if err := c.st.Apply(eventlog.ClaimedAirdrop{Caller: caller, BlockIndex: blockIndex}, c.now().UTC()); err != nil {
		return 0, 0, err
	}
	return blockIndex, paid, nil
}
