// Package conversion implements the two entry points that move value
// between the staked token and its liquid derivative, icp_to_nicp and
// nicp_to_icp, plus cancel_withdrawal. Each call pulls
// funds via the external ledger first and only records the corresponding
// event once the transfer has actually settled, so a crash mid-call never
// credits nT/T that was never received.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/ledgerclient"
)

// Engine wires the conversion operations to the state projection and the
// external ledger/governance clients.
type Engine struct {
	st         *state.Engine
	tLedger    ledgerclient.Ledger
	ntLedger   ledgerclient.Ledger
	governance governanceclient.Governance
	treasury   core.Account
	burn       core.Account

	mu   sync.Mutex
	seen map[uuid.UUID]cachedResult
}

type cachedResult struct {
	id      uint64
	amount  uint64
	seenAt  time.Time
}

const idempotencyTTL = 24 * time.Hour

// New constructs a conversion Engine. treasury is the account the T ledger
// credits deposits to; burn is the account the nT ledger debits withdrawal
// burns from.
func New(st *state.Engine, tLedger, ntLedger ledgerclient.Ledger, governance governanceclient.Governance, treasury, burn core.Account) *Engine {
	return &Engine{
		st:         st,
		tLedger:    tLedger,
		ntLedger:   ntLedger,
		governance: governance,
		treasury:   treasury,
		burn:       burn,
		seen:       make(map[uuid.UUID]cachedResult),
	}
}

// cached returns a previously-recorded result for key, if the call was
// already completed. Idempotency is tracked locally rather than by relying
// on the ledger's own memo/created_at_time dedup, since the external
// ledger canister is not under this repository's control.
func (e *Engine) cached(key uuid.UUID) (cachedResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked()
	r, ok := e.seen[key]
	return r, ok
}

func (e *Engine) remember(key uuid.UUID, r cachedResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.seenAt = time.Now()
	e.seen[key] = r
}

func (e *Engine) pruneLocked() {
	cutoff := time.Now().Add(-idempotencyTTL)
	for k, v := range e.seen {
		if v.seenAt.Before(cutoff) {
			delete(e.seen, k)
		}
	}
}

// IcpToNicp converts amountT of the staked token from caller into nT,
// minted at the current exchange rate. key is the client-supplied
// idempotency key; a retried call with the same key returns the original
// result without re-pulling funds.
func (e *Engine) IcpToNicp(ctx context.Context, key uuid.UUID, caller core.Account, amountT uint64) (transferId uint64, ntMinted uint64, err error) {
	if cached, ok := e.cached(key); ok {
		return cached.id, cached.amount, nil
	}

	var minDeposit uint64
	var trackedStake amount.T
	var totalNT amount.NT
	var inceptionTs int64
	e.st.View(func(s *state.State) {
		minDeposit = s.MinDepositE8s
		trackedStake = s.TrackedShortTermStake
		totalNT = s.TotalNTCirculating
		inceptionTs = s.InceptionTs
	})
	if amountT < minDeposit {
		return 0, 0, ErrBelowMinimum
	}

	blockIndex, err := e.tLedger.TransferFrom(ctx, caller, e.treasury, amountT, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrLedgerTransfer, err)
	}

	nt := amount.DepositRate(amount.T(amountT), totalNT, trackedStake, inceptionTs, time.Now().Unix())
	transferId = e.st.PeekNextTransferId()
	if err := e.st.Apply(eventlog.IcpDeposit{
		Receiver:   caller,
		Amount:     amountT,
		BlockIndex: blockIndex,
		NtMinted:   uint64(nt),
	}, time.Now().UTC()); err != nil {
		return 0, 0, err
	}
	e.remember(key, cachedResult{id: transferId, amount: uint64(nt)})
	return transferId, uint64(nt), nil
}

// NicpToIcp burns ntAmount of the liquid derivative from caller and starts
// a withdrawal for the T due at the current exchange rate.
func (e *Engine) NicpToIcp(ctx context.Context, key uuid.UUID, caller core.Account, ntAmount uint64) (withdrawalId uint64, tDue uint64, err error) {
	if cached, ok := e.cached(key); ok {
		return cached.id, cached.amount, nil
	}

	var minWithdraw uint64
	var trackedStake amount.T
	var totalNT amount.NT
	e.st.View(func(s *state.State) {
		minWithdraw = s.MinWithdrawE8s
		trackedStake = s.TrackedShortTermStake
		totalNT = s.TotalNTCirculating
	})
	// The minimum applies to the T actually due, not the nT handed in: at
	// a depreciated rate a seemingly large burn can still redeem too
	// little to be worth a neuron split.
	due := amount.WithdrawRate(amount.NT(ntAmount), trackedStake, totalNT)
	if uint64(due) < minWithdraw {
		return 0, 0, ErrBelowMinimum
	}

	blockIndex, err := e.ntLedger.TransferFrom(ctx, caller, e.burn, ntAmount, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrLedgerTransfer, err)
	}
	withdrawalId = e.st.PeekNextWithdrawalId()
	if err := e.st.Apply(eventlog.NIcpWithdrawal{
		Receiver:      caller,
		NicpBurned:    ntAmount,
		NicpBurnIndex: blockIndex,
		TDue:          uint64(due),
	}, time.Now().UTC()); err != nil {
		return 0, 0, err
	}
	e.remember(key, cachedResult{id: withdrawalId, amount: uint64(due)})
	return withdrawalId, uint64(due), nil
}

// CancelWithdrawal reverses a withdrawal in flight for neuronID. It only
// succeeds if at least the cancellation window remains before the neuron's
// scheduled disbursement; once within that window the request has already
// progressed too far to safely unwind and fails with ErrTooLate. caller
// must be the account the withdrawal was created for; any other caller is
// rejected with ErrBadCaller. Every other failure maps to one of the
// cancellation sentinels in errors.go.
func (e *Engine) CancelWithdrawal(ctx context.Context, caller core.Account, neuronID core.NeuronId) error {
	var req *state.WithdrawalRequest
	var disburseAt *time.Time
	var shortTerm *core.NeuronId
	e.st.View(func(s *state.State) {
		shortTerm = s.NeuronIdShortTerm
		for _, r := range s.WithdrawalByID {
			if r.NeuronId != nil && *r.NeuronId == neuronID {
				cp := *r
				req = &cp
				if dr, ok := s.ToDisburse[neuronID]; ok {
					t := dr.DisburseAt
					disburseAt = &t
				}
				return
			}
		}
	})
	if req == nil {
		return ErrNotFound
	}
	if !req.Receiver.Equal(caller) {
		return ErrBadCaller
	}
	if req.NeuronId == nil {
		return ErrNotCancellable
	}

	full, err := e.governance.GetFullNeuron(ctx, neuronID)
	if err != nil {
		if errors.Is(err, governanceclient.ErrGovernance) {
			return fmt.Errorf("%w: %v", ErrGovernance, err)
		}
		return fmt.Errorf("%w: %v", ErrGetFullNeuron, err)
	}

	// Establish the time left before disbursement: governance's dissolve
	// timestamp is authoritative, the locally scheduled disburse time is
	// the fallback. A neuron mid-dissolve with neither is uncancellable
	// because the window cannot be checked.
	var deadline *time.Time
	switch {
	case full.WhenDissolvedTs > 0:
		t := time.Unix(full.WhenDissolvedTs, 0)
		deadline = &t
	case disburseAt != nil:
		deadline = disburseAt
	case full.DissolveState == governanceclient.DissolveStateDissolving:
		return ErrUnknownTimeLeft
	}
	if deadline != nil && time.Until(*deadline) < cancelWindow*time.Second {
		return ErrTooLate
	}

	if shortTerm == nil {
		return ErrNotCancellable
	}

	result, err := e.governance.ManageNeuron(ctx, neuronID, governanceclient.CommandStopDissolving, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStopDissolvement, err)
	}
	if result != 0 {
		// stop_dissolving carries no payload; anything else means
		// governance answered with the wrong command's response.
		return fmt.Errorf("%w: stop_dissolving returned %d", ErrBadCommand, result)
	}

	// Merge the split neuron's stake back into the short-term main neuron.
	// The merge response reports the source neuron's remaining stake,
	// which must be zero for the cancellation bookkeeping to hold.
	remaining, err := e.governance.ManageNeuron(ctx, neuronID, governanceclient.CommandMerge, uint64(*shortTerm))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMergeNeuron, err)
	}
	if remaining != 0 {
		return fmt.Errorf("%w: source neuron kept %d e8s after merge", ErrMergeNeuron, remaining)
	}
	return e.st.Apply(eventlog.MergeNeuron{NeuronId: neuronID}, time.Now().UTC())
}
