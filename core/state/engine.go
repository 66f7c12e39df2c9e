package state

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"liquidneuron/airdrop"
	"liquidneuron/amount"
	"liquidneuron/eventlog"
)

// Engine owns the durable event log and the in-memory projection derived
// from it. It is the only component in this repository permitted to mutate
// State; every other package reaches the projection through Engine's query
// methods or through Apply.
type Engine struct {
	mu      sync.Mutex
	log     *eventlog.Log
	st      *State
	rewards *airdrop.Store
}

// NewEngine replays every event in elog into a fresh State and returns an
// Engine ready to accept further mutations. Replay is synchronous and
// single-threaded: there is no concurrent writer to race with, since this
// is the only Engine that will ever be constructed over this log.
func NewEngine(elog *eventlog.Log) (*Engine, error) {
	eng := &Engine{log: elog, st: New()}
	if err := elog.Iterate(func(pos uint64, ev eventlog.Event) error {
		if err := eng.applyLocked(ev.Payload, ev.Timestamp); err != nil {
			return fmt.Errorf("state: replay at position %d: %w", pos, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return eng, nil
}

// AttachRewardStore reconciles store with the replayed projection, then
// writes subsequent entitlement changes through to it. The store is a
// durable mirror for operator inspection; the event log stays the source
// of truth, so a write failure after attach is logged, not fatal.
func (e *Engine) AttachRewardStore(store *airdrop.Store) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := store.Reset(e.st.Airdrop); err != nil {
		return err
	}
	e.rewards = store
	return nil
}

// storeAirdrop mirrors one entitlement entry into the attached reward
// store. A zero balance deletes the entry.
func (e *Engine) storeAirdrop(principal string) {
	if e.rewards == nil {
		return
	}
	balance, ok := e.st.Airdrop[principal]
	var err error
	if !ok || balance == 0 {
		err = e.rewards.Delete(principal)
	} else {
		err = e.rewards.Put(principal, balance)
	}
	if err != nil {
		slog.Warn("state: reward store write failed, will reconcile on restart", "principal", principal, "error", err)
	}
}

// RecordFetchedStake caches the stake governance last reported for one of
// the two main neurons. This is an observed value the refresh tasks
// repopulate on every tick, not event-sourced state: it bypasses the event
// log on purpose and is excluded from replay equivalence.
func (e *Engine) RecordFetchedStake(from eventlog.FromNeuronType, stake amount.T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from == eventlog.FromLongTerm {
		e.st.LongTermStakeFetched = stake
		return
	}
	e.st.ShortTermStakeFetched = stake
}

// Apply appends payload to the event log and, only once that succeeds,
// folds it into the projection. A storage failure here is unrecoverable
// (the process can no longer guarantee the log and the projection agree),
// so it is logged at Error and the process panics. A non-Init event on an
// engine that has not seen Init is rejected with an error before anything
// is appended.
func (e *Engine) Apply(payload eventlog.Payload, ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, isInit := payload.(eventlog.Init); !isInit && !e.st.Initialized {
		return fmt.Errorf("state: %s before Init", payload.EventType())
	}
	if _, err := e.log.Append(payload, ts); err != nil {
		slog.Error("state: fatal append failure", "event_type", payload.EventType(), "error", err)
		panic(fmt.Errorf("state: fatal append failure: %w", err))
	}
	if err := e.applyLocked(payload, ts); err != nil {
		slog.Error("state: fatal apply failure", "event_type", payload.EventType(), "error", err)
		panic(fmt.Errorf("state: fatal apply failure: %w", err))
	}
	checkInvariants(e.st)
	return nil
}

// View runs fn while holding the engine's mutex over the live projection. fn must not
// retain st past its call, and must not mutate it. View exists for
// queries that need a consistent multi-field read (GetInfo, GetStatus),
// not for bypassing Apply.
func (e *Engine) View(fn func(st *State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.st)
}

// PeekNextTransferId reports the TransferId that the next PendingTransfer
// added via Apply will receive, so a handler can echo it back to a caller
// before the corresponding event is actually applied.
func (e *Engine) PeekNextTransferId() (id uint64) {
	e.View(func(st *State) { id = uint64(st.NextTransferId) })
	return id
}

// PeekNextWithdrawalId mirrors PeekNextTransferId for withdrawals.
func (e *Engine) PeekNextWithdrawalId() (id uint64) {
	e.View(func(st *State) { id = uint64(st.NextWithdrawalId) })
	return id
}
