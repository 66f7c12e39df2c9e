// Package transferqueue drains State's pending_transfers set against the
// external ledger, one call at a time, recording each settlement as a
// TransferExecuted event. An in-flight tracking map keeps a transfer from
// being attempted twice concurrently; each external call carries its own
// otel span.
package transferqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"liquidneuron/amount"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/ledgerclient"
	"liquidneuron/observability/metrics"
)

// ErrProcessorPaused is returned when Drain is attempted while the
// processor has been paused by an operator.
var ErrProcessorPaused = errors.New("transferqueue: processor paused")

// errBackoff marks a transfer skipped because its retry backoff has not
// elapsed yet; Drain neither counts nor logs it.
var errBackoff = errors.New("transferqueue: transfer within retry backoff")

type inFlight struct {
	attempts  int
	nextRetry time.Time
}

// Processor drains the pending transfer queue against the T, nT, and R
// ledgers. A transfer that fails is retried on a fixed backoff rather than
// immediately, so a transient ledger outage does not spin the scheduler.
type Processor struct {
	st       *state.Engine
	ledgers  map[core.Unit]ledgerclient.Ledger
	metrics  *metrics.TransferQueueMetrics
	tracer   trace.Tracer
	now      func() time.Time
	backoff  time.Duration

	mu        sync.Mutex
	paused    bool
	attempted map[core.TransferId]inFlight
}

// Option customizes a Processor instance.
type Option func(*Processor)

// WithLedgers supplies the per-unit ledger clients.
func WithLedgers(ledgers map[core.Unit]ledgerclient.Ledger) Option {
	return func(p *Processor) { p.ledgers = ledgers }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *metrics.TransferQueueMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock overrides the processor's time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Processor) { p.now = clock }
}

// WithBackoff overrides the fixed retry delay applied after a failed
// transfer attempt.
func WithBackoff(d time.Duration) Option {
	return func(p *Processor) { p.backoff = d }
}

// New constructs a Processor bound to st.
func New(st *state.Engine, opts ...Option) *Processor {
	p := &Processor{
		st:        st,
		ledgers:   make(map[core.Unit]ledgerclient.Ledger),
		metrics:   metrics.TransferQueue(),
		tracer:    otel.Tracer("transferqueue/processor"),
		now:       time.Now,
		backoff:   30 * time.Second,
		attempted: make(map[core.TransferId]inFlight),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pause stops Drain from attempting further transfers until Resume is
// called.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume undoes Pause.
func (p *Processor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Drain attempts to settle every pending transfer that is not mid-flight
// and not still within its backoff window, returning the number settled.
// A transfer failure is logged and retried on the next Drain call.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return 0, ErrProcessorPaused
	}
	p.mu.Unlock()

	pending := p.st.PendingTransfersSnapshot()
	p.metrics.SetDepth(len(pending))

	settled := 0
	for _, t := range pending {
		if err := p.attempt(ctx, t); err != nil {
			if errors.Is(err, errBackoff) {
				continue
			}
			slog.Warn("transferqueue: transfer attempt failed", "transfer_id", t.TransferId, "unit", t.Unit.String(), "error", err)
			continue
		}
		settled++
	}
	return settled, nil
}

// feeOf returns the ledger fee for unit.
func feeOf(u core.Unit) uint64 {
	switch u {
	case core.UnitT:
		return uint64(amount.FeeT)
	case core.UnitR:
		return uint64(amount.FeeR)
	default:
		return 0
	}
}

func (p *Processor) attempt(ctx context.Context, t state.PendingTransfer) error {
	// A transfer that cannot clear its unit's fee, or that is addressed to
	// the external governance canister's default account, indicates a
	// bookkeeping bug upstream. Mark it executed with no block index so it
	// stops clogging the queue instead of failing the same way every tick.
	// Governance-owned accounts with a subaccount are fine: neuron staking
	// accounts live there.
	var govCanister string
	p.st.View(func(s *state.State) { govCanister = s.GovernanceCanister })
	toGovernanceDefault := govCanister != "" && t.ToAccount.Owner == govCanister && t.ToAccount.Subaccount == nil
	if t.Amount <= feeOf(t.Unit) || toGovernanceDefault {
		slog.Warn("transferqueue: skipping unsendable transfer",
			"transfer_id", t.TransferId, "unit", t.Unit.String(), "amount", t.Amount, "to", t.ToAccount.Owner)
		p.metrics.RecordError(t.Unit.String(), "skipped")
		return p.st.Apply(eventlog.TransferExecuted{TransferId: t.TransferId, BlockIndex: nil}, p.now().UTC())
	}

	p.mu.Lock()
	fl, exists := p.attempted[t.TransferId]
	now := p.now()
	if exists && now.Before(fl.nextRetry) {
		p.mu.Unlock()
		return errBackoff
	}
	p.attempted[t.TransferId] = inFlight{attempts: fl.attempts + 1, nextRetry: now.Add(p.backoff)}
	p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "transferqueue.settle",
		trace.WithAttributes(
			attribute.Int64("transfer.id", int64(t.TransferId)),
			attribute.String("transfer.unit", t.Unit.String()),
		))
	defer span.End()

	ledger, ok := p.ledgers[t.Unit]
	if !ok {
		err := fmt.Errorf("transferqueue: no ledger configured for unit %s", t.Unit)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger not configured")
		p.metrics.RecordError(t.Unit.String(), "no_ledger")
		return err
	}

	start := p.now()
	blockIndex, err := ledger.Transfer(ctx, t.FromSubaccount, t.ToAccount, t.Amount-feeOf(t.Unit), t.Memo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger transfer failed")
		p.metrics.RecordError(t.Unit.String(), "transfer")
		return err
	}

	if err := p.st.Apply(eventlog.TransferExecuted{TransferId: t.TransferId, BlockIndex: &blockIndex}, p.now().UTC()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state apply failed")
		return err
	}

	p.mu.Lock()
	delete(p.attempted, t.TransferId)
	p.mu.Unlock()

	p.metrics.ObserveLatency(t.Unit.String(), p.now().Sub(start))
	p.metrics.RecordExecuted(t.Unit.String())
	span.SetStatus(codes.Ok, "transfer settled")
	slog.Info("transferqueue: transfer settled", "transfer_id", t.TransferId, "unit", t.Unit.String(), "block_index", blockIndex)
	return nil
}
