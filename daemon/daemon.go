// Package daemon wires every engine in this repository into one running
// process: the bbolt-backed event log and state projection, the external
// ledger/governance/secondary-DAO clients, the conversion/withdrawal/
// rewards/secondary-distribution/proposal engines, the transfer queue, the
// scheduler tasks that drive them, and the HTTP API surface (api/). One
// Run function takes a loaded Config, constructs every collaborator, and
// returns only on context cancellation or a fatal construction error.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	bolt "go.etcd.io/bbolt"

	"liquidneuron/airdrop"
	"liquidneuron/amount"
	"liquidneuron/api"
	"liquidneuron/config"
	"liquidneuron/conversion"
	"liquidneuron/core"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/governanceclient"
	"liquidneuron/ledgerclient"
	"liquidneuron/proposal"
	"liquidneuron/rewards"
	"liquidneuron/scheduler"
	"liquidneuron/secondaryclient"
	"liquidneuron/secondarydistribution"
	"liquidneuron/subaccount"
	"liquidneuron/transferqueue"
	"liquidneuron/withdrawal"
)

// sixMonths and eightYears are the main neurons' target dissolve delays:
// the short-term neuron matches the redemption window, the long-term one
// carries the maximum delay for voting weight.
const (
	sixMonths  = 6*30*24*time.Hour + 24*time.Hour
	eightYears = 8 * 365 * 24 * time.Hour

	// spawnMaturationDelay is this process's own backoff before attempting
	// to disburse a freshly spawned maturity neuron; governance's own
	// dissolve-delay bookkeeping is the actual source of truth.
	spawnMaturationDelay = 7 * 24 * time.Hour

	// secondaryDistributionMinInterval enforces the once-a-week-at-most
	// distribution cadence independent of the scheduler's own period, so
	// an operator-shortened PeriodDistributeRewards still cannot re-fire
	// the same week's distribution.
	secondaryDistributionMinInterval = 7 * 24 * time.Hour
)

// Daemon bundles every constructed collaborator so Run can start them and
// Close can release the bbolt handle on shutdown.
type Daemon struct {
	cfg        *config.Config
	db         *bolt.DB
	st         *state.Engine
	sched      *scheduler.Scheduler
	httpServer *http.Server
}

// New constructs every collaborator and registers the scheduler tasks, but
// does not start listening or ticking; call Run to do that.
func New(cfg *config.Config) (*Daemon, error) {
	db, err := bolt.Open(cfg.DataDir+"/liquidneuron.db", 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("daemon: open bbolt: %w", err)
	}

	elog, err := eventlog.Open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: open event log: %w", err)
	}

	if err := bootstrap(elog, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: bootstrap: %w", err)
	}

	st, err := state.NewEngine(elog)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: replay state: %w", err)
	}

	rewardStore, err := airdrop.OpenStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: open reward store: %w", err)
	}
	if err := st.AttachRewardStore(rewardStore); err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: reconcile reward store: %w", err)
	}

	tLedger, err := ledgerclient.New(cfg.LedgerEndpointT)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct T ledger client: %w", err)
	}
	ntLedger, err := ledgerclient.New(cfg.LedgerEndpointNT)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct nT ledger client: %w", err)
	}
	rLedger, err := ledgerclient.New(cfg.LedgerEndpointR)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct R ledger client: %w", err)
	}
	governance, err := governanceclient.New(cfg.GovernanceEndpoint)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct governance client: %w", err)
	}
	secondaryDAO, err := secondaryclient.New(cfg.SecondaryDAOEndpoint)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct secondary-DAO client: %w", err)
	}

	shortTermNeuron := func() (core.NeuronId, bool) {
		var id *core.NeuronId
		st.View(func(s *state.State) { id = s.NeuronIdShortTerm })
		if id == nil {
			return 0, false
		}
		return *id, true
	}
	longTermNeuron := func() (core.NeuronId, bool) {
		var id *core.NeuronId
		st.View(func(s *state.State) { id = s.NeuronIdLongTerm })
		if id == nil {
			return 0, false
		}
		return *id, true
	}

	// T deposits are pulled straight into the short-term neuron's staking
	// account, the same account reward shares are sent to.
	var treasury core.Account
	st.View(func(s *state.State) {
		sub := subaccount.NeuronStake([]byte(s.CanisterPrincipal), subaccount.ShortTermNeuronNonce)
		treasury = core.NewAccount(s.GovernanceCanister).WithSubaccount(sub)
	})
	burn := core.NewAccount(cfg.CanisterPrincipal) // nT withdrawal burns debit this principal's nT account
	conv := conversion.New(st, tLedger, ntLedger, governance, treasury, burn)
	wd := withdrawal.New(st, governance, shortTermNeuron)
	rw := rewards.New(st, governance, tLedger, amount.T(cfg.MinDistributionE8s))
	sd := secondarydistribution.New(st, secondaryDAO, cfg.CanisterPrincipal)
	prop := proposal.New(st, governance, secondaryDAO, cfg.SecondaryDAOPrincipal, shortTermNeuron)
	tq := transferqueue.New(st, transferqueue.WithLedgers(map[core.Unit]ledgerclient.Ledger{
		core.UnitT:  tLedger,
		core.UnitNT: ntLedger,
		core.UnitR:  rLedger,
	}))

	sched := scheduler.New()
	registerTasks(taskDeps{
		cfg:          cfg,
		sched:        sched,
		st:           st,
		governance:   governance,
		tLedger:      tLedger,
		withdrawal:   wd,
		rewards:      rw,
		distribution: sd,
		proposal:     prop,
		transferQ:    tq,
		shortTerm:    shortTermNeuron,
		longTerm:     longTermNeuron,
	})

	apiSrv := api.New(api.Config{
		State:                 st,
		Log:                   elog,
		Conversion:            conv,
		Proposal:              prop,
		Rewards:               rw,
		Claimer:               conversion.NewClaimer(st, rLedger),
		RequestsPerSecond:     5,
		Burst:                 20,
		JWTSigningKey:         cfg.JWTSigningKey,
		SecondaryDAOPrincipal: cfg.SecondaryDAOPrincipal,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiSrv)

	return &Daemon{
		cfg:   cfg,
		db:    db,
		st:    st,
		sched: sched,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// bootstrap emits the genesis Init event if the log is empty. A non-empty
// log is left untouched; replay in state.NewEngine reconstructs everything
// from it.
func bootstrap(elog *eventlog.Log, cfg *config.Config) error {
	n, err := elog.Len()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = elog.Append(eventlog.Init{
		LedgerCanisterT:      cfg.LedgerEndpointT,
		LedgerCanisterNT:     cfg.LedgerEndpointNT,
		LedgerCanisterR:      cfg.LedgerEndpointR,
		GovernanceCanister:   cfg.GovernanceEndpoint,
		SecondaryDAOCanister: cfg.SecondaryDAOEndpoint,
		CanisterPrincipal:    cfg.CanisterPrincipal,
		GovernanceShareBps:   cfg.GovernanceShareBps,
		MinDepositE8s:        cfg.MinDepositE8s,
		MinWithdrawE8s:       cfg.MinWithdrawE8s,
		InceptionTs:          time.Now().Unix(),
	}, time.Now().UTC())
	return err
}

// taskDeps bundles every collaborator registerTasks schedules work
// against, avoiding an ever-growing positional-argument list.
type taskDeps struct {
	cfg          *config.Config
	sched        *scheduler.Scheduler
	st           *state.Engine
	governance   governanceclient.Governance
	tLedger      ledgerclient.Ledger
	withdrawal   *withdrawal.Engine
	rewards      *rewards.Engine
	distribution *secondarydistribution.Engine
	proposal     *proposal.Engine
	transferQ    *transferqueue.Processor
	shortTerm    func() (core.NeuronId, bool)
	longTerm     func() (core.NeuronId, bool)
}

// registerTasks schedules every task tag against the engine that
// implements it.
func registerTasks(d taskDeps) {
	d.sched.ScheduleNow(scheduler.TagInitializeMainNeurons, 0, func(ctx context.Context) error {
		return initializeMainNeurons(ctx, d)
	})

	d.sched.ScheduleNow(scheduler.TagRefreshShortTerm, scheduler.PeriodRefreshShortTerm, func(ctx context.Context) error {
		return refreshMainNeuron(ctx, d, d.shortTerm, sixMonths, func(id core.NeuronId) eventlog.Payload {
			return eventlog.NeuronSixMonths{NeuronId: id}
		})
	})

	d.sched.ScheduleNow(scheduler.TagRefreshLongTerm, scheduler.PeriodRefreshLongTerm, func(ctx context.Context) error {
		return refreshMainNeuron(ctx, d, d.longTerm, eightYears, func(id core.NeuronId) eventlog.Payload {
			return eventlog.NeuronEightYears{NeuronId: id}
		})
	})

	d.sched.ScheduleNow(scheduler.TagProcessPendingTransfers, scheduler.PeriodDistributeICP, func(ctx context.Context) error {
		_, err := d.transferQ.Drain(ctx)
		if errors.Is(err, transferqueue.ErrProcessorPaused) {
			return nil
		}
		return err
	})

	d.sched.ScheduleNow(scheduler.TagProcessLogic, scheduler.PeriodProcessLogic, func(ctx context.Context) error {
		if _, err := d.withdrawal.ProcessSplits(ctx); err != nil {
			return err
		}
		if _, err := d.withdrawal.ProcessDissolveStarts(ctx); err != nil {
			return err
		}
		if _, err := d.withdrawal.ProcessDisbursements(ctx); err != nil {
			return err
		}
		return nil
	})

	d.sched.ScheduleNow(scheduler.TagProcessVoting, scheduler.PeriodProcessVoting, func(ctx context.Context) error {
		_, err := d.proposal.Mirror(ctx)
		return err
	})

	d.sched.ScheduleNow(scheduler.TagSpawnNeurons, scheduler.PeriodSpawnNeurons, func(ctx context.Context) error {
		return spawnNeurons(ctx, d)
	})

	d.sched.ScheduleNow(scheduler.TagDistributeICP, scheduler.PeriodDistributeICP, func(ctx context.Context) error {
		return dispatchMaturedNeurons(ctx, d)
	})

	d.sched.ScheduleNow(scheduler.TagDistributeRewards, scheduler.PeriodDistributeRewards, func(ctx context.Context) error {
		return runSecondaryDistribution(ctx, d)
	})
}

// initializeMainNeurons claims (ClaimOrRefresh) the two operator-staked
// main neurons named by config, so this process is recognized as their
// controller before any other task touches them. The neurons themselves
// are created and staked once by the operator outside this process;
// config.ShortTermNeuronId/LongTermNeuronId name them by id.
func initializeMainNeurons(ctx context.Context, d taskDeps) error {
	if d.cfg.ShortTermNeuronId == 0 && d.cfg.LongTermNeuronId == 0 {
		slog.Warn("daemon: no main neurons configured, InitializeMainNeurons is a no-op")
		return nil
	}
	if d.cfg.ShortTermNeuronId != 0 {
		if _, err := d.governance.ManageNeuron(ctx, core.NeuronId(d.cfg.ShortTermNeuronId), governanceclient.CommandClaim, 0); err != nil {
			return fmt.Errorf("daemon: claim short-term neuron: %w", err)
		}
	}
	if d.cfg.LongTermNeuronId != 0 {
		if _, err := d.governance.ManageNeuron(ctx, core.NeuronId(d.cfg.LongTermNeuronId), governanceclient.CommandClaim, 0); err != nil {
			return fmt.Errorf("daemon: claim long-term neuron: %w", err)
		}
	}
	return nil
}

// refreshMainNeuron re-reads one of the two main neurons from governance,
// caching its reported stake, and, the first time it runs for that neuron,
// records the one-shot NeuronSixMonths/NeuronEightYears event marking the
// neuron known to state.NeuronIdShortTerm/NeuronIdLongTerm. An over-long
// dissolve delay found already in place is left unchanged:
// increase_dissolve_delay is a no-op below the requested delay regardless,
// so issuing it unconditionally on first refresh is safe.
func refreshMainNeuron(ctx context.Context, d taskDeps, known func() (core.NeuronId, bool), target time.Duration, mark func(core.NeuronId) eventlog.Payload) error {
	var configured uint64
	from := eventlog.FromShortTerm
	if target == sixMonths {
		configured = d.cfg.ShortTermNeuronId
	} else {
		configured = d.cfg.LongTermNeuronId
		from = eventlog.FromLongTerm
	}
	if configured == 0 {
		return nil
	}

	id := core.NeuronId(configured)
	full, err := d.governance.GetFullNeuron(ctx, id)
	if err != nil {
		return fmt.Errorf("daemon: refresh neuron %d: %w", id, err)
	}
	d.st.RecordFetchedStake(from, amount.T(full.CachedStakeE8s))

	if _, ok := known(); ok {
		return nil // already marked; only the stake cache needed refreshing
	}
	if _, err := d.governance.ManageNeuron(ctx, id, governanceclient.CommandIncreaseDissolveDelay, uint64(target.Seconds())); err != nil {
		return fmt.Errorf("daemon: increase dissolve delay for neuron %d: %w", id, err)
	}
	return d.st.Apply(mark(id), time.Now().UTC())
}

// spawnNeurons triggers spawn on both main neurons, recording the
// resulting maturity neuron via a MaturityNeuron event so
// dispatchMaturedNeurons harvests it once its maturation backoff elapses.
func spawnNeurons(ctx context.Context, d taskDeps) error {
	if id, ok := d.shortTerm(); ok {
		if err := spawnOne(ctx, d, id, subaccount.NICPSixMonths, eventlog.FromShortTerm); err != nil {
			return err
		}
	}
	if id, ok := d.longTerm(); ok {
		if err := spawnOne(ctx, d, id, subaccount.SnsGovernanceEightYears, eventlog.FromLongTerm); err != nil {
			return err
		}
	}
	return nil
}

func spawnOne(ctx context.Context, d taskDeps, source core.NeuronId, origin subaccount.RewardOriginVariant, fromType eventlog.FromNeuronType) error {
	result, err := d.governance.ManageNeuron(ctx, source, governanceclient.CommandSpawn, 0)
	if err != nil {
		return fmt.Errorf("daemon: spawn neuron from %d: %w", source, err)
	}
	var canisterPrincipal string
	d.st.View(func(s *state.State) { canisterPrincipal = s.CanisterPrincipal })
	receiver := core.NewAccount(canisterPrincipal).WithSubaccount(subaccount.RewardOrigin(origin))
	return d.st.Apply(eventlog.MaturityNeuron{
		NeuronId:       core.NeuronId(result),
		FromNeuronType: fromType,
		Receiver:       receiver,
		DisburseAt:     time.Now().Add(spawnMaturationDelay).Unix(),
	}, time.Now().UTC())
}

// dispatchMaturedNeurons harvests every maturity neuron currently tracked
// in to_disburse whose spawn-maturation backoff has elapsed, via
// rewards.Engine.Dispatch (disburse and split folded into one call, since
// a maturity neuron's only purpose is harvesting rewards).
// Dispatch always disburses the neuron and clears its entry; an origin
// balance at or below the distribution minimum stays in the origin
// subaccount and is split on a later dispatch.
// User-withdrawal entries in the same queue are
// withdrawal.ProcessDisbursements' responsibility, not this task's.
func dispatchMaturedNeurons(ctx context.Context, d taskDeps) error {
	due := d.st.DueDisbursements(time.Now().Unix())
	for _, dr := range due {
		if dr.Kind != state.DisburseMaturity {
			continue
		}
		if _, _, err := d.rewards.Dispatch(ctx, dr.NeuronId, dr.FromNeuronType); err != nil {
			return err
		}
	}
	return nil
}

// runSecondaryDistribution reads the long-term reward-origin subaccount's
// T balance and, if it clears the distribution minimum and at least a week has
// passed since the last distribution, distributes it across secondary-DAO
// neurons proportionally to stake.
func runSecondaryDistribution(ctx context.Context, d taskDeps) error {
	var lastTs int64
	var canisterPrincipal string
	d.st.View(func(s *state.State) {
		lastTs = s.LastDistributionTs
		canisterPrincipal = s.CanisterPrincipal
	})
	if lastTs > 0 && time.Since(time.Unix(lastTs, 0)) < secondaryDistributionMinInterval {
		return nil
	}

	originAccount := core.NewAccount(canisterPrincipal).WithSubaccount(subaccount.RewardOrigin(subaccount.SnsGovernanceEightYears))
	balance, err := d.tLedger.BalanceOf(ctx, originAccount)
	if err != nil {
		return fmt.Errorf("daemon: read secondary distribution balance: %w", err)
	}
	if balance <= d.cfg.MinDistributionE8s {
		return nil
	}

	_, err = d.distribution.Distribute(ctx, balance)
	return err
}

// Run starts the HTTP listener and the scheduler's tick loop, blocking
// until ctx is cancelled, then shuts both down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", d.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", d.cfg.ListenAddress, err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("daemon: listening", "address", listener.Addr().String())
		if serveErr := d.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
			return
		}
		errCh <- nil
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("daemon: graceful shutdown failed", "error", err)
			}
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			d.sched.Tick(ctx)
		}
	}
}

// Close releases the bbolt handle.
func (d *Daemon) Close() error {
	return d.db.Close()
}
