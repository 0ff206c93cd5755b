// Package core owns the engine's wiring: it runs the market data ingest,
// the scanner, the risk gate and the execution coordinator, moves
// opportunities between them and fans engine events out to observers.
package core

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DecentralizedMoney/matreshka/internal/bus"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/executor"
	"github.com/DecentralizedMoney/matreshka/internal/marketdata"
	"github.com/DecentralizedMoney/matreshka/internal/metrics"
	"github.com/DecentralizedMoney/matreshka/internal/perf"
	"github.com/DecentralizedMoney/matreshka/internal/risk"
	"github.com/DecentralizedMoney/matreshka/internal/scanner"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// Mode selects how far the pipeline goes.
type Mode string

const (
	// ModeMonitor detects and risk-checks opportunities but never trades.
	ModeMonitor Mode = "monitor"
	// ModeExecute runs the full pipeline including order placement.
	ModeExecute Mode = "execute"
)

// Config tunes the supervisor loops.
type Config struct {
	Mode                Mode
	HeartbeatInterval   time.Duration
	CooldownAfterBreach time.Duration
	ReconcileInterval   time.Duration
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeMonitor
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.CooldownAfterBreach <= 0 {
		c.CooldownAfterBreach = time.Minute
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
}

// Supervisor connects the pipeline stages and supervises their goroutines.
type Supervisor struct {
	cfg Config

	bus         *bus.Bus
	scanner     *scanner.Scanner
	gate        *risk.Gate
	coordinator *executor.Coordinator
	ingester    *marketdata.Ingester
	perf        *perf.Tracker
	metrics     *metrics.Metrics
	venues      *venue.Set
	balances    domain.BalanceStore
	stores      *Stores

	log       *slog.Logger
	startedAt time.Time
}

// Options carries the optional collaborators.
type Options struct {
	// Ingester feeds the market data cache. Nil skips ingestion (tests
	// drive the cache directly).
	Ingester *marketdata.Ingester
	// Balances, when set, receives reconciled venue balances.
	Balances domain.BalanceStore
	// Stores, when set, persists pipeline events.
	Stores *Stores
}

// New wires a supervisor.
func New(cfg Config, b *bus.Bus, sc *scanner.Scanner, gate *risk.Gate, coord *executor.Coordinator,
	pf *perf.Tracker, m *metrics.Metrics, venues *venue.Set, opts Options, log *slog.Logger) *Supervisor {
	cfg.setDefaults()
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Supervisor{
		cfg:         cfg,
		bus:         b,
		scanner:     sc,
		gate:        gate,
		coordinator: coord,
		ingester:    opts.Ingester,
		perf:        pf,
		metrics:     m,
		venues:      venues,
		balances:    opts.Balances,
		stores:      opts.Stores,
		log:         log.With("component", "core"),
	}
}

// Run starts every loop and blocks until ctx is cancelled or a stage fails.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.log.Info("supervisor starting", "mode", string(s.cfg.Mode))

	g, ctx := errgroup.WithContext(ctx)

	if s.ingester != nil {
		g.Go(func() error { return s.ingester.Run(ctx) })
	}
	g.Go(func() error { return s.scanner.Run(ctx) })
	if s.cfg.Mode == ModeExecute {
		g.Go(func() error { return s.coordinator.Run(ctx) })
	}
	g.Go(func() error { return s.pipeline(ctx) })
	g.Go(func() error { return s.results(ctx) })
	g.Go(func() error { return s.observe(ctx) })
	g.Go(func() error { return s.heartbeat(ctx) })
	if s.stores != nil {
		g.Go(func() error { return s.persist(ctx) })
	}
	if s.balances != nil && s.venues != nil {
		g.Go(func() error { return s.reconcile(ctx) })
	}

	err := g.Wait()
	s.bus.Close()
	if errors.Is(err, context.Canceled) {
		s.log.Info("supervisor stopped")
		return nil
	}
	return err
}

// pipeline moves candidates from the scanner through the gate and into the
// coordinator.
func (s *Supervisor) pipeline(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-s.scanner.Candidates():
			s.handleCandidate(op)
		}
	}
}

func (s *Supervisor) handleCandidate(op domain.Opportunity) {
	decision := s.gate.Evaluate(op)
	if !decision.Approved {
		s.metrics.OpportunitiesRejected.Inc()
		if err := s.scanner.Transition(op.ID, domain.OpportunityStatusRejected); err != nil {
			s.log.Debug("rejected opportunity already gone", "id", op.ID, "err", err)
		}
		s.log.Info("opportunity rejected",
			"id", op.ID, "strategy", op.Strategy,
			"check", decision.Check, "reason", decision.Reason)
		if decision.Check == risk.CheckDailyLoss {
			s.scanner.Pause(s.cfg.CooldownAfterBreach, "daily loss limit")
		}
		return
	}

	if err := s.scanner.Transition(op.ID, domain.OpportunityStatusApproved); err != nil {
		s.log.Debug("approved opportunity already gone", "id", op.ID, "err", err)
		return
	}

	if s.cfg.Mode != ModeExecute {
		s.log.Info("opportunity approved (monitor mode, not traded)",
			"id", op.ID, "strategy", op.Strategy,
			"net", op.ProjectedProfitQuote.String())
		return
	}

	s.gate.Portfolio().ReserveLegs(op.ID, op)
	if err := s.coordinator.Submit(op); err != nil {
		s.gate.Portfolio().Release(op.ID)
		s.log.Warn("submission refused", "id", op.ID, "err", err)
		return
	}
	if err := s.scanner.Transition(op.ID, domain.OpportunityStatusExecuting); err != nil {
		s.log.Debug("executing transition failed", "id", op.ID, "err", err)
	}
}

// results folds finished executions back into the scanner, the portfolio
// and the performance tracker.
func (s *Supervisor) results(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case exec := <-s.coordinator.Results():
			s.handleResult(exec)
		}
	}
}

func (s *Supervisor) handleResult(exec domain.Execution) {
	s.gate.Portfolio().Release(exec.OpportunityID)
	at := time.Now()
	if exec.CompletedAt != nil {
		at = *exec.CompletedAt
	}
	s.gate.Portfolio().RecordResult(exec.RealizedProfit, at)
	s.perf.RecordResult(exec)

	status := domain.OpportunityStatusCompleted
	if exec.Status != domain.ExecutionStatusCompleted {
		status = domain.OpportunityStatusFailed
	}
	if err := s.scanner.Transition(exec.OpportunityID, status); err != nil {
		s.log.Debug("result for unknown opportunity", "id", exec.OpportunityID, "err", err)
	}
}

// observe maps bus events onto counters and cross-cutting reactions.
func (s *Supervisor) observe(ctx context.Context) error {
	sub := s.bus.Subscribe("core", 512)
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleEvent(ev domain.Event) {
	switch ev.Kind {
	case domain.EventOpportunityDetected:
		s.metrics.OpportunitiesDetected.Inc()
	case domain.EventOpportunityExpired:
		s.metrics.OpportunitiesExpired.Inc()
	case domain.EventExecutionStarted:
		s.metrics.ExecutionsStarted.Inc()
		if p, ok := ev.Payload.(domain.ExecutionEvent); ok {
			s.perf.RecordStart(p.Execution)
		}
	case domain.EventExecutionCompleted:
		s.metrics.ExecutionsCompleted.Inc()
	case domain.EventExecutionFailed:
		s.metrics.ExecutionsFailed.Inc()
	case domain.EventRiskAlert:
		s.metrics.RiskAlerts.Inc()
	case domain.EventEmergencyStop:
		s.metrics.EmergencyStops.Inc()
		s.coordinator.EmergencyStop()
	case domain.EventVenueConnectionLost:
		s.metrics.VenueFailures.Inc()
	}
}

// heartbeat publishes the periodic liveness report.
func (s *Supervisor) heartbeat(ctx context.Context) error {
	tick := time.NewTicker(s.cfg.HeartbeatInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			s.bus.Publish(domain.NewEvent(domain.EventHeartbeat, domain.HeartbeatEvent{
				Uptime:        time.Since(s.startedAt),
				HeapAllocB:    mem.HeapAlloc,
				NumGoroutine:  runtime.NumGoroutine(),
				ActiveOpps:    s.scanner.ActiveCount(),
				QueuedExecs:   s.coordinator.Queued(),
				InflightExecs: len(s.coordinator.Live()),
			}))
		}
	}
}

// reconcile refreshes persisted venue balances on a fixed cadence.
func (s *Supervisor) reconcile(ctx context.Context) error {
	tick := time.NewTicker(s.cfg.ReconcileInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.reconcileOnce(ctx)
		}
	}
}

func (s *Supervisor) reconcileOnce(ctx context.Context) {
	for _, id := range s.venues.IDs() {
		ad, ok := s.venues.Get(id)
		if !ok {
			continue
		}
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		balances, err := ad.FetchBalances(fetchCtx)
		cancel()
		if err != nil {
			s.log.Warn("balance reconciliation failed", "venue", id, "err", err)
			continue
		}
		if err := s.balances.UpsertBatch(ctx, balances); err != nil {
			s.log.Warn("balance upsert failed", "venue", id, "err", err)
		}
	}
}
