package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DecentralizedMoney/matreshka/internal/core"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/notify"
	"github.com/DecentralizedMoney/matreshka/internal/server"
	"github.com/DecentralizedMoney/matreshka/internal/server/handler"
	"github.com/DecentralizedMoney/matreshka/internal/server/ws"
)

const (
	instanceLockName     = "engine"
	instanceLockTTL      = 30 * time.Second
	tickerMirrorInterval = 5 * time.Second
	perfSnapshotInterval = time.Minute
	shutdownGrace        = 10 * time.Second
)

// runEngine starts the supervisor and every observer loop and blocks until
// the context is cancelled or a loop fails.
func (a *App) runEngine(ctx context.Context, deps *Dependencies) error {
	mode := core.Mode(strings.ToLower(a.cfg.Mode))
	startedAt := time.Now()

	g, ctx := errgroup.WithContext(ctx)

	// Order placement must be exclusive across processes. Monitor mode is
	// read-only and may run alongside an executing instance.
	if mode == core.ModeExecute && deps.Lock != nil {
		release, err := deps.Lock.Acquire(ctx, instanceLockName, instanceLockTTL)
		if err != nil {
			return err
		}
		defer release()

		g.Go(func() error {
			ticker := time.NewTicker(instanceLockTTL / 3)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := deps.Lock.Refresh(ctx, instanceLockName, instanceLockTTL); err != nil {
						return err
					}
				}
			}
		})
	}

	supervisor := core.New(core.Config{
		Mode:                mode,
		HeartbeatInterval:   a.cfg.Core.HeartbeatInterval.Duration,
		CooldownAfterBreach: a.cfg.Risk.CooldownAfterBreach.Duration,
		ReconcileInterval:   a.cfg.Core.ReconcileInterval.Duration,
	}, deps.Bus, deps.Scanner, deps.Gate, deps.Coordinator, deps.Perf, deps.Prom.Metrics, deps.Venues,
		core.Options{
			Ingester: deps.Ingester,
			Balances: deps.Balances,
			Stores:   deps.Stores,
		}, a.logger)

	g.Go(func() error { return supervisor.Run(ctx) })

	hub := ws.NewHub(deps.Bus, string(mode), startedAt, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, hub, string(mode), startedAt)
	}

	if deps.Notifier != nil {
		relay := notify.NewRelay(deps.Bus, deps.Notifier, a.logger)
		g.Go(func() error { return relay.Run(ctx) })
	}

	if deps.Mirror != nil {
		g.Go(func() error { return a.mirrorEvents(ctx, deps) })
		if a.cfg.Redis.MirrorTickers {
			g.Go(func() error { return a.mirrorTickers(ctx, deps) })
		}
	}

	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}

	if deps.PerfStore != nil {
		g.Go(func() error { return a.persistPerf(ctx, deps) })
	}

	g.Go(func() error { return a.watchEmergencyStop(ctx, deps) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchEmergencyStop terminates the engine once an emergency stop has fired
// and the coordinator has drained. The gate stays latched until restart, so
// keeping the process alive would only serve a dead pipeline.
func (a *App) watchEmergencyStop(ctx context.Context, deps *Dependencies) error {
	sub := deps.Bus.Subscribe("halt-watch", 64)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if ev.Kind != domain.EventEmergencyStop {
				continue
			}
			a.awaitDrain(ctx, deps)
			return domain.ErrEmergencyStopped
		}
	}
}

func (a *App) awaitDrain(ctx context.Context, deps *Dependencies) {
	deadline := time.NewTimer(a.cfg.Executor.DrainGrace.Duration)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			a.logger.Warn("drain grace elapsed with executions in flight",
				"queued", deps.Coordinator.Queued(), "inflight", len(deps.Coordinator.Live()))
			return
		case <-tick.C:
			if deps.Coordinator.Queued() == 0 && len(deps.Coordinator.Live()) == 0 {
				return
			}
		}
	}
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, mode string, startedAt time.Time) {
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(),
		Status:      handler.NewStatusHandler(mode, startedAt, deps.Scanner, deps.Coordinator, deps.Gate),
		Venues:      handler.NewVenueHandler(deps.Venues, deps.Balances),
		Performance: handler.NewPerformanceHandler(deps.Perf),
	}
	if deps.Stores != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.Scanner, deps.Stores.Opportunities)
		handlers.Executions = handler.NewExecutionHandler(deps.Coordinator, deps.Stores.Executions)
		handlers.Risk = handler.NewRiskHandler(deps.Gate, deps.Gate.Portfolio(), deps.Gate.Breaker(), deps.Venues, deps.Stores.RiskEvents)
	} else {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.Scanner, nil)
		handlers.Executions = handler.NewExecutionHandler(deps.Coordinator, nil)
		handlers.Risk = handler.NewRiskHandler(deps.Gate, deps.Gate.Portfolio(), deps.Gate.Breaker(), deps.Venues, nil)
	}

	srv := server.NewServer(server.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIToken,
	}, handlers, hub, deps.Prom.Handler(), a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// mirrorEvents copies every bus event onto the Redis stream so external
// consumers can follow the engine without a direct connection.
func (a *App) mirrorEvents(ctx context.Context, deps *Dependencies) error {
	sub := deps.Bus.Subscribe("redis-mirror", 512)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := deps.Mirror.Publish(ctx, ev); err != nil {
				a.logger.Warn("event mirror publish failed", "err", err)
			}
		}
	}
}

func (a *App) mirrorTickers(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(tickerMirrorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, spec := range deps.Specs {
				for _, venueID := range spec.Venues {
					t, ok := deps.Cache.Ticker(venueID, spec.Symbol)
					if !ok {
						continue
					}
					if err := deps.Mirror.MirrorTicker(ctx, t); err != nil {
						a.logger.Warn("ticker mirror failed", "err", err)
					}
				}
			}
		}
	}
}

func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			archived, err := deps.Archiver.Run(ctx, before)
			if err != nil {
				a.logger.Error("archive run failed", "err", err)
				continue
			}
			if archived > 0 {
				a.logger.Info("archive run finished", "rows", archived)
			}
		}
	}
}

func (a *App) persistPerf(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(perfSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := deps.PerfStore.InsertSnapshot(ctx, deps.Perf.Snapshot()); err != nil {
				a.logger.Warn("perf snapshot persist failed", "err", err)
			}
		}
	}
}
