package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Stores bundles the persistence targets the supervisor writes pipeline
// events into. Any field may be nil; writes to nil stores are skipped.
type Stores struct {
	Opportunities domain.OpportunityStore
	Executions    domain.ExecutionStore
	Trades        domain.TradeStore
	RiskEvents    domain.RiskEventStore
	MarketEvents  domain.MarketEventStore
}

// persist mirrors pipeline events into the database. Persistence is an
// observer: a failed write is logged and the engine keeps trading.
func (s *Supervisor) persist(ctx context.Context) error {
	sub := s.bus.Subscribe("persist", 1024)
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			s.persistEvent(ctx, ev)
		}
	}
}

func (s *Supervisor) persistEvent(ctx context.Context, ev domain.Event) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch p := ev.Payload.(type) {
	case domain.OpportunityEvent:
		if s.stores.Opportunities == nil {
			return
		}
		if ev.Kind == domain.EventOpportunityDetected {
			err = s.stores.Opportunities.Insert(writeCtx, p.Opportunity)
		} else {
			err = s.stores.Opportunities.UpdateStatus(writeCtx, p.Opportunity.ID, p.Opportunity.Status)
		}
	case domain.ExecutionEvent:
		err = s.persistExecution(writeCtx, ev.Kind, p.Execution)
	case domain.RiskAlertEvent:
		if s.stores.RiskEvents == nil {
			return
		}
		err = s.stores.RiskEvents.Insert(writeCtx, domain.RiskEvent{
			ID:        uuid.New().String(),
			Limit:     p.Limit,
			Value:     p.Value,
			Bound:     p.Bound,
			Reason:    p.Reason,
			Fatal:     p.Fatal,
			CreatedAt: ev.At,
		})
	case domain.PriceAlertEvent:
		if s.stores.MarketEvents == nil {
			return
		}
		err = s.stores.MarketEvents.Insert(writeCtx, domain.MarketEvent{
			ID:        uuid.New().String(),
			Kind:      ev.Kind,
			Venue:     p.Venue,
			Symbol:    p.Symbol,
			Previous:  p.Previous,
			Current:   p.Current,
			Magnitude: p.ChangePct,
			CreatedAt: ev.At,
		})
	case domain.VolumeSpikeEvent:
		if s.stores.MarketEvents == nil {
			return
		}
		err = s.stores.MarketEvents.Insert(writeCtx, domain.MarketEvent{
			ID:        uuid.New().String(),
			Kind:      ev.Kind,
			Venue:     p.Venue,
			Symbol:    p.Symbol,
			Previous:  p.Previous,
			Current:   p.Current,
			Magnitude: p.Ratio,
			CreatedAt: ev.At,
		})
	default:
		return
	}
	if err != nil {
		s.log.Warn("event persistence failed", "kind", string(ev.Kind), "err", err)
	}
}

func (s *Supervisor) persistExecution(ctx context.Context, kind domain.EventKind, exec domain.Execution) error {
	if s.stores.Executions == nil {
		return nil
	}
	if kind == domain.EventExecutionStarted {
		return s.stores.Executions.Insert(ctx, exec)
	}
	if err := s.stores.Executions.Update(ctx, exec); err != nil {
		return err
	}
	if s.stores.Trades == nil {
		return nil
	}
	for _, t := range exec.Trades {
		if err := s.stores.Trades.Insert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
