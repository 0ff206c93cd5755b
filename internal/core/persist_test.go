package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/bus"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

type memOppStore struct {
	inserted []domain.Opportunity
	statuses map[string]domain.OpportunityStatus
}

func (m *memOppStore) Insert(_ context.Context, op domain.Opportunity) error {
	m.inserted = append(m.inserted, op)
	return nil
}

func (m *memOppStore) UpdateStatus(_ context.Context, id string, status domain.OpportunityStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]domain.OpportunityStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *memOppStore) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	return m.inserted, nil
}

func (m *memOppStore) ListBefore(context.Context, time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (m *memOppStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memExecStore struct {
	inserted []domain.Execution
	updated  []domain.Execution
}

func (m *memExecStore) Insert(_ context.Context, e domain.Execution) error {
	m.inserted = append(m.inserted, e)
	return nil
}

func (m *memExecStore) Update(_ context.Context, e domain.Execution) error {
	m.updated = append(m.updated, e)
	return nil
}

func (m *memExecStore) GetByID(context.Context, string) (domain.Execution, error) {
	return domain.Execution{}, domain.ErrNotFound
}

func (m *memExecStore) ListRecent(context.Context, int) ([]domain.Execution, error) {
	return nil, nil
}

func (m *memExecStore) ListBefore(context.Context, time.Time) ([]domain.Execution, error) {
	return nil, nil
}

func (m *memExecStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memTradeStore struct{ inserted []domain.Trade }

func (m *memTradeStore) Insert(_ context.Context, t domain.Trade) error {
	m.inserted = append(m.inserted, t)
	return nil
}

func (m *memTradeStore) Update(context.Context, domain.Trade) error { return nil }

func (m *memTradeStore) ListByExecution(context.Context, string) ([]domain.Trade, error) {
	return nil, nil
}

func (m *memTradeStore) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func (m *memTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memRiskStore struct{ inserted []domain.RiskEvent }

func (m *memRiskStore) Insert(_ context.Context, ev domain.RiskEvent) error {
	m.inserted = append(m.inserted, ev)
	return nil
}

func (m *memRiskStore) ListRecent(context.Context, int) ([]domain.RiskEvent, error) {
	return nil, nil
}

type memMarketStore struct{ inserted []domain.MarketEvent }

func (m *memMarketStore) Insert(_ context.Context, ev domain.MarketEvent) error {
	m.inserted = append(m.inserted, ev)
	return nil
}

func (m *memMarketStore) ListRecent(context.Context, int) ([]domain.MarketEvent, error) {
	return nil, nil
}

func persistEnv(t *testing.T) (*Supervisor, *memOppStore, *memExecStore, *memTradeStore, *memRiskStore, *memMarketStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opps := &memOppStore{}
	execs := &memExecStore{}
	trades := &memTradeStore{}
	risks := &memRiskStore{}
	markets := &memMarketStore{}
	sup := New(Config{}, bus.New(logger), nil, nil, nil, nil, nil, nil, Options{
		Stores: &Stores{
			Opportunities: opps,
			Executions:    execs,
			Trades:        trades,
			RiskEvents:    risks,
			MarketEvents:  markets,
		},
	}, logger)
	return sup, opps, execs, trades, risks, markets
}

func TestPersistOpportunityLifecycle(t *testing.T) {
	sup, opps, _, _, _, _ := persistEnv(t)
	ctx := context.Background()
	op := testOp()

	sup.persistEvent(ctx, domain.NewEvent(domain.EventOpportunityDetected, domain.OpportunityEvent{Opportunity: op}))
	op.Status = domain.OpportunityStatusExpired
	sup.persistEvent(ctx, domain.NewEvent(domain.EventOpportunityExpired, domain.OpportunityEvent{Opportunity: op}))

	if len(opps.inserted) != 1 || opps.inserted[0].ID != op.ID {
		t.Fatalf("inserted = %+v, want one row for %s", opps.inserted, op.ID)
	}
	if got := opps.statuses[op.ID]; got != domain.OpportunityStatusExpired {
		t.Fatalf("status = %s, want expired", got)
	}
}

func TestPersistExecutionWithTrades(t *testing.T) {
	sup, _, execs, trades, _, _ := persistEnv(t)
	ctx := context.Background()

	exec := domain.Execution{ID: "exec-1", OpportunityID: "op-1", Status: domain.ExecutionStatusExecuting}
	sup.persistEvent(ctx, domain.NewEvent(domain.EventExecutionStarted, domain.ExecutionEvent{Execution: exec}))

	exec.Status = domain.ExecutionStatusCompleted
	exec.Trades = []domain.Trade{
		{ID: "t-1", ExecutionID: exec.ID, Venue: "alpha"},
		{ID: "t-2", ExecutionID: exec.ID, Venue: "beta"},
	}
	sup.persistEvent(ctx, domain.NewEvent(domain.EventExecutionCompleted, domain.ExecutionEvent{Execution: exec}))

	if len(execs.inserted) != 1 || len(execs.updated) != 1 {
		t.Fatalf("inserted/updated = %d/%d, want 1/1", len(execs.inserted), len(execs.updated))
	}
	if len(trades.inserted) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades.inserted))
	}
}

func TestPersistRiskAndMarketEvents(t *testing.T) {
	sup, _, _, _, risks, markets := persistEnv(t)
	ctx := context.Background()

	sup.persistEvent(ctx, domain.NewEvent(domain.EventRiskAlert, domain.RiskAlertEvent{
		Limit:  "dailyLossHalt",
		Value:  dec("600"),
		Bound:  dec("500"),
		Reason: "daily realized loss limit reached",
	}))
	sup.persistEvent(ctx, domain.NewEvent(domain.EventPriceAlert, domain.PriceAlertEvent{
		Venue:     "alpha",
		Symbol:    domain.NewSymbol("BTC", "USDT"),
		Previous:  dec("100"),
		Current:   dec("106"),
		ChangePct: dec("6"),
	}))
	sup.persistEvent(ctx, domain.NewEvent(domain.EventVolumeSpike, domain.VolumeSpikeEvent{
		Venue:    "beta",
		Symbol:   domain.NewSymbol("ETH", "USDT"),
		Previous: dec("1000"),
		Current:  dec("4000"),
		Ratio:    dec("4"),
	}))

	if len(risks.inserted) != 1 {
		t.Fatalf("risk events = %d, want 1", len(risks.inserted))
	}
	got := risks.inserted[0]
	if got.ID == "" || got.Limit != "dailyLossHalt" || !got.Bound.Equal(dec("500")) {
		t.Fatalf("risk event = %+v", got)
	}
	if len(markets.inserted) != 2 {
		t.Fatalf("market events = %d, want 2", len(markets.inserted))
	}
	if !markets.inserted[0].Magnitude.Equal(dec("6")) || !markets.inserted[1].Magnitude.Equal(dec("4")) {
		t.Fatalf("magnitudes = %s/%s, want 6/4",
			markets.inserted[0].Magnitude, markets.inserted[1].Magnitude)
	}
}

func TestPersistIgnoresUnmappedEvents(t *testing.T) {
	sup, opps, execs, _, risks, markets := persistEnv(t)
	ctx := context.Background()

	sup.persistEvent(ctx, domain.NewEvent(domain.EventHeartbeat, domain.HeartbeatEvent{}))
	sup.persistEvent(ctx, domain.NewEvent(domain.EventEmergencyStop, domain.EmergencyStopEvent{Reason: "test"}))

	if len(opps.inserted)+len(execs.inserted)+len(risks.inserted)+len(markets.inserted) != 0 {
		t.Fatal("unmapped events reached the stores")
	}
}
