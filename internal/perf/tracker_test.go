package perf

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func finished(profit, fees string, status domain.ExecutionStatus, start, end time.Time) domain.Execution {
	return domain.Execution{
		ID:             "exec",
		Strategy:       "spread",
		Status:         status,
		RealizedProfit: dec(profit),
		TotalFees:      dec(fees),
		VolumeQuote:    dec("100"),
		Trades: []domain.Trade{
			{Venue: "alpha", Symbol: domain.NewSymbol("BTC", "USDT")},
			{Venue: "beta", Symbol: domain.NewSymbol("BTC", "USDT")},
		},
		StartedAt:   start,
		CompletedAt: &end,
	}
}

func TestTrackerCountsAndAggregates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	e1 := finished("10", "0.5", domain.ExecutionStatusCompleted, now.Add(-200*time.Millisecond), now)
	e2 := finished("-4", "0.5", domain.ExecutionStatusFailed, now.Add(-100*time.Millisecond), now)
	tr.RecordStart(e1)
	tr.RecordStart(e2)
	tr.RecordStart(domain.Execution{}) // in flight, never resolves here
	tr.RecordResult(e1)
	tr.RecordResult(e2)

	s := tr.Snapshot()
	if s.TotalExecutions != 3 || s.SuccessfulExecutions != 1 || s.FailedExecutions != 1 {
		t.Fatalf("counts = %d/%d/%d", s.TotalExecutions, s.SuccessfulExecutions, s.FailedExecutions)
	}
	if s.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", s.SuccessRate)
	}
	if !s.TotalProfit.Equal(dec("6")) {
		t.Fatalf("total profit = %s, want 6", s.TotalProfit)
	}
	if !s.TotalFees.Equal(dec("1")) {
		t.Fatalf("total fees = %s, want 1", s.TotalFees)
	}
	if !s.ProfitToday.Equal(dec("6")) {
		t.Fatalf("profit today = %s, want 6", s.ProfitToday)
	}
	if !s.AvgProfit.Equal(dec("3")) {
		t.Fatalf("avg profit = %s, want 3", s.AvgProfit)
	}
	if s.AvgLatencyMs != 150 || s.MaxLatencyMs != 200 {
		t.Fatalf("latency avg/max = %v/%v, want 150/200", s.AvgLatencyMs, s.MaxLatencyMs)
	}
	if !s.ProfitByVenue["alpha"].Equal(dec("6")) {
		t.Fatalf("alpha profit = %s, want 6", s.ProfitByVenue["alpha"])
	}
	if !s.ProfitByPair["BTC/USDT"].Equal(dec("6")) {
		t.Fatalf("pair profit = %s, want 6", s.ProfitByPair["BTC/USDT"])
	}
	if !s.ProfitByStrategy["spread"].Equal(dec("6")) {
		t.Fatalf("strategy profit = %s, want 6", s.ProfitByStrategy["spread"])
	}
}

func TestTrackerDrawdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	for _, p := range []string{"10", "5", "-12", "3"} {
		tr.RecordResult(finished(p, "0", domain.ExecutionStatusCompleted, now, now))
	}
	s := tr.Snapshot()
	if !s.PeakProfit.Equal(dec("15")) {
		t.Fatalf("peak = %s, want 15", s.PeakProfit)
	}
	// Equity ran 10 -> 15 -> 3 -> 6: the worst point gave back 12 of the
	// 15 peak.
	if !s.MaxDrawdown.Equal(dec("0.8")) {
		t.Fatalf("max drawdown = %s, want 0.8", s.MaxDrawdown)
	}
}

func TestTrackerDrawdownIsFractionOfPeak(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	tr.RecordResult(finished("10", "0", domain.ExecutionStatusCompleted, now, now))
	tr.RecordResult(finished("-5", "0", domain.ExecutionStatusFailed, now, now))

	if got := tr.Snapshot().MaxDrawdown; !got.Equal(dec("0.5")) {
		t.Fatalf("max drawdown = %s, want 0.5", got)
	}
}

func TestTrackerNoDrawdownWithoutPositivePeak(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	tr.RecordResult(finished("-5", "0", domain.ExecutionStatusFailed, now, now))
	tr.RecordResult(finished("-3", "0", domain.ExecutionStatusFailed, now, now))

	if got := tr.Snapshot().MaxDrawdown; !got.IsZero() {
		t.Fatalf("max drawdown = %s, want 0 while equity never peaked", got)
	}
}

func TestTrackerDailyTrimAndSharpe(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()

	for i := 0; i < 40; i++ {
		day := base.AddDate(0, 0, i)
		tr.now = func() time.Time { return day }
		profit := "5"
		if i%2 == 0 {
			profit = "1"
		}
		tr.RecordResult(finished(profit, "0", domain.ExecutionStatusCompleted, day, day))
	}

	s := tr.Snapshot()
	if len(s.DailyProfit) != 30 {
		t.Fatalf("daily days = %d, want 30", len(s.DailyProfit))
	}
	if _, ok := s.DailyProfit["2026-01-01"]; ok {
		t.Fatal("oldest day not trimmed")
	}
	if _, ok := s.DailyProfit["2026-02-09"]; !ok {
		t.Fatal("newest day missing")
	}
	if s.SharpeRatio <= 0 {
		t.Fatalf("sharpe = %v, want positive for profitable days", s.SharpeRatio)
	}
}

func TestTrackerSharpeNeedsTwoDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }
	tr.RecordResult(finished("10", "0", domain.ExecutionStatusCompleted, now, now))

	if got := tr.Snapshot().SharpeRatio; got != 0 {
		t.Fatalf("sharpe = %v with one day, want 0", got)
	}
}

func TestTrackerProfitRingBounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }

	for i := 0; i < ringSize+50; i++ {
		tr.RecordResult(finished(fmt.Sprintf("%d", i%7), "0", domain.ExecutionStatusCompleted, now, now))
	}
	if got := len(tr.profits.values()); got != ringSize {
		t.Fatalf("profit ring = %d entries, want %d", got, ringSize)
	}
}
