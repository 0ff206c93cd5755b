// Package perf accumulates trading results into the running performance
// figures served by the dashboard. The tracker observes executions and
// answers snapshots; it takes no actions of its own.
package perf

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

const (
	// ringSize bounds the per-execution profit and latency histories.
	ringSize = 1000
	// dailyDays is how many UTC days of daily profit are retained.
	dailyDays = 30
	// riskFreeDaily is the daily risk-free return used in the Sharpe
	// calculation (2% annual).
	riskFreeDaily = 0.02 / 365
)

// Tracker folds execution outcomes into cumulative statistics. Executions
// count when they start; success and failure counts resolve on completion.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	started   int
	succeeded int
	failed    int

	totalProfit decimal.Decimal
	totalFees   decimal.Decimal
	totalVolume decimal.Decimal

	profits   ring[decimal.Decimal]
	latencies ring[float64] // milliseconds

	daily map[string]decimal.Decimal // UTC date -> realized profit

	cumulative  decimal.Decimal // running equity curve
	peak        decimal.Decimal
	maxDrawdown decimal.Decimal // worst fractional slide off the peak

	byVenue    map[string]decimal.Decimal
	byPair     map[string]decimal.Decimal
	byStrategy map[string]decimal.Decimal
}

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:        time.Now,
		profits:    newRing[decimal.Decimal](ringSize),
		latencies:  newRing[float64](ringSize),
		daily:      make(map[string]decimal.Decimal),
		byVenue:    make(map[string]decimal.Decimal),
		byPair:     make(map[string]decimal.Decimal),
		byStrategy: make(map[string]decimal.Decimal),
	}
}

// RecordStart counts an execution entering the pipeline.
func (t *Tracker) RecordStart(domain.Execution) {
	t.mu.Lock()
	t.started++
	t.mu.Unlock()
}

// RecordResult folds a finished execution into the statistics.
func (t *Tracker) RecordResult(exec domain.Execution) {
	now := t.now()
	end := now
	if exec.CompletedAt != nil {
		end = *exec.CompletedAt
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if exec.Status == domain.ExecutionStatusCompleted {
		t.succeeded++
	} else {
		t.failed++
	}

	t.totalProfit = t.totalProfit.Add(exec.RealizedProfit)
	t.totalFees = t.totalFees.Add(exec.TotalFees)
	t.totalVolume = t.totalVolume.Add(exec.VolumeQuote)

	t.profits.push(exec.RealizedProfit)
	t.latencies.push(float64(end.Sub(exec.StartedAt)) / float64(time.Millisecond))

	day := end.UTC().Format("2006-01-02")
	t.daily[day] = t.daily[day].Add(exec.RealizedProfit)
	t.trimDaily()

	t.cumulative = t.cumulative.Add(exec.RealizedProfit)
	if t.cumulative.GreaterThan(t.peak) {
		t.peak = t.cumulative
	}
	// Drawdown is the fraction of the peak given back, not the quote slide.
	if t.peak.IsPositive() {
		if dd := t.peak.Sub(t.cumulative).Div(t.peak); dd.GreaterThan(t.maxDrawdown) {
			t.maxDrawdown = dd
		}
	}

	for _, v := range venuesOf(exec) {
		t.byVenue[v] = t.byVenue[v].Add(exec.RealizedProfit)
	}
	for _, p := range pairsOf(exec) {
		t.byPair[p] = t.byPair[p].Add(exec.RealizedProfit)
	}
	if exec.Strategy != "" {
		t.byStrategy[exec.Strategy] = t.byStrategy[exec.Strategy].Add(exec.RealizedProfit)
	}
}

func venuesOf(exec domain.Execution) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tr := range exec.Trades {
		if !seen[tr.Venue] {
			seen[tr.Venue] = true
			out = append(out, tr.Venue)
		}
	}
	return out
}

func pairsOf(exec domain.Execution) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tr := range exec.Trades {
		k := tr.Symbol.String()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func (t *Tracker) trimDaily() {
	if len(t.daily) <= dailyDays {
		return
	}
	days := make([]string, 0, len(t.daily))
	for d := range t.daily {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days[:len(days)-dailyDays] {
		delete(t.daily, d)
	}
}

// Snapshot returns the current statistics.
func (t *Tracker) Snapshot() domain.PerfSnapshot {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := domain.PerfSnapshot{
		TotalExecutions:      t.started,
		SuccessfulExecutions: t.succeeded,
		FailedExecutions:     t.failed,
		TotalProfit:          t.totalProfit,
		TotalFees:            t.totalFees,
		TotalVolume:          t.totalVolume,
		ProfitToday:          t.daily[now.UTC().Format("2006-01-02")],
		DailyProfit:          make(map[string]decimal.Decimal, len(t.daily)),
		PeakProfit:           t.peak,
		MaxDrawdown:          t.maxDrawdown,
		SharpeRatio:          t.sharpe(),
		ProfitByVenue:        copyMap(t.byVenue),
		ProfitByPair:         copyMap(t.byPair),
		ProfitByStrategy:     copyMap(t.byStrategy),
		GeneratedAt:          now,
	}
	for d, p := range t.daily {
		s.DailyProfit[d] = p
	}

	resolved := t.succeeded + t.failed
	if resolved > 0 {
		s.SuccessRate = float64(t.succeeded) / float64(resolved)
		s.AvgProfit = t.totalProfit.Div(decimal.NewFromInt(int64(resolved)))
	}

	lats := t.latencies.values()
	if len(lats) > 0 {
		var sum, max float64
		for _, l := range lats {
			sum += l
			if l > max {
				max = l
			}
		}
		s.AvgLatencyMs = sum / float64(len(lats))
		s.MaxLatencyMs = max
	}
	return s
}

// sharpe computes a Sharpe-style ratio over the retained daily profits.
// Fewer than two days, or zero variance, yield zero. Caller holds t.mu.
func (t *Tracker) sharpe() float64 {
	if len(t.daily) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(t.daily))
	for _, p := range t.daily {
		f, _ := p.Float64()
		returns = append(returns, f-riskFreeDaily)
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func copyMap(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ring is a fixed-capacity overwrite buffer.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](n int) ring[T] {
	return ring[T]{buf: make([]T, 0, n)}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}
	r.full = true
	r.buf[r.next] = v
	r.next = (r.next + 1) % cap(r.buf)
}

func (r *ring[T]) values() []T {
	return r.buf
}
