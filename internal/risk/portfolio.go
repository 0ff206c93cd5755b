package risk

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Portfolio tracks in-flight exposure, open positions and the realized
// result of the current UTC day. The gate reads it; the supervisor writes
// reservations around each execution.
type Portfolio struct {
	mu  sync.Mutex
	now func() time.Time

	reserved  map[string]map[string]decimal.Decimal // execution ID -> venue -> quote notional
	positions map[string]domain.Position            // by position ID

	day           time.Time // UTC midnight of the day realized covers
	dailyRealized decimal.Decimal
}

// Snapshot is a point-in-time read of the portfolio used by the gate's
// deterministic checks.
type Snapshot struct {
	TotalExposure decimal.Decimal
	VenueExposure map[string]decimal.Decimal
	DailyRealized decimal.Decimal
	Positions     []domain.Position
}

// NewPortfolio builds an empty tracker.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		now:       time.Now,
		reserved:  make(map[string]map[string]decimal.Decimal),
		positions: make(map[string]domain.Position),
	}
}

// Reserve records the per-venue quote notional an execution is about to put
// at risk. Reserving again under the same ID replaces the previous figures.
func (p *Portfolio) Reserve(executionID string, perVenue map[string]decimal.Decimal) {
	cp := make(map[string]decimal.Decimal, len(perVenue))
	for v, n := range perVenue {
		cp[v] = n
	}
	p.mu.Lock()
	p.reserved[executionID] = cp
	p.mu.Unlock()
}

// ReserveLegs reserves the leg notionals of an opportunity under the given
// execution ID.
func (p *Portfolio) ReserveLegs(executionID string, op domain.Opportunity) {
	perVenue := make(map[string]decimal.Decimal)
	for _, l := range op.Legs {
		perVenue[l.Venue] = perVenue[l.Venue].Add(l.Amount.Mul(l.ReferencePrice))
	}
	p.Reserve(executionID, perVenue)
}

// Release drops an execution's reservation once its orders are terminal.
func (p *Portfolio) Release(executionID string) {
	p.mu.Lock()
	delete(p.reserved, executionID)
	p.mu.Unlock()
}

// RecordResult adds a realized profit or loss to the daily total, rolling
// the day over at UTC midnight.
func (p *Portfolio) RecordResult(profit decimal.Decimal, at time.Time) {
	day := at.UTC().Truncate(24 * time.Hour)
	p.mu.Lock()
	if !day.Equal(p.day) {
		p.day = day
		p.dailyRealized = decimal.Zero
	}
	p.dailyRealized = p.dailyRealized.Add(profit)
	p.mu.Unlock()
}

// OpenPosition registers inventory left open on a venue.
func (p *Portfolio) OpenPosition(pos domain.Position) {
	p.mu.Lock()
	p.positions[pos.ID] = pos
	p.mu.Unlock()
}

// ClosePosition removes a position once it is flattened.
func (p *Portfolio) ClosePosition(id string) {
	p.mu.Lock()
	delete(p.positions, id)
	p.mu.Unlock()
}

// Snapshot returns a consistent copy of the current exposure figures. The
// daily realized figure reads as zero once the UTC day has rolled over.
func (p *Portfolio) Snapshot(at time.Time) Snapshot {
	day := at.UTC().Truncate(24 * time.Hour)

	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		TotalExposure: decimal.Zero,
		VenueExposure: make(map[string]decimal.Decimal),
		DailyRealized: decimal.Zero,
	}
	if day.Equal(p.day) {
		s.DailyRealized = p.dailyRealized
	}
	for _, perVenue := range p.reserved {
		for v, n := range perVenue {
			s.VenueExposure[v] = s.VenueExposure[v].Add(n)
			s.TotalExposure = s.TotalExposure.Add(n)
		}
	}
	for _, pos := range p.positions {
		s.VenueExposure[pos.Venue] = s.VenueExposure[pos.Venue].Add(pos.QuoteValue)
		s.TotalExposure = s.TotalExposure.Add(pos.QuoteValue)
		s.Positions = append(s.Positions, pos)
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].OpenedAt.Before(s.Positions[j].OpenedAt) })
	return s
}
