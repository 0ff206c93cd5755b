// Package risk gates every detected opportunity through a deterministic
// check sequence and owns the portfolio limits, the per-venue circuit
// breaker and the emergency stop.
package risk

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Config holds the gate's limits. Zero-valued limits fall back to the
// documented defaults.
type Config struct {
	MinProfitPct          decimal.Decimal
	MaxTotalExposureQuote decimal.Decimal
	MaxLossPerDayQuote    decimal.Decimal
	MaxPositionAge        time.Duration
	BookDepthLevels       int
}

func (c *Config) setDefaults() {
	if c.MinProfitPct.IsZero() {
		c.MinProfitPct = decimal.NewFromFloat(0.1)
	}
	if c.MaxPositionAge <= 0 {
		c.MaxPositionAge = time.Hour
	}
	if c.BookDepthLevels <= 0 {
		c.BookDepthLevels = 5
	}
}

// Check names, stable across releases so alerting can key on them.
const (
	CheckEmergencyStop = "emergencyStop"
	CheckMinProfit     = "minProfit"
	CheckTotalExposure = "totalExposure"
	CheckVenueExposure = "venueExposure"
	CheckVenueCircuit  = "venueCircuitOpen"
	CheckDailyLoss     = "dailyLossHalt"
	CheckBookDepth     = "bookDepth"
	CheckPositionAge   = "positionAge"
)

// Decision is the gate's verdict for one opportunity. Check and Reason are
// set only on rejections.
type Decision struct {
	Approved bool
	Check    string
	Reason   string
}

func reject(check, reason string) Decision {
	return Decision{Check: check, Reason: reason}
}

// BookSource supplies fresh order books for the depth check.
type BookSource interface {
	Book(venue string, sym domain.Symbol) (domain.Book, bool)
}

// VenueSource supplies venue descriptors for per-venue limits.
type VenueSource interface {
	Venue(id string) (domain.Venue, bool)
}

// Gate evaluates opportunities in a fixed check order; the first failing
// check decides. Evaluations are deterministic for a given portfolio
// snapshot and book state.
type Gate struct {
	cfg       Config
	portfolio *Portfolio
	breaker   *Breaker
	books     BookSource
	venues    VenueSource
	emit      func(domain.Event)
	log       *slog.Logger
	now       func() time.Time

	stopped atomic.Bool

	mu     sync.Mutex
	halted bool // daily-loss halt latch, for edge-triggered alerting
}

// NewGate wires the gate to its inputs.
func NewGate(cfg Config, portfolio *Portfolio, breaker *Breaker, books BookSource, venues VenueSource, emit func(domain.Event), log *slog.Logger) *Gate {
	cfg.setDefaults()
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Gate{
		cfg:       cfg,
		portfolio: portfolio,
		breaker:   breaker,
		books:     books,
		venues:    venues,
		emit:      emit,
		log:       log.With("component", "risk"),
		now:       time.Now,
	}
}

// Breaker exposes the circuit breaker so the execution layer can feed venue
// API outcomes into it.
func (g *Gate) Breaker() *Breaker { return g.breaker }

// Portfolio exposes the exposure tracker for reservations and results.
func (g *Gate) Portfolio() *Portfolio { return g.portfolio }

// EmergencyStop latches the gate shut. Every later evaluation is rejected;
// there is no way back without a restart.
func (g *Gate) EmergencyStop(reason string) {
	if g.stopped.Swap(true) {
		return
	}
	g.log.Error("emergency stop", "reason", reason)
	g.emit(domain.NewEvent(domain.EventEmergencyStop, domain.EmergencyStopEvent{Reason: reason}))
}

// Stopped reports whether the emergency stop has fired.
func (g *Gate) Stopped() bool { return g.stopped.Load() }

// Evaluate runs the ordered checks against the current portfolio state and
// returns the first failure, or approval.
func (g *Gate) Evaluate(op domain.Opportunity) Decision {
	now := g.now()

	if g.stopped.Load() {
		return reject(CheckEmergencyStop, "trading halted")
	}

	if op.ProjectedProfitPct.LessThan(g.cfg.MinProfitPct) {
		return reject(CheckMinProfit,
			"projected "+op.ProjectedProfitPct.StringFixed(4)+"% below floor "+g.cfg.MinProfitPct.StringFixed(4)+"%")
	}

	snap := g.portfolio.Snapshot(now)

	if g.cfg.MaxTotalExposureQuote.IsPositive() {
		after := snap.TotalExposure.Add(op.VolumeQuote)
		if after.GreaterThan(g.cfg.MaxTotalExposureQuote) {
			return reject(CheckTotalExposure,
				"would hold "+after.StringFixed(2)+" against limit "+g.cfg.MaxTotalExposureQuote.StringFixed(2))
		}
	}

	if d, ok := g.checkVenueExposure(op, snap); !ok {
		return d
	}

	for _, v := range op.Venues() {
		if g.breaker.Open(v, now) {
			return reject(CheckVenueCircuit, "venue "+v+" circuit open")
		}
	}

	if d, ok := g.checkDailyLoss(snap); !ok {
		return d
	}

	if d, ok := g.checkDepth(op); !ok {
		return d
	}

	if d, ok := g.checkPositionAge(op, snap, now); !ok {
		return d
	}

	return Decision{Approved: true}
}

func (g *Gate) checkVenueExposure(op domain.Opportunity, snap Snapshot) (Decision, bool) {
	perVenue := make(map[string]decimal.Decimal)
	for _, l := range op.Legs {
		perVenue[l.Venue] = perVenue[l.Venue].Add(l.Amount.Mul(l.ReferencePrice))
	}
	for v, add := range perVenue {
		desc, ok := g.venues.Venue(v)
		if !ok || !desc.Limits.MaxPositionQuote.IsPositive() {
			continue
		}
		after := snap.VenueExposure[v].Add(add)
		if after.GreaterThan(desc.Limits.MaxPositionQuote) {
			return reject(CheckVenueExposure,
				"venue "+v+" would hold "+after.StringFixed(2)+" against limit "+desc.Limits.MaxPositionQuote.StringFixed(2)), false
		}
	}
	return Decision{}, true
}

// checkDailyLoss halts approvals once the day's realized loss reaches the
// limit. The alert fires only on the closed-to-halted edge so the
// supervisor pauses scanning exactly once per breach.
func (g *Gate) checkDailyLoss(snap Snapshot) (Decision, bool) {
	if !g.cfg.MaxLossPerDayQuote.IsPositive() {
		return Decision{}, true
	}
	loss := snap.DailyRealized.Neg()
	halted := loss.GreaterThanOrEqual(g.cfg.MaxLossPerDayQuote)

	g.mu.Lock()
	fresh := halted && !g.halted
	g.halted = halted
	g.mu.Unlock()

	if fresh {
		g.log.Warn("daily loss limit reached",
			"realized", snap.DailyRealized.String(),
			"limit", g.cfg.MaxLossPerDayQuote.String())
		g.emit(domain.NewEvent(domain.EventRiskAlert, domain.RiskAlertEvent{
			Limit:  CheckDailyLoss,
			Value:  loss,
			Bound:  g.cfg.MaxLossPerDayQuote,
			Reason: "daily realized loss limit reached",
		}))
	}
	if halted {
		return reject(CheckDailyLoss,
			"daily loss "+loss.StringFixed(2)+" at limit "+g.cfg.MaxLossPerDayQuote.StringFixed(2)), false
	}
	return Decision{}, true
}

// checkDepth requires every leg to be coverable inside the top levels of a
// fresh book on its side.
func (g *Gate) checkDepth(op domain.Opportunity) (Decision, bool) {
	for _, l := range op.Legs {
		book, ok := g.books.Book(l.Venue, l.Symbol)
		if !ok {
			return reject(CheckBookDepth, "no fresh book for "+l.Venue+" "+l.Symbol.String()), false
		}
		side := book.Asks
		if l.Side == domain.OrderSideSell {
			side = book.Bids
		}
		if len(side) > g.cfg.BookDepthLevels {
			side = side[:g.cfg.BookDepthLevels]
		}
		avail := decimal.Zero
		for _, lvl := range side {
			avail = avail.Add(lvl.Size)
		}
		if avail.LessThan(l.Amount) {
			return reject(CheckBookDepth,
				"leg "+l.Venue+" "+l.Symbol.String()+" needs "+l.Amount.String()+", top levels hold "+avail.String()), false
		}
	}
	return Decision{}, true
}

// checkPositionAge refuses to stack new risk on a venue already carrying a
// stale position.
func (g *Gate) checkPositionAge(op domain.Opportunity, snap Snapshot, now time.Time) (Decision, bool) {
	touched := make(map[string]bool)
	for _, v := range op.Venues() {
		touched[v] = true
	}
	for _, pos := range snap.Positions {
		if touched[pos.Venue] && pos.Age(now) > g.cfg.MaxPositionAge {
			return reject(CheckPositionAge,
				"venue "+pos.Venue+" holds "+pos.Asset+" open for "+pos.Age(now).Truncate(time.Second).String()), false
		}
	}
	return Decision{}, true
}
