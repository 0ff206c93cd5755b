// Package scanner drives the strategies on a fixed cadence, deduplicates
// the candidates they emit and maintains the set of live opportunities.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/strategy"
)

// Config tunes the scan loop.
type Config struct {
	// Interval is the strategy evaluation cadence.
	Interval time.Duration
	// SweepInterval is how often expired opportunities are collected.
	SweepInterval time.Duration
	// MaxActive caps the live opportunity set. When full, a new candidate
	// only enters by evicting a less profitable detected one.
	MaxActive int
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.MaxActive <= 0 {
		c.MaxActive = 50
	}
}

// Scanner runs the configured strategies in order on every tick, admits the
// surviving candidates into its active set and hands them to the risk
// pipeline through Candidates. Lifecycle updates flow back in through
// Transition.
type Scanner struct {
	cfg        Config
	strategies []strategy.Strategy
	view       strategy.MarketView
	emit       func(domain.Event)
	log        *slog.Logger
	now        func() time.Time

	out chan domain.Opportunity

	mu       sync.Mutex
	active   map[string]*domain.Opportunity // by opportunity ID
	byPrint  map[string]string              // fingerprint -> opportunity ID
	paused   bool
	resumeAt time.Time
}

// New builds a scanner. Strategies run in the given order each tick.
func New(cfg Config, strategies []strategy.Strategy, view strategy.MarketView, emit func(domain.Event), log *slog.Logger) *Scanner {
	cfg.setDefaults()
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Scanner{
		cfg:        cfg,
		strategies: strategies,
		view:       view,
		emit:       emit,
		log:        log.With("component", "scanner"),
		now:        time.Now,
		out:        make(chan domain.Opportunity, cfg.MaxActive),
		active:     make(map[string]*domain.Opportunity),
		byPrint:    make(map[string]string),
	}
}

// Candidates delivers newly admitted opportunities, still in detected
// status. The channel is buffered to the active-set cap; a full buffer
// drops the candidate rather than stalling the scan loop.
func (s *Scanner) Candidates() <-chan domain.Opportunity { return s.out }

// Run ticks until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	scan := time.NewTicker(s.cfg.Interval)
	defer scan.Stop()
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()

	s.log.Info("scanner started",
		"strategies", len(s.strategies),
		"interval", s.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-scan.C:
			s.scanOnce(s.now())
		case <-sweep.C:
			s.sweep(s.now())
		}
	}
}

// Stop clears the live opportunity set and its dedup index. Run calls it on
// exit so a restarted pipeline never acts on opportunities priced before
// the stop.
func (s *Scanner) Stop() {
	s.mu.Lock()
	n := len(s.active)
	s.active = make(map[string]*domain.Opportunity)
	s.byPrint = make(map[string]string)
	s.mu.Unlock()
	if n > 0 {
		s.log.Info("scanner stopped, active set cleared", "dropped", n)
	}
}

// Pause suspends scanning for d. Sweeping continues, so live opportunities
// still expire on schedule.
func (s *Scanner) Pause(d time.Duration, reason string) {
	s.mu.Lock()
	s.paused = true
	s.resumeAt = s.now().Add(d)
	s.mu.Unlock()
	s.log.Warn("scanning paused", "for", d.String(), "reason", reason)
}

// Resume lifts a pause before its deadline.
func (s *Scanner) Resume() {
	s.mu.Lock()
	s.paused = false
	s.resumeAt = time.Time{}
	s.mu.Unlock()
	s.log.Info("scanning resumed")
}

// Transition applies a lifecycle change reported by the pipeline. Terminal
// statuses remove the opportunity from the active set.
func (s *Scanner) Transition(id string, to domain.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.active[id]
	if !ok {
		return fmt.Errorf("scanner: opportunity %s: %w", id, domain.ErrNotFound)
	}
	if !domain.ValidTransition(op.Status, to) {
		return fmt.Errorf("scanner: opportunity %s: invalid transition %s -> %s", id, op.Status, to)
	}
	op.Status = to
	if to.Terminal() {
		s.drop(op)
	}
	return nil
}

// Active returns a snapshot of the live set sorted by projected profit,
// best first.
func (s *Scanner) Active() []domain.Opportunity {
	s.mu.Lock()
	out := make([]domain.Opportunity, 0, len(s.active))
	for _, op := range s.active {
		out = append(out, *op)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProjectedProfitQuote.GreaterThan(out[j].ProjectedProfitQuote)
	})
	return out
}

// ActiveCount returns the live set size.
func (s *Scanner) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scanner) scanOnce(now time.Time) {
	s.mu.Lock()
	if s.paused {
		if now.Before(s.resumeAt) {
			s.mu.Unlock()
			return
		}
		s.paused = false
		s.resumeAt = time.Time{}
		s.mu.Unlock()
		s.log.Info("scanning resumed after cooldown")
	} else {
		s.mu.Unlock()
	}

	for _, st := range s.strategies {
		for _, op := range st.Synthesize(s.view, now) {
			s.admit(op, now)
		}
	}
}

// admit runs the dedup and capacity rules for one candidate and, when it
// enters the active set, publishes it.
func (s *Scanner) admit(op domain.Opportunity, now time.Time) {
	fp := op.Fingerprint()

	s.mu.Lock()
	if id, ok := s.byPrint[fp]; ok {
		cur := s.active[id]
		// A live duplicate already in the pipeline keeps its slot; a
		// still-detected one is replaced only by a better price.
		if cur.Status != domain.OpportunityStatusDetected ||
			!op.ProjectedProfitQuote.GreaterThan(cur.ProjectedProfitQuote) {
			s.mu.Unlock()
			return
		}
		s.drop(cur)
	} else if len(s.active) >= s.cfg.MaxActive {
		victim := s.worstDetected()
		if victim == nil || victim.ProjectedProfitQuote.GreaterThanOrEqual(op.ProjectedProfitQuote) {
			s.mu.Unlock()
			s.log.Debug("active set full, candidate dropped",
				"strategy", op.Strategy, "net", op.ProjectedProfitQuote.String())
			return
		}
		s.drop(victim)
	}
	stored := op
	s.active[stored.ID] = &stored
	s.byPrint[fp] = stored.ID
	s.mu.Unlock()

	s.emit(domain.NewEvent(domain.EventOpportunityDetected, domain.OpportunityEvent{Opportunity: op}))
	select {
	case s.out <- op:
	default:
		s.log.Warn("candidate channel full, opportunity not forwarded",
			"id", op.ID, "strategy", op.Strategy)
	}
}

// worstDetected returns the lowest-profit opportunity still in detected
// status, or nil when everything live is already past the gate.
func (s *Scanner) worstDetected() *domain.Opportunity {
	var worst *domain.Opportunity
	for _, op := range s.active {
		if op.Status != domain.OpportunityStatusDetected {
			continue
		}
		if worst == nil || op.ProjectedProfitQuote.LessThan(worst.ProjectedProfitQuote) {
			worst = op
		}
	}
	return worst
}

// drop removes op from both indexes. Caller holds s.mu.
func (s *Scanner) drop(op *domain.Opportunity) {
	delete(s.active, op.ID)
	if id, ok := s.byPrint[op.Fingerprint()]; ok && id == op.ID {
		delete(s.byPrint, op.Fingerprint())
	}
}

// sweep expires detected and approved opportunities past their deadline.
// Executing ones are the coordinator's to finish.
func (s *Scanner) sweep(now time.Time) {
	var expired []domain.Opportunity

	s.mu.Lock()
	for _, op := range s.active {
		if !op.Expired(now) {
			continue
		}
		if op.Status != domain.OpportunityStatusDetected && op.Status != domain.OpportunityStatusApproved {
			continue
		}
		op.Status = domain.OpportunityStatusExpired
		expired = append(expired, *op)
	}
	for i := range expired {
		s.drop(&expired[i])
	}
	s.mu.Unlock()

	for _, op := range expired {
		s.emit(domain.NewEvent(domain.EventOpportunityExpired, domain.OpportunityEvent{Opportunity: op}))
	}
	if len(expired) > 0 {
		s.log.Debug("expired opportunities swept", "count", len(expired))
	}
}
