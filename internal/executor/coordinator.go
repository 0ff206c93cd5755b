// Package executor turns approved opportunities into venue orders. A small
// worker pool runs each opportunity's legs sequentially, polices per-leg
// deadlines and unwinds filled legs when a later one fails.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// Config tunes the coordinator.
type Config struct {
	// MaxConcurrent is the worker pool size.
	MaxConcurrent int
	// QueueSize bounds the admission queue; submissions past it are
	// rejected as backpressure.
	QueueSize int
	// LegTimeout is the per-leg fill deadline when the leg itself does
	// not carry one.
	LegTimeout time.Duration
	// PollInterval is the order status polling cadence.
	PollInterval time.Duration
	// EnablePartialFills rescales later legs to a partial fill instead
	// of failing the execution.
	EnablePartialFills bool
	// DrainGrace bounds how long shutdown waits for in-flight
	// executions.
	DrainGrace time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.LegTimeout <= 0 {
		c.LegTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 30 * time.Second
	}
}

// VenueAccess resolves venue adapters by ID. *venue.Set satisfies it.
type VenueAccess interface {
	Get(id string) (venue.Adapter, bool)
}

// Coordinator owns the execution queue and worker pool. Results flow out
// through Results; the supervisor closes the loop back into the scanner,
// the portfolio and the performance tracker.
type Coordinator struct {
	cfg     Config
	venues  VenueAccess
	emit    func(domain.Event)
	log     *slog.Logger
	now     func() time.Time
	placed  *placedOrders
	outcome func(venueID string, err error) // venue API outcome hook, feeds the breaker

	queue   chan domain.Opportunity
	results chan domain.Execution
	stopped atomic.Bool

	mu   sync.Mutex
	live map[string]domain.Execution // by execution ID
}

// New builds a coordinator. outcome may be nil; when set it receives every
// venue API result so the risk layer can track failures.
func New(cfg Config, venues VenueAccess, emit func(domain.Event), outcome func(string, error), log *slog.Logger) *Coordinator {
	cfg.setDefaults()
	if emit == nil {
		emit = func(domain.Event) {}
	}
	if outcome == nil {
		outcome = func(string, error) {}
	}
	return &Coordinator{
		cfg:     cfg,
		venues:  venues,
		emit:    emit,
		log:     log.With("component", "executor"),
		now:     time.Now,
		placed:  newPlacedOrders(time.Hour),
		outcome: outcome,
		queue:   make(chan domain.Opportunity, cfg.QueueSize),
		results: make(chan domain.Execution, cfg.MaxConcurrent*2),
		live:    make(map[string]domain.Execution),
	}
}

// Results delivers every finished execution exactly once.
func (c *Coordinator) Results() <-chan domain.Execution { return c.results }

// Submit queues an approved opportunity. It never blocks: a full queue is a
// backpressure rejection and an emergency-stopped coordinator refuses
// outright.
func (c *Coordinator) Submit(op domain.Opportunity) error {
	if c.stopped.Load() {
		return fmt.Errorf("executor: submit %s: %w", op.ID, domain.ErrEmergencyStopped)
	}
	select {
	case c.queue <- op:
		return nil
	default:
		return fmt.Errorf("executor: submit %s: backpressure: %w", op.ID, domain.ErrQueueFull)
	}
}

// EmergencyStop refuses new submissions and makes in-flight executions stop
// at their next leg boundary.
func (c *Coordinator) EmergencyStop() {
	c.stopped.Store(true)
}

// Run consumes the queue with the worker pool until ctx is done, then
// drains in-flight work within the grace period.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("executor started",
		"workers", c.cfg.MaxConcurrent,
		"queue", c.cfg.QueueSize)

	// Executions in flight when ctx ends keep running on the work context
	// through the drain grace, so a placed leg can finish or unwind
	// instead of being cut off mid-order.
	work, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hardCancel()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, work)
		}()
	}

	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(c.cfg.DrainGrace):
				c.log.Warn("drain grace expired with executions in flight")
			}
			return ctx.Err()
		case <-sweep.C:
			c.placed.sweep()
		}
	}
}

// worker pulls from the queue until ctx ends; the execution itself runs on
// work, which Run only hard-cancels after the drain grace.
func (c *Coordinator) worker(ctx, work context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-c.queue:
			if c.stopped.Load() {
				c.log.Warn("opportunity dropped by emergency stop", "id", op.ID)
				continue
			}
			c.execute(work, op)
		}
	}
}

// Execute runs one opportunity synchronously, bypassing the queue. Used by
// the workers and directly testable.
func (c *Coordinator) execute(ctx context.Context, op domain.Opportunity) {
	exec := &domain.Execution{
		ID:            uuid.New().String(),
		OpportunityID: op.ID,
		Kind:          op.Kind,
		Strategy:      op.Strategy,
		Status:        domain.ExecutionStatusExecuting,
		VolumeQuote:   op.VolumeQuote,
		StartedAt:     c.now(),
	}
	c.track(exec)
	c.emit(domain.NewEvent(domain.EventExecutionStarted, domain.ExecutionEvent{Execution: *exec}))
	c.log.Info("execution started",
		"execution", exec.ID, "opportunity", op.ID, "strategy", op.Strategy, "legs", len(op.Legs))

	// Legs run in step order; each later leg is scaled to what actually
	// filled upstream.
	scale := decimal.NewFromInt(1)
	failed := false
	for _, leg := range op.Legs {
		if c.stopped.Load() {
			exec.Errors = append(exec.Errors, "emergency stop")
			c.finish(ctx, exec, domain.ExecutionStatusCancelled, domain.EventExecutionFailed)
			return
		}

		amount := leg.Amount.Mul(scale)
		trade, err := c.runLeg(ctx, exec, leg, amount)
		exec.Trades = append(exec.Trades, trade)
		c.track(exec)
		if err != nil {
			exec.Errors = append(exec.Errors, fmt.Sprintf("step %d: %v", leg.Step, err))
			failed = true
			break
		}
		if trade.FilledAmount.LessThan(amount) {
			if !c.cfg.EnablePartialFills || !trade.Filled() {
				exec.Errors = append(exec.Errors,
					fmt.Sprintf("step %d: filled %s of %s", leg.Step, trade.FilledAmount, amount))
				failed = true
				break
			}
			scale = scale.Mul(trade.FilledAmount.Div(amount))
			c.log.Warn("partial fill, rescaling later legs",
				"execution", exec.ID, "step", leg.Step,
				"filled", trade.FilledAmount.String(), "requested", amount.String())
		}
	}

	if failed {
		// Unwinding runs detached from the caller's context, bounded by
		// the drain grace, so it still happens when the caller is the
		// thing that was cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DrainGrace)
		c.recover(rctx, exec)
		cancel()
		c.finish(ctx, exec, domain.ExecutionStatusFailed, domain.EventExecutionFailed)
		return
	}

	c.settle(exec)
	c.finish(ctx, exec, domain.ExecutionStatusCompleted, domain.EventExecutionCompleted)
}

// runLeg places (or re-attaches to) the leg's order and polls it to a
// terminal state within the leg deadline. A deadline overrun cancels the
// order venue-side and fails the leg, unless the cancel raced a full fill.
func (c *Coordinator) runLeg(ctx context.Context, exec *domain.Execution, leg domain.Leg, amount decimal.Decimal) (domain.Trade, error) {
	ordType := domain.OrderTypeLimit
	if leg.Market {
		ordType = domain.OrderTypeMarket
	}
	trade := domain.Trade{
		ID:              uuid.New().String(),
		ExecutionID:     exec.ID,
		Step:            leg.Step,
		Venue:           leg.Venue,
		Symbol:          leg.Symbol,
		Side:            leg.Side,
		Type:            ordType,
		RequestedAmount: amount,
		RequestedPrice:  leg.ReferencePrice,
		ClientOrderID:   clientOrderID(exec.ID, leg.Step),
		Status:          domain.TradeStatusPending,
		CreatedAt:       c.now(),
	}

	ad, ok := c.venues.Get(leg.Venue)
	if !ok {
		trade.Status = domain.TradeStatusRejected
		return trade, fmt.Errorf("executor: venue %s: %w", leg.Venue, domain.ErrNotFound)
	}

	var state domain.OrderState
	var err error
	if ext, seen := c.placed.lookup(trade.ClientOrderID); seen {
		// Already submitted once: poll the existing order rather than
		// risking a double placement.
		state, err = ad.FetchOrder(ctx, ext, leg.Symbol)
	} else {
		req := domain.OrderRequest{
			ClientOrderID: trade.ClientOrderID,
			Symbol:        leg.Symbol,
			Side:          leg.Side,
			Type:          ordType,
			Amount:        amount,
		}
		// Market legs take whatever the book gives; the reference price
		// only travels with limit legs.
		if !leg.Market {
			req.Price = leg.ReferencePrice
		}
		state, err = ad.PlaceOrder(ctx, req)
		if err == nil {
			c.placed.remember(trade.ClientOrderID, state.ExternalID)
		}
	}
	c.outcome(leg.Venue, err)
	if err != nil {
		trade.Status = domain.TradeStatusRejected
		return trade, fmt.Errorf("executor: place %s on %s: %w", leg.Symbol, leg.Venue, err)
	}
	trade.ExternalOrderID = state.ExternalID

	timeout := leg.MaxLatency
	if timeout <= 0 {
		timeout = c.cfg.LegTimeout
	}
	deadline := c.now().Add(timeout)

	for !state.Terminal() {
		if c.now().After(deadline) {
			cancelErr := ad.CancelOrder(ctx, state.ExternalID, leg.Symbol)
			c.outcome(leg.Venue, cancelErr)
			if final, ferr := ad.FetchOrder(ctx, state.ExternalID, leg.Symbol); ferr == nil {
				state = final
			}
			c.applyState(&trade, state)
			c.log.Warn("leg deadline exceeded, order cancelled",
				"execution", exec.ID, "step", leg.Step, "venue", leg.Venue,
				"filled", trade.FilledAmount.String())
			// The cancel can race a fill; a fully filled order is a win,
			// anything less fails the leg with the timeout as cause.
			if trade.Status == domain.TradeStatusFilled {
				return trade, nil
			}
			trade.Status = domain.TradeStatusCancelled
			return trade, fmt.Errorf("executor: %s: leg timeout after %s: %w",
				leg.Venue, timeout, context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			cancelErr := ad.CancelOrder(ctx, state.ExternalID, leg.Symbol)
			c.outcome(leg.Venue, cancelErr)
			c.applyState(&trade, state)
			trade.Status = domain.TradeStatusCancelled
			return trade, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
		next, ferr := ad.FetchOrder(ctx, state.ExternalID, leg.Symbol)
		c.outcome(leg.Venue, ferr)
		if ferr != nil {
			if domain.IsRetryable(ferr) {
				continue
			}
			c.applyState(&trade, state)
			return trade, fmt.Errorf("executor: poll %s on %s: %w", state.ExternalID, leg.Venue, ferr)
		}
		state = next
	}

	c.applyState(&trade, state)
	return trade, nil
}

func (c *Coordinator) applyState(trade *domain.Trade, state domain.OrderState) {
	trade.FilledAmount = state.FilledAmount
	trade.AvgFillPrice = state.AvgFillPrice
	trade.Fee = state.Fee
	if state.Status != "" {
		trade.Status = state.Status
	}
	if state.Status == domain.TradeStatusFilled {
		at := c.now()
		trade.FilledAt = &at
	}
}

// recover unwinds the filled legs of a failed execution with best-effort
// opposite-side market orders, capped at each leg's filled amount.
func (c *Coordinator) recover(ctx context.Context, exec *domain.Execution) {
	for i := len(exec.Trades) - 1; i >= 0; i-- {
		t := exec.Trades[i]
		if !t.Filled() || t.Compensation {
			continue
		}
		comp := domain.Trade{
			ID:              uuid.New().String(),
			ExecutionID:     exec.ID,
			Step:            t.Step,
			Venue:           t.Venue,
			Symbol:          t.Symbol,
			Side:            t.Side.Opposite(),
			Type:            domain.OrderTypeMarket,
			RequestedAmount: t.FilledAmount,
			ClientOrderID:   compensationOrderID(exec.ID, t.Step),
			Status:          domain.TradeStatusPending,
			Compensation:    true,
			CreatedAt:       c.now(),
		}

		ad, ok := c.venues.Get(t.Venue)
		if !ok {
			comp.Status = domain.TradeStatusRejected
			exec.Errors = append(exec.Errors, fmt.Sprintf("recover step %d: venue %s gone", t.Step, t.Venue))
			exec.Trades = append(exec.Trades, comp)
			continue
		}
		state, err := ad.PlaceOrder(ctx, domain.OrderRequest{
			ClientOrderID: comp.ClientOrderID,
			Symbol:        comp.Symbol,
			Side:          comp.Side,
			Type:          domain.OrderTypeMarket,
			Amount:        comp.RequestedAmount,
		})
		c.outcome(t.Venue, err)
		if err != nil {
			comp.Status = domain.TradeStatusRejected
			exec.Errors = append(exec.Errors, fmt.Sprintf("recover step %d: %v", t.Step, err))
			exec.Trades = append(exec.Trades, comp)
			continue
		}
		comp.ExternalOrderID = state.ExternalID
		c.applyState(&comp, state)
		exec.Trades = append(exec.Trades, comp)
		exec.Compensated = true
		c.log.Warn("compensation order placed",
			"execution", exec.ID, "step", t.Step, "venue", t.Venue,
			"side", comp.Side, "amount", comp.RequestedAmount.String())
	}
}

// settle computes the realized result across every trade, compensations
// included: sell proceeds minus buy costs minus fees.
func (c *Coordinator) settle(exec *domain.Execution) {
	profit := decimal.Zero
	fees := decimal.Zero
	for _, t := range exec.Trades {
		if t.Side == domain.OrderSideSell {
			profit = profit.Add(t.FilledNotional())
		} else {
			profit = profit.Sub(t.FilledNotional())
		}
		fees = fees.Add(t.Fee)
	}
	exec.RealizedProfit = profit.Sub(fees)
	exec.TotalFees = fees
}

func (c *Coordinator) finish(ctx context.Context, exec *domain.Execution, status domain.ExecutionStatus, kind domain.EventKind) {
	if status != domain.ExecutionStatusCompleted {
		c.settle(exec)
	}
	exec.Status = status
	at := c.now()
	exec.CompletedAt = &at

	c.mu.Lock()
	delete(c.live, exec.ID)
	c.mu.Unlock()

	c.emit(domain.NewEvent(kind, domain.ExecutionEvent{Execution: *exec}))
	c.log.Info("execution finished",
		"execution", exec.ID, "status", string(status),
		"profit", exec.RealizedProfit.String(), "fees", exec.TotalFees.String(),
		"trades", len(exec.Trades))

	select {
	case c.results <- *exec:
	case <-ctx.Done():
	}
}

// track stores a snapshot of the execution for the status API. Workers
// refresh it at leg boundaries.
func (c *Coordinator) track(exec *domain.Execution) {
	c.mu.Lock()
	c.live[exec.ID] = *exec
	c.mu.Unlock()
}

// Queued returns the current admission queue depth.
func (c *Coordinator) Queued() int { return len(c.queue) }

// Live returns a snapshot of in-flight executions, oldest first.
func (c *Coordinator) Live() []domain.Execution {
	c.mu.Lock()
	out := make([]domain.Execution, 0, len(c.live))
	for _, e := range c.live {
		out = append(out, e)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
