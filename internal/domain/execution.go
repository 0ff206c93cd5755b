package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusExecuting ExecutionStatus = "executing"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// TradeStatus is the venue-side state of a single order.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusOpen      TradeStatus = "open"
	TradeStatusPartial   TradeStatus = "partial"
	TradeStatusFilled    TradeStatus = "filled"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusRejected  TradeStatus = "rejected"
)

// Trade records one order placed while executing a leg, including
// compensation orders placed during recovery.
type Trade struct {
	ID              string          `json:"id"`
	ExecutionID     string          `json:"executionId"`
	Step            int             `json:"step"`
	Venue           string          `json:"venue"`
	Symbol          Symbol          `json:"symbol"`
	Side            OrderSide       `json:"side"`
	Type            OrderType       `json:"type"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	RequestedPrice  decimal.Decimal `json:"requestedPrice"`
	FilledAmount    decimal.Decimal `json:"filledAmount"`
	AvgFillPrice    decimal.Decimal `json:"avgFillPrice"`
	Fee             decimal.Decimal `json:"fee"`
	Status          TradeStatus     `json:"status"`
	ClientOrderID   string          `json:"clientOrderId"`
	ExternalOrderID string          `json:"externalOrderId,omitempty"`
	Compensation    bool            `json:"compensation"`
	CreatedAt       time.Time       `json:"createdAt"`
	FilledAt        *time.Time      `json:"filledAt,omitempty"`
}

// FilledNotional returns filled amount times average fill price.
func (t Trade) FilledNotional() decimal.Decimal {
	return t.FilledAmount.Mul(t.AvgFillPrice)
}

// Filled reports whether the order saw any fill at all.
func (t Trade) Filled() bool { return t.FilledAmount.IsPositive() }

// Execution tracks one attempt to realize an opportunity: the ordered
// trades, realized profit net of fees, and any errors hit along the way.
type Execution struct {
	ID             string          `json:"id"`
	OpportunityID  string          `json:"opportunityId"`
	Kind           OpportunityKind `json:"kind"`
	Strategy       string          `json:"strategy"`
	Status         ExecutionStatus `json:"status"`
	Trades         []Trade         `json:"trades"`
	RealizedProfit decimal.Decimal `json:"realizedProfit"`
	TotalFees      decimal.Decimal `json:"totalFees"`
	VolumeQuote    decimal.Decimal `json:"volumeQuote"`
	Compensated    bool            `json:"compensated"`
	Errors         []string        `json:"errors,omitempty"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Duration returns wall time from start to completion, or to now for an
// execution still in flight.
func (e Execution) Duration(now time.Time) time.Duration {
	end := now
	if e.CompletedAt != nil {
		end = *e.CompletedAt
	}
	return end.Sub(e.StartedAt)
}

// Position is residual inventory held after executions that do not close
// flat, e.g. the spot and perpetual legs of a basis trade, or inventory
// stranded by a failed compensation.
type Position struct {
	ID         string          `json:"id"`
	Venue      string          `json:"venue"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	QuoteValue decimal.Decimal `json:"quoteValue"`
	OpenedAt   time.Time       `json:"openedAt"`
}

// Age returns how long the position has been open at now.
func (p Position) Age(now time.Time) time.Duration { return now.Sub(p.OpenedAt) }
