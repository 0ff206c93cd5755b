package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityKind names the arbitrage structure of an opportunity.
type OpportunityKind string

const (
	// OpportunityKindSimple buys a pair on one venue and sells it on another.
	OpportunityKindSimple OpportunityKind = "simple"
	// OpportunityKindTriangular trades a three-legged cycle on one venue.
	OpportunityKindTriangular OpportunityKind = "triangular"
	// OpportunityKindBasis pairs a spot position against a perpetual to
	// capture the funding rate.
	OpportunityKindBasis OpportunityKind = "basis"
)

// OpportunityStatus is the lifecycle state of an opportunity.
type OpportunityStatus string

const (
	OpportunityStatusDetected  OpportunityStatus = "detected"
	OpportunityStatusApproved  OpportunityStatus = "approved"
	OpportunityStatusExecuting OpportunityStatus = "executing"
	OpportunityStatusCompleted OpportunityStatus = "completed"
	OpportunityStatusFailed    OpportunityStatus = "failed"
	OpportunityStatusExpired   OpportunityStatus = "expired"
	OpportunityStatusRejected  OpportunityStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s OpportunityStatus) Terminal() bool {
	switch s {
	case OpportunityStatusCompleted, OpportunityStatusFailed,
		OpportunityStatusExpired, OpportunityStatusRejected:
		return true
	}
	return false
}

// ValidTransition reports whether from may move to to. Expiry and rejection
// only happen before approval; executions end in completed or failed.
func ValidTransition(from, to OpportunityStatus) bool {
	switch from {
	case OpportunityStatusDetected:
		switch to {
		case OpportunityStatusApproved, OpportunityStatusRejected, OpportunityStatusExpired:
			return true
		}
	case OpportunityStatusApproved:
		return to == OpportunityStatusExecuting
	case OpportunityStatusExecuting:
		return to == OpportunityStatusCompleted || to == OpportunityStatusFailed
	}
	return false
}

// RiskFactorKind classifies qualitative risk tags attached at detection.
type RiskFactorKind string

const (
	RiskFactorLiquidity RiskFactorKind = "liquidity"
	RiskFactorExchange  RiskFactorKind = "exchange"
	RiskFactorTiming    RiskFactorKind = "timing"
)

// RiskFactor is a qualitative warning a strategy attaches to an opportunity.
type RiskFactor struct {
	Kind     RiskFactorKind `json:"kind"`
	Severity string         `json:"severity"`
	Impact   string         `json:"impact"`
}

// Leg is one ordered step of an opportunity: an instruction to trade a
// given amount of a pair on a venue. ReferencePrice is the price observed
// at detection; limit legs are placed at it, market legs ignore it.
type Leg struct {
	Step           int             `json:"step"`
	Venue          string          `json:"venue"`
	Symbol         Symbol          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Amount         decimal.Decimal `json:"amount"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	FeeEstimate    decimal.Decimal `json:"feeEstimate"`
	Market         bool            `json:"market"`
	MaxLatency     time.Duration   `json:"maxLatency"`
}

// Notional returns amount times reference price, in the leg's quote asset.
func (l Leg) Notional() decimal.Decimal {
	return l.Amount.Mul(l.ReferencePrice)
}

// Opportunity is a priced arbitrage candidate produced by a strategy. Legs
// are ordered; profit figures are denominated in the start quote asset and
// net of estimated fees.
type Opportunity struct {
	ID                   string            `json:"id"`
	Kind                 OpportunityKind   `json:"kind"`
	Strategy             string            `json:"strategy"`
	Legs                 []Leg             `json:"legs"`
	ProjectedProfitQuote decimal.Decimal   `json:"projectedProfitQuote"`
	ProjectedProfitPct   decimal.Decimal   `json:"projectedProfitPct"`
	VolumeQuote          decimal.Decimal   `json:"volumeQuote"`
	Confidence           float64           `json:"confidence"`
	Risks                []RiskFactor      `json:"risks,omitempty"`
	Status               OpportunityStatus `json:"status"`
	CreatedAt            time.Time         `json:"createdAt"`
	ExpiresAt            time.Time         `json:"expiresAt"`
}

// Fingerprint identifies structurally equivalent opportunities for
// deduplication: same kind and the same ordered (venue, symbol, side)
// sequence across legs. Prices and amounts do not participate.
func (o Opportunity) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(o.Kind))
	for _, l := range o.Legs {
		b.WriteByte('|')
		b.WriteString(l.Venue)
		b.WriteByte(':')
		b.WriteString(l.Symbol.String())
		b.WriteByte(':')
		b.WriteString(string(l.Side))
	}
	return b.String()
}

// Expired reports whether the opportunity's TTL has lapsed at now.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// Venues returns the distinct venues touched by the legs, in leg order.
func (o Opportunity) Venues() []string {
	seen := make(map[string]bool, len(o.Legs))
	var out []string
	for _, l := range o.Legs {
		if !seen[l.Venue] {
			seen[l.Venue] = true
			out = append(out, l.Venue)
		}
	}
	return out
}

// TotalFeeEstimate sums the legs' fee estimates.
func (o Opportunity) TotalFeeEstimate() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Legs {
		total = total.Add(l.FeeEstimate)
	}
	return total
}
