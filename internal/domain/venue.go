// Package domain holds the core types shared across the arbitrage engine:
// venues, symbols, market snapshots, opportunities, executions and the
// persistence interfaces implemented by the storage adapters.
package domain

import "github.com/shopspring/decimal"

// VenueKind classifies what a venue trades and how its orders are
// authenticated.
type VenueKind string

const (
	VenueKindSpot      VenueKind = "spot"
	VenueKindPerpetual VenueKind = "perpetual"
	VenueKindDEX       VenueKind = "dex"
	VenueKindDemo      VenueKind = "demo"
)

// VenueHealth is the reachability state of a venue connection.
type VenueHealth string

const (
	VenueHealthActive   VenueHealth = "active"
	VenueHealthDegraded VenueHealth = "degraded"
	VenueHealthDown     VenueHealth = "down"
)

// FeeSchedule holds the trading and withdrawal fees a venue charges.
// Rates are fractions, not percentages: 0.001 means 10 bps.
type FeeSchedule struct {
	MakerRate    decimal.Decimal            `json:"makerRate"`
	TakerRate    decimal.Decimal            `json:"takerRate"`
	WithdrawFlat map[string]decimal.Decimal `json:"withdrawFlat,omitempty"`
}

// TradeLimits bounds order sizes and total exposure on a venue. Amounts are
// keyed by base asset and denominated in that asset; MaxPositionQuote caps
// the venue's total open notional in quote currency.
type TradeLimits struct {
	MinAmount        map[string]decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount        map[string]decimal.Decimal `json:"maxAmount,omitempty"`
	MaxPositionQuote decimal.Decimal            `json:"maxPositionQuote"`
}

// Venue describes a trading venue as the rest of the engine sees it.
// Connection health is tracked by the adapter layer, not here.
type Venue struct {
	ID       string      `json:"id"`
	Kind     VenueKind   `json:"kind"`
	Fees     FeeSchedule `json:"fees"`
	Limits   TradeLimits `json:"limits"`
	HighRisk bool        `json:"highRisk"`
}

// TakerFee returns the taker fee charged on the given notional.
func (v Venue) TakerFee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(v.Fees.TakerRate)
}

// MinOrderAmount returns the minimum base amount for the asset, or zero when
// the venue publishes no floor.
func (v Venue) MinOrderAmount(asset string) decimal.Decimal {
	if m, ok := v.Limits.MinAmount[asset]; ok {
		return m
	}
	return decimal.Zero
}

// MaxOrderAmount returns the maximum base amount for the asset, or zero when
// the venue publishes no cap.
func (v Venue) MaxOrderAmount(asset string) decimal.Decimal {
	if m, ok := v.Limits.MaxAmount[asset]; ok {
		return m
	}
	return decimal.Zero
}
