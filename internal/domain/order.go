package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side that unwinds this one.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderRequest is the venue-agnostic order an adapter places. Amount is in
// base asset; Price is ignored for market orders. ClientOrderID is supplied
// by the caller and must be stable across retries so venues can deduplicate.
type OrderRequest struct {
	ClientOrderID string
	Symbol        Symbol
	Side          OrderSide
	Type          OrderType
	Amount        decimal.Decimal
	Price         decimal.Decimal
}

// OrderState is an adapter's report of a live or finished order.
type OrderState struct {
	ExternalID    string
	ClientOrderID string
	Status        TradeStatus
	FilledAmount  decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Fee           decimal.Decimal
	UpdatedAt     time.Time
}

// Terminal reports whether the order will see no further fills.
func (s OrderState) Terminal() bool {
	switch s.Status {
	case TradeStatusFilled, TradeStatusCancelled, TradeStatusRejected:
		return true
	}
	return false
}
