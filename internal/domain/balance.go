package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the holdings of one asset on one venue. Locked covers amounts
// reserved by resting orders. QuoteValue is the free+locked total converted
// to the reporting quote currency at the last reconciliation.
type Balance struct {
	Venue      string          `json:"venue"`
	Asset      string          `json:"asset"`
	Free       decimal.Decimal `json:"free"`
	Locked     decimal.Decimal `json:"locked"`
	QuoteValue decimal.Decimal `json:"quoteValue"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Total returns free plus locked.
func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Locked) }
