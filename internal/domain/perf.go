package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerfSnapshot is a point-in-time view of trading performance, served by
// the dashboard and persisted for history. Daily keys are UTC dates in
// YYYY-MM-DD form.
type PerfSnapshot struct {
	TotalExecutions      int                        `json:"totalExecutions"`
	SuccessfulExecutions int                        `json:"successfulExecutions"`
	FailedExecutions     int                        `json:"failedExecutions"`
	SuccessRate          float64                    `json:"successRate"`
	TotalProfit          decimal.Decimal            `json:"totalProfit"`
	TotalFees            decimal.Decimal            `json:"totalFees"`
	TotalVolume          decimal.Decimal            `json:"totalVolume"`
	ProfitToday          decimal.Decimal            `json:"profitToday"`
	AvgProfit            decimal.Decimal            `json:"avgProfit"`
	DailyProfit          map[string]decimal.Decimal `json:"dailyProfit"`
	PeakProfit           decimal.Decimal            `json:"peakProfit"`
	MaxDrawdown          decimal.Decimal            `json:"maxDrawdown"`
	SharpeRatio          float64                    `json:"sharpeRatio"`
	AvgLatencyMs         float64                    `json:"avgLatencyMs"`
	MaxLatencyMs         float64                    `json:"maxLatencyMs"`
	ProfitByVenue        map[string]decimal.Decimal `json:"profitByVenue"`
	ProfitByPair         map[string]decimal.Decimal `json:"profitByPair"`
	ProfitByStrategy     map[string]decimal.Decimal `json:"profitByStrategy"`
	GeneratedAt          time.Time                  `json:"generatedAt"`
}
