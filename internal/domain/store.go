package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStore persists detected opportunities and their lifecycle.
type OpportunityStore interface {
	Insert(ctx context.Context, op Opportunity) error
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	Insert(ctx context.Context, exec Execution) error
	Update(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	ListBefore(ctx context.Context, before time.Time) ([]Execution, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists the individual orders placed during executions.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	Update(ctx context.Context, trade Trade) error
	ListByExecution(ctx context.Context, executionID string) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BalanceStore persists the last reconciled balances per venue and asset.
type BalanceStore interface {
	Upsert(ctx context.Context, b Balance) error
	UpsertBatch(ctx context.Context, bs []Balance) error
	List(ctx context.Context) ([]Balance, error)
}

// PerfStore persists periodic performance snapshots.
type PerfStore interface {
	InsertSnapshot(ctx context.Context, snap PerfSnapshot) error
	LatestSnapshot(ctx context.Context) (PerfSnapshot, error)
}

// RiskEvent is one persisted risk rejection, limit trip or circuit change.
type RiskEvent struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunityId,omitempty"`
	Venue         string          `json:"venue,omitempty"`
	Limit         string          `json:"limit"`
	Value         decimal.Decimal `json:"value"`
	Bound         decimal.Decimal `json:"bound"`
	Reason        string          `json:"reason"`
	Fatal         bool            `json:"fatal"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// RiskEventStore persists risk events for the monitoring schema.
type RiskEventStore interface {
	Insert(ctx context.Context, ev RiskEvent) error
	ListRecent(ctx context.Context, limit int) ([]RiskEvent, error)
}

// MarketEvent is one persisted market anomaly (price alert or volume
// spike), kept for analytics.
type MarketEvent struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	Venue     string          `json:"venue"`
	Symbol    Symbol          `json:"symbol"`
	Previous  decimal.Decimal `json:"previous"`
	Current   decimal.Decimal `json:"current"`
	Magnitude decimal.Decimal `json:"magnitude"`
	CreatedAt time.Time       `json:"createdAt"`
}

// MarketEventStore persists market anomalies.
type MarketEventStore interface {
	Insert(ctx context.Context, ev MarketEvent) error
	ListRecent(ctx context.Context, limit int) ([]MarketEvent, error)
}

// AuditEntry is one append-only audit record. Detail is serialized to JSON
// by the store.
type AuditEntry struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Actor     string         `json:"actor"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore records audit entries and supports pruning after archival.
type AuditStore interface {
	Record(ctx context.Context, e AuditEntry) error
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
