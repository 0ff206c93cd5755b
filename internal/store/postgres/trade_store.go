package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a store backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `id, execution_id, step, venue, symbol, side, order_type,
	requested_amount, requested_price, filled_amount, avg_fill_price, fee,
	status, client_order_id, external_order_id, compensation, created_at,
	filled_at`

// Insert stores one placed order. Re-inserting the same trade refreshes
// its fill state, so retried persistence stays idempotent.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trading.trades (` + tradeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			filled_amount     = EXCLUDED.filled_amount,
			avg_fill_price    = EXCLUDED.avg_fill_price,
			fee               = EXCLUDED.fee,
			status            = EXCLUDED.status,
			external_order_id = EXCLUDED.external_order_id,
			filled_at         = EXCLUDED.filled_at`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ExecutionID, t.Step, t.Venue, t.Symbol.String(), string(t.Side), string(t.Type),
		t.RequestedAmount, t.RequestedPrice, t.FilledAmount, t.AvgFillPrice, t.Fee,
		string(t.Status), t.ClientOrderID, t.ExternalOrderID, t.Compensation, t.CreatedAt,
		t.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// Update refreshes fill state for an existing trade.
func (s *TradeStore) Update(ctx context.Context, t domain.Trade) error {
	const query = `
		UPDATE trading.trades SET
			filled_amount     = $2,
			avg_fill_price    = $3,
			fee               = $4,
			status            = $5,
			external_order_id = $6,
			filled_at         = $7
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		t.ID, t.FilledAmount, t.AvgFillPrice, t.Fee, string(t.Status),
		t.ExternalOrderID, t.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: trade %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByExecution returns an execution's trades in leg order.
func (s *TradeStore) ListByExecution(ctx context.Context, executionID string) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trading.trades
		WHERE execution_id = $1 ORDER BY step, created_at`
	return s.list(ctx, query, executionID)
}

// ListBefore returns trades created before the cutoff, for archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trading.trades
		WHERE created_at < $1 ORDER BY created_at`
	return s.list(ctx, query, before)
}

// DeleteBefore prunes trades created before the cutoff.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trading.trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *TradeStore) list(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var symbol, side, orderType, status string
		if err := rows.Scan(
			&t.ID, &t.ExecutionID, &t.Step, &t.Venue, &symbol, &side, &orderType,
			&t.RequestedAmount, &t.RequestedPrice, &t.FilledAmount, &t.AvgFillPrice, &t.Fee,
			&status, &t.ClientOrderID, &t.ExternalOrderID, &t.Compensation, &t.CreatedAt,
			&t.FilledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		sym, err := domain.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("postgres: trade %s: %w", t.ID, err)
		}
		t.Symbol = sym
		t.Side = domain.OrderSide(side)
		t.Type = domain.OrderType(orderType)
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}
