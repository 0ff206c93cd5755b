package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// MarketEventStore implements domain.MarketEventStore.
type MarketEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketEventStore = (*MarketEventStore)(nil)

// NewMarketEventStore creates a store backed by the given pool.
func NewMarketEventStore(pool *pgxpool.Pool) *MarketEventStore {
	return &MarketEventStore{pool: pool}
}

// Insert stores one market anomaly.
func (s *MarketEventStore) Insert(ctx context.Context, ev domain.MarketEvent) error {
	const query = `
		INSERT INTO analytics.market_events (
			id, kind, venue, symbol, previous_value, current_value, magnitude, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, string(ev.Kind), ev.Venue, ev.Symbol.String(),
		ev.Previous, ev.Current, ev.Magnitude, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market event %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns the newest market anomalies, newest first.
func (s *MarketEventStore) ListRecent(ctx context.Context, limit int) ([]domain.MarketEvent, error) {
	query := `
		SELECT id, kind, venue, symbol, previous_value, current_value, magnitude, created_at
		FROM analytics.market_events ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market events: %w", err)
	}
	defer rows.Close()

	var events []domain.MarketEvent
	for rows.Next() {
		var ev domain.MarketEvent
		var kind, symbol string
		if err := rows.Scan(
			&ev.ID, &kind, &ev.Venue, &symbol,
			&ev.Previous, &ev.Current, &ev.Magnitude, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan market event: %w", err)
		}
		sym, err := domain.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("postgres: market event %s: %w", ev.ID, err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Symbol = sym
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list market events rows: %w", err)
	}
	return events, nil
}
