package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// BalanceStore implements domain.BalanceStore, keyed by (venue, asset).
type BalanceStore struct {
	pool *pgxpool.Pool
}

var _ domain.BalanceStore = (*BalanceStore)(nil)

// NewBalanceStore creates a store backed by the given pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

const balanceUpsert = `
	INSERT INTO trading.balances (venue, asset, free, locked, quote_value, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (venue, asset) DO UPDATE SET
		free        = EXCLUDED.free,
		locked      = EXCLUDED.locked,
		quote_value = EXCLUDED.quote_value,
		updated_at  = EXCLUDED.updated_at`

// Upsert writes one reconciled balance.
func (s *BalanceStore) Upsert(ctx context.Context, b domain.Balance) error {
	_, err := s.pool.Exec(ctx, balanceUpsert,
		b.Venue, b.Asset, b.Free, b.Locked, b.QuoteValue, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert balance %s/%s: %w", b.Venue, b.Asset, err)
	}
	return nil
}

// UpsertBatch writes a reconciliation batch in one round trip.
func (s *BalanceStore) UpsertBatch(ctx context.Context, bs []domain.Balance) error {
	if len(bs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range bs {
		batch.Queue(balanceUpsert, b.Venue, b.Asset, b.Free, b.Locked, b.QuoteValue, b.UpdatedAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range bs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert balance batch: %w", err)
		}
	}
	return nil
}

// List returns every stored balance ordered by venue and asset.
func (s *BalanceStore) List(ctx context.Context) ([]domain.Balance, error) {
	const query = `
		SELECT venue, asset, free, locked, quote_value, updated_at
		FROM trading.balances ORDER BY venue, asset`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.Venue, &b.Asset, &b.Free, &b.Locked, &b.QuoteValue, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances rows: %w", err)
	}
	return out, nil
}
