package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// RiskEventStore implements domain.RiskEventStore.
type RiskEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.RiskEventStore = (*RiskEventStore)(nil)

// NewRiskEventStore creates a store backed by the given pool.
func NewRiskEventStore(pool *pgxpool.Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

// Insert stores one risk event.
func (s *RiskEventStore) Insert(ctx context.Context, ev domain.RiskEvent) error {
	const query = `
		INSERT INTO monitoring.risk_events (
			id, opportunity_id, venue, limit_name, value, bound, reason, fatal, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.OpportunityID, ev.Venue, ev.Limit, ev.Value, ev.Bound,
		ev.Reason, ev.Fatal, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk event %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns the newest risk events, newest first.
func (s *RiskEventStore) ListRecent(ctx context.Context, limit int) ([]domain.RiskEvent, error) {
	query := `
		SELECT id, opportunity_id, venue, limit_name, value, bound, reason, fatal, created_at
		FROM monitoring.risk_events ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk events: %w", err)
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		var ev domain.RiskEvent
		if err := rows.Scan(
			&ev.ID, &ev.OpportunityID, &ev.Venue, &ev.Limit, &ev.Value, &ev.Bound,
			&ev.Reason, &ev.Fatal, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan risk event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list risk events rows: %w", err)
	}
	return events, nil
}
