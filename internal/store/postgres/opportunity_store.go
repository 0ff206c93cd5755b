package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore. Legs and risk
// factors are stored as JSONB.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a store backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, kind, strategy, legs, projected_profit_quote,
	projected_profit_pct, volume_quote, confidence, risks, status,
	created_at, expires_at`

// Insert stores a newly detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, op domain.Opportunity) error {
	legs, err := json.Marshal(op.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs for %s: %w", op.ID, err)
	}
	var risks []byte
	if len(op.Risks) > 0 {
		if risks, err = json.Marshal(op.Risks); err != nil {
			return fmt.Errorf("postgres: marshal risks for %s: %w", op.ID, err)
		}
	}

	const query = `
		INSERT INTO trading.opportunities (` + opportunityCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.pool.Exec(ctx, query,
		op.ID, string(op.Kind), op.Strategy, legs,
		op.ProjectedProfitQuote, op.ProjectedProfitPct, op.VolumeQuote,
		op.Confidence, risks, string(op.Status), op.CreatedAt, op.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", op.ID, err)
	}
	return nil
}

// UpdateStatus records a lifecycle transition.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	const query = `UPDATE trading.opportunities SET status = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update opportunity %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the newest opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM trading.opportunities ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListBefore returns opportunities created before the cutoff, for archival.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM trading.opportunities
		WHERE created_at < $1 ORDER BY created_at`
	return s.list(ctx, query, before)
}

// DeleteBefore prunes opportunities created before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trading.opportunities WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var ops []domain.Opportunity
	for rows.Next() {
		var op domain.Opportunity
		var kind, status string
		var legs, risks []byte

		if err := rows.Scan(
			&op.ID, &kind, &op.Strategy, &legs,
			&op.ProjectedProfitQuote, &op.ProjectedProfitPct, &op.VolumeQuote,
			&op.Confidence, &risks, &status, &op.CreatedAt, &op.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		op.Kind = domain.OpportunityKind(kind)
		op.Status = domain.OpportunityStatus(status)
		if err := json.Unmarshal(legs, &op.Legs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal legs for %s: %w", op.ID, err)
		}
		if risks != nil {
			if err := json.Unmarshal(risks, &op.Risks); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal risks for %s: %w", op.ID, err)
			}
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return ops, nil
}
