package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore. Trades live in their
// own table; see TradeStore.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates a store backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionCols = `id, opportunity_id, kind, strategy, status,
	realized_profit, total_fees, volume_quote, compensated, errors,
	started_at, completed_at`

// Insert stores a freshly started execution.
func (s *ExecutionStore) Insert(ctx context.Context, exec domain.Execution) error {
	const query = `
		INSERT INTO trading.executions (` + executionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, query,
		exec.ID, exec.OpportunityID, string(exec.Kind), exec.Strategy, string(exec.Status),
		exec.RealizedProfit, exec.TotalFees, exec.VolumeQuote, exec.Compensated,
		exec.Errors, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields after legs settle or fail.
func (s *ExecutionStore) Update(ctx context.Context, exec domain.Execution) error {
	const query = `
		UPDATE trading.executions SET
			status          = $2,
			realized_profit = $3,
			total_fees      = $4,
			volume_quote    = $5,
			compensated     = $6,
			errors          = $7,
			completed_at    = $8
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		exec.ID, string(exec.Status), exec.RealizedProfit, exec.TotalFees,
		exec.VolumeQuote, exec.Compensated, exec.Errors, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution %s: %w", exec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: execution %s: %w", exec.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one execution with its trades attached.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	query := `SELECT ` + executionCols + ` FROM trading.executions WHERE id = $1`

	var exec domain.Execution
	var kind, status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&exec.ID, &exec.OpportunityID, &kind, &exec.Strategy, &status,
		&exec.RealizedProfit, &exec.TotalFees, &exec.VolumeQuote, &exec.Compensated,
		&exec.Errors, &exec.StartedAt, &exec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Execution{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	exec.Kind = domain.OpportunityKind(kind)
	exec.Status = domain.ExecutionStatus(status)

	trades, err := NewTradeStore(s.pool).ListByExecution(ctx, id)
	if err != nil {
		return domain.Execution{}, err
	}
	exec.Trades = trades
	return exec, nil
}

// ListRecent returns the newest executions, newest first, without trades.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := `SELECT ` + executionCols + ` FROM trading.executions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListBefore returns executions started before the cutoff, for archival.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	query := `SELECT ` + executionCols + ` FROM trading.executions
		WHERE started_at < $1 ORDER BY started_at`
	return s.list(ctx, query, before)
}

// DeleteBefore prunes executions started before the cutoff.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trading.executions WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *ExecutionStore) list(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		var exec domain.Execution
		var kind, status string
		if err := rows.Scan(
			&exec.ID, &exec.OpportunityID, &kind, &exec.Strategy, &status,
			&exec.RealizedProfit, &exec.TotalFees, &exec.VolumeQuote, &exec.Compensated,
			&exec.Errors, &exec.StartedAt, &exec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		exec.Kind = domain.OpportunityKind(kind)
		exec.Status = domain.ExecutionStatus(status)
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	return execs, nil
}
