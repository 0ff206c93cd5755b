package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// PerfStore implements domain.PerfStore. Snapshots are append-only JSONB
// rows; the shape can evolve without schema churn.
type PerfStore struct {
	pool *pgxpool.Pool
}

var _ domain.PerfStore = (*PerfStore)(nil)

// NewPerfStore creates a store backed by the given pool.
func NewPerfStore(pool *pgxpool.Pool) *PerfStore {
	return &PerfStore{pool: pool}
}

// InsertSnapshot appends one performance snapshot.
func (s *PerfStore) InsertSnapshot(ctx context.Context, snap domain.PerfSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal perf snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO monitoring.perf_snapshots (snapshot, generated_at) VALUES ($1, $2)`,
		payload, snap.GeneratedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert perf snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently generated snapshot.
func (s *PerfStore) LatestSnapshot(ctx context.Context) (domain.PerfSnapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM monitoring.perf_snapshots ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PerfSnapshot{}, fmt.Errorf("postgres: perf snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.PerfSnapshot{}, fmt.Errorf("postgres: latest perf snapshot: %w", err)
	}
	var snap domain.PerfSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.PerfSnapshot{}, fmt.Errorf("postgres: unmarshal perf snapshot: %w", err)
	}
	return snap, nil
}
