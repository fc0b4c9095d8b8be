package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// EngineOverlayStore implements domain.EngineOverlayStore on the
// engine_overlays table.
type EngineOverlayStore struct {
	pool *pgxpool.Pool
}

// NewEngineOverlayStore creates a store backed by pool.
func NewEngineOverlayStore(pool *pgxpool.Pool) *EngineOverlayStore {
	return &EngineOverlayStore{pool: pool}
}

// Get returns the overlay called name, or domain.ErrNotFound.
func (s *EngineOverlayStore) Get(ctx context.Context, name string) (domain.EngineOverlay, error) {
	const query = `SELECT name, params, enabled, updated_at FROM engine_overlays WHERE name = $1`

	o, err := scanOverlay(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EngineOverlay{}, domain.ErrNotFound
		}
		return domain.EngineOverlay{}, fmt.Errorf("postgres: get engine overlay %s: %w", name, err)
	}
	return o, nil
}

// Upsert inserts or replaces an overlay. Params is stored as JSONB.
func (s *EngineOverlayStore) Upsert(ctx context.Context, o domain.EngineOverlay) error {
	params, err := json.Marshal(o.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal engine overlay %s: %w", o.Name, err)
	}

	const query = `
		INSERT INTO engine_overlays (name, params, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET
			params     = EXCLUDED.params,
			enabled    = EXCLUDED.enabled,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, o.Name, params, o.Enabled); err != nil {
		return fmt.Errorf("postgres: upsert engine overlay %s: %w", o.Name, err)
	}
	return nil
}

// List returns every overlay ordered by name.
func (s *EngineOverlayStore) List(ctx context.Context) ([]domain.EngineOverlay, error) {
	const query = `SELECT name, params, enabled, updated_at FROM engine_overlays ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list engine overlays: %w", err)
	}
	defer rows.Close()

	var out []domain.EngineOverlay
	for rows.Next() {
		o, err := scanOverlay(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan engine overlay: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list engine overlays rows: %w", err)
	}
	return out, nil
}

func scanOverlay(row pgx.Row) (domain.EngineOverlay, error) {
	var o domain.EngineOverlay
	var params []byte
	if err := row.Scan(&o.Name, &params, &o.Enabled, &o.UpdatedAt); err != nil {
		return domain.EngineOverlay{}, err
	}
	if params != nil {
		if err := json.Unmarshal(params, &o.Params); err != nil {
			return domain.EngineOverlay{}, fmt.Errorf("unmarshal params of %s: %w", o.Name, err)
		}
	}
	return o, nil
}

var _ domain.EngineOverlayStore = (*EngineOverlayStore)(nil)
