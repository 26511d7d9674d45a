package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/worker"
)

// IngestionRepo implements worker.StatusStore and worker.ScopeLock: the
// single status row per (source_type, source_id) and the session-level
// Postgres advisory lock serializing concurrent re-ingests of that scope,
// per §4.9's concurrency note. Grounded on the donor's per-document
// processing guard, generalized from an in-memory mutex map to a
// cross-process advisory lock so multiple worker instances stay correct.
type IngestionRepo struct {
	pool *pgxpool.Pool
}

// NewIngestionRepo creates an IngestionRepo.
func NewIngestionRepo(pool *pgxpool.Pool) *IngestionRepo {
	return &IngestionRepo{pool: pool}
}

var (
	_ worker.StatusStore = (*IngestionRepo)(nil)
	_ worker.ScopeLock   = (*IngestionRepo)(nil)
)

// Lock acquires a session-level advisory lock keyed by the scope, held on a
// dedicated connection for the lifetime of the ingest. The returned unlock
// func releases the lock and returns the connection to the pool.
func (r *IngestionRepo) Lock(ctx context.Context, sourceType, sourceID string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.IngestionRepo.Lock: acquire connection: %w", err)
	}

	key := scopeLockKey(sourceType, sourceID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("repository.IngestionRepo.Lock: %w", err)
	}

	unlock := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}
	return unlock, nil
}

func scopeLockKey(sourceType, sourceID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sourceType + ":" + sourceID))
	return int64(h.Sum64())
}

// GetStatus returns the current status row for a scope, or nil if none
// exists yet (NOT_INDEXED).
func (r *IngestionRepo) GetStatus(ctx context.Context, sourceType, sourceID string) (*model.IngestionStatus, error) {
	var s model.IngestionStatus
	err := r.pool.QueryRow(ctx, `
		SELECT source_type, source_id, state, message, updated_at
		FROM ingestion_status WHERE source_type = $1 AND source_id = $2`, sourceType, sourceID,
	).Scan(&s.SourceType, &s.SourceID, &s.State, &s.Message, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repository.IngestionRepo.GetStatus: %w", err)
	}
	return &s, nil
}

// SetStatus upserts the single status row for a scope.
func (r *IngestionRepo) SetStatus(ctx context.Context, sourceType, sourceID string, state model.IngestionState, message model.StatusMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("repository.IngestionRepo.SetStatus: marshal message: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO ingestion_status (source_type, source_id, state, message, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_type, source_id)
		DO UPDATE SET state = $3, message = $4, updated_at = $5`,
		sourceType, sourceID, state, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository.IngestionRepo.SetStatus: %w", err)
	}
	return nil
}

// List returns every ingestion_status row whose source_type has the given
// prefix (e.g. "ontology_" to list all ontology kinds, "" for every scope),
// most recently updated first.
func (r *IngestionRepo) List(ctx context.Context, sourceTypePrefix string) ([]model.IngestionStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source_type, source_id, state, message, updated_at
		FROM ingestion_status
		WHERE source_type LIKE $1
		ORDER BY updated_at DESC`, sourceTypePrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("repository.IngestionRepo.List: %w", err)
	}
	defer rows.Close()

	var out []model.IngestionStatus
	for rows.Next() {
		var s model.IngestionStatus
		if err := rows.Scan(&s.SourceType, &s.SourceID, &s.State, &s.Message, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.IngestionRepo.List: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.IngestionRepo.List: %w", err)
	}
	return out, nil
}
