package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/award-digest/internal/store"
)

// RunStore implements store.RunRepository on the cycle_runs and
// cycle_endpoints tables.
type RunStore struct {
	pool Pool
}

// NewRunStore wraps pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// StartRun inserts a running cycle; a redelivered start is ignored.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, startedAt, windowStart, windowEnd time.Time) error {
	query := `
		INSERT INTO cycle_runs (id, window_start, window_end, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query, id, windowStart, windowEnd, startedAt, string(store.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun records the final status and counters. A missing start row is
// created so the history stays complete when the start event was dropped.
func (s *RunStore) CompleteRun(ctx context.Context, id uuid.UUID, done store.RunCompletion) error {
	query := `
		INSERT INTO cycle_runs (
			id, started_at, finished_at, status, endpoint,
			fetched, retained, duplicates, persisted, failed_chunks, error_message
		)
		VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			endpoint = EXCLUDED.endpoint,
			fetched = EXCLUDED.fetched,
			retained = EXCLUDED.retained,
			duplicates = EXCLUDED.duplicates,
			persisted = EXCLUDED.persisted,
			failed_chunks = EXCLUDED.failed_chunks,
			error_message = EXCLUDED.error_message;
	`
	_, err := s.pool.Exec(ctx, query,
		id,
		done.FinishedAt,
		string(done.Status),
		done.Endpoint,
		done.Counts.Fetched,
		done.Counts.Retained,
		done.Counts.Duplicates,
		done.Counts.Persisted,
		done.Counts.FailedChunks,
		done.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// UpsertEndpointStats adds the attempts and duration to the endpoint row.
func (s *RunStore) UpsertEndpointStats(ctx context.Context, stats store.EndpointStats) error {
	query := `
		INSERT INTO cycle_endpoints (run_id, endpoint, attempts, outcome, duration_ms, last_update)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, endpoint) DO UPDATE SET
			attempts = cycle_endpoints.attempts + EXCLUDED.attempts,
			duration_ms = cycle_endpoints.duration_ms + EXCLUDED.duration_ms,
			outcome = EXCLUDED.outcome,
			last_update = GREATEST(cycle_endpoints.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(ctx, query,
		stats.RunID,
		stats.Endpoint,
		stats.Attempts,
		stats.Outcome,
		stats.DurationMs,
		stats.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert endpoint stats: %w", err)
	}
	return nil
}

const runColumns = `id, window_start, window_end, started_at, finished_at, status, endpoint,
	fetched, retained, duplicates, persisted, failed_chunks, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM cycle_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM cycle_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunEndpoints retrieves the endpoint stats of one run.
func (s *RunStore) ListRunEndpoints(ctx context.Context, id uuid.UUID) ([]store.EndpointStats, error) {
	query := `
		SELECT run_id, endpoint, attempts, outcome, duration_ms, last_update
		FROM cycle_endpoints
		WHERE run_id = $1
		ORDER BY last_update;
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list run endpoints: %w", err)
	}
	defer rows.Close()

	stats := []store.EndpointStats{}
	for rows.Next() {
		var stat store.EndpointStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Endpoint,
			&stat.Attempts,
			&stat.Outcome,
			&stat.DurationMs,
			&stat.LastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate endpoint rows: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.Run, error) {
	var (
		run          store.Run
		windowStart  pgtype.Date
		windowEnd    pgtype.Date
		finishedAt   pgtype.Timestamptz
		status       string
		errorMessage pgtype.Text
	)
	err := row.Scan(
		&run.ID,
		&windowStart,
		&windowEnd,
		&run.StartedAt,
		&finishedAt,
		&status,
		&run.Endpoint,
		&run.Counts.Fetched,
		&run.Counts.Retained,
		&run.Counts.Duplicates,
		&run.Counts.Persisted,
		&run.Counts.FailedChunks,
		&errorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	if windowStart.Valid {
		run.WindowStart = windowStart.Time
	}
	if windowEnd.Valid {
		run.WindowEnd = windowEnd.Time
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		run.ErrorMessage = &msg
	}
	return run, nil
}

var _ store.RunRepository = (*RunStore)(nil)
