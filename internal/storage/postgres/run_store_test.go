package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/award-digest/internal/store"
)

var runCols = []string{
	"id", "window_start", "window_end", "started_at", "finished_at", "status", "endpoint",
	"fetched", "retained", "duplicates", "persisted", "failed_chunks", "error_message",
}

func TestRunStoreStartAndComplete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	start := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	wStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wEnd := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cycle_runs (id, window_start, window_end, started_at, status)")).
		WithArgs(id, wStart, wEnd, start, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, runs.StartRun(context.Background(), id, start, wStart, wEnd))

	msg := "chunk 1 rejected"
	done := store.RunCompletion{
		FinishedAt:   start.Add(time.Minute),
		Status:       store.RunDegraded,
		Endpoint:     "https://a",
		Counts:       store.RunCounts{Fetched: 10, Retained: 8, Duplicates: 1, Persisted: 5, FailedChunks: 1},
		ErrorMessage: &msg,
	}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs(id, done.FinishedAt, "degraded", "https://a", int64(10), int64(8), int64(1), int64(5), int64(1), &msg).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, runs.CompleteRun(context.Background(), id, done))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreUpsertEndpointStatsAccumulates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	stats := store.EndpointStats{
		RunID:      uuid.New(),
		Endpoint:   "https://a",
		Attempts:   4,
		Outcome:    "failed",
		DurationMs: 8000,
		LastUpdate: time.Date(2024, 2, 1, 6, 0, 8, 0, time.UTC),
	}
	mock.ExpectExec(regexp.QuoteMeta("attempts = cycle_endpoints.attempts + EXCLUDED.attempts")).
		WithArgs(stats.RunID, stats.Endpoint, stats.Attempts, stats.Outcome, stats.DurationMs, stats.LastUpdate).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, runs.UpsertEndpointStats(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	start := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	finished := start.Add(time.Minute)
	rows := pgxmock.NewRows(runCols).AddRow(
		id,
		pgtype.Date{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		pgtype.Date{Time: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Valid: true},
		start,
		pgtype.Timestamptz{Time: finished, Valid: true},
		"success",
		"https://a",
		int64(3), int64(2), int64(0), int64(2), int64(0),
		pgtype.Text{},
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM cycle_runs WHERE id = $1")).WithArgs(id).WillReturnRows(rows)

	run, err := runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), run.WindowEnd)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
	require.Nil(t, run.ErrorMessage)
	require.Equal(t, int64(2), run.Counts.Persisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM cycle_runs WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = runs.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunStoreListRunsByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	start := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	msg := "all award endpoints exhausted"
	rows := pgxmock.NewRows(runCols).AddRow(
		id, pgtype.Date{}, pgtype.Date{}, start, pgtype.Timestamptz{}, "failed", "",
		int64(0), int64(0), int64(0), int64(0), int64(0),
		pgtype.Text{String: msg, Valid: true},
	)
	failed := "failed"
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC")).
		WithArgs(&failed, 20, 0).
		WillReturnRows(rows)

	status := store.RunFailed
	got, err := runs.ListRuns(context.Background(), &status, 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, store.RunFailed, got[0].Status)
	require.Nil(t, got[0].FinishedAt)
	require.True(t, got[0].WindowStart.IsZero())
	require.Equal(t, msg, *got[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunEndpoints(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	at := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"run_id", "endpoint", "attempts", "outcome", "duration_ms", "last_update"}).
		AddRow(id, "https://a", int64(4), "failed", int64(8000), at).
		AddRow(id, "https://b", int64(1), "ok", int64(300), at.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cycle_endpoints")).WithArgs(id).WillReturnRows(rows)

	got, err := runs.ListRunEndpoints(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ok", got[1].Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}
