// Package store declares interfaces for persisting cycle run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the cycle_runs status column.
type RunStatus string

// Cycle run statuses persisted in cycle_runs.status.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunDegraded RunStatus = "degraded"
	RunFailed   RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunDegraded, RunFailed:
		return true
	default:
		return false
	}
}

// RunCounts are the record counters of a finished cycle.
type RunCounts struct {
	Fetched      int64 `json:"fetched"`
	Retained     int64 `json:"retained"`
	Duplicates   int64 `json:"duplicates"`
	Persisted    int64 `json:"persisted"`
	FailedChunks int64 `json:"failed_chunks"`
}

// Run models the cycle_runs table for API responses.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	Endpoint     string     `json:"endpoint,omitempty"`
	Counts       RunCounts  `json:"counts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// EndpointStats captures how one candidate address behaved during a cycle.
type EndpointStats struct {
	RunID      uuid.UUID `json:"run_id"`
	Endpoint   string    `json:"endpoint"`
	Attempts   int64     `json:"attempts"`
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"duration_ms"`
	LastUpdate time.Time `json:"last_update"`
}

// RunCompletion is everything known when a cycle finishes.
type RunCompletion struct {
	FinishedAt   time.Time
	Status       RunStatus
	Endpoint     string
	Counts       RunCounts
	ErrorMessage *string
}

// RunRepository persists cycle history.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) a running cycle.
	StartRun(ctx context.Context, id uuid.UUID, startedAt, windowStart, windowEnd time.Time) error
	// CompleteRun marks the cycle finished.
	CompleteRun(ctx context.Context, id uuid.UUID, done RunCompletion) error
	// UpsertEndpointStats records the outcome of one candidate address.
	UpsertEndpointStats(ctx context.Context, stats EndpointStats) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunEndpoints returns the endpoint stats of one run.
	ListRunEndpoints(ctx context.Context, id uuid.UUID) ([]EndpointStats, error)
}
