package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/award-digest/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]store.Run
	endpoints map[uuid.UUID][]store.EndpointStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:      make(map[uuid.UUID]store.Run),
		endpoints: make(map[uuid.UUID][]store.EndpointStats),
	}
}

// StartRun records a running cycle. Repeated starts keep the first timestamps.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, startedAt, windowStart, windowEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; ok {
		return nil
	}
	s.runs[id] = store.Run{
		ID:          id,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		StartedAt:   startedAt,
		Status:      store.RunRunning,
	}
	return nil
}

// CompleteRun marks the run finished, creating it when the start was lost.
func (s *RunStore) CompleteRun(_ context.Context, id uuid.UUID, done store.RunCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		run = store.Run{ID: id, StartedAt: done.FinishedAt}
	}
	finished := done.FinishedAt
	run.FinishedAt = &finished
	run.Status = done.Status
	run.Endpoint = done.Endpoint
	run.Counts = done.Counts
	run.ErrorMessage = done.ErrorMessage
	s.runs[id] = run
	return nil
}

// UpsertEndpointStats adds attempts and duration to the existing row.
func (s *RunStore) UpsertEndpointStats(_ context.Context, stats store.EndpointStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.endpoints[stats.RunID]
	for i := range rows {
		if rows[i].Endpoint != stats.Endpoint {
			continue
		}
		rows[i].Attempts += stats.Attempts
		rows[i].DurationMs += stats.DurationMs
		rows[i].Outcome = stats.Outcome
		if stats.LastUpdate.After(rows[i].LastUpdate) {
			rows[i].LastUpdate = stats.LastUpdate
		}
		return nil
	}
	s.endpoints[stats.RunID] = append(rows, stats)
	return nil
}

// GetRun loads a single run.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	slices.SortFunc(runs, func(a, b store.Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if offset >= len(runs) {
		return []store.Run{}, nil
	}
	runs = runs[max(offset, 0):]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListRunEndpoints returns the endpoint rows of a run in insertion order.
func (s *RunStore) ListRunEndpoints(_ context.Context, id uuid.UUID) ([]store.EndpointStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.endpoints[id]), nil
}

var _ store.RunRepository = (*RunStore)(nil)
