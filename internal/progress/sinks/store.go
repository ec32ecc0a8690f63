package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/progress"
	"github.com/JakeFAU/award-digest/internal/store"
)

// StoreSink persists cycle history via a store.RunRepository. Endpoint
// attempts are collapsed per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events and collapsed endpoint stats to the
// repository. It respects ctx deadlines and returns repository errors.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[endpointKey]*store.EndpointStats)
	var order []endpointKey

	for _, evt := range batch {
		cycleID := evt.CycleUUID()
		switch evt.Stage {
		case progress.StageCycleStart:
			if err := s.repo.StartRun(ctx, cycleID, evt.TS, evt.WindowStart, evt.WindowEnd); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageCycleDone:
			if err := s.repo.CompleteRun(ctx, cycleID, completion(evt)); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StageEndpointDone:
			key := endpointKey{runID: cycleID, endpoint: evt.Endpoint}
			if _, ok := stats[key]; !ok {
				order = append(order, key)
			}
			recordEndpoint(stats, key, evt)
		}
	}

	for _, key := range order {
		if err := s.repo.UpsertEndpointStats(ctx, *stats[key]); err != nil {
			return fmt.Errorf("upsert endpoint stats: %w", err)
		}
	}
	return nil
}

func completion(evt progress.Event) store.RunCompletion {
	done := store.RunCompletion{
		FinishedAt: evt.TS,
		Status:     runStatus(evt.Outcome),
		Endpoint:   evt.Endpoint,
		Counts: store.RunCounts{
			Fetched:      evt.Counts.Fetched,
			Retained:     evt.Counts.Retained,
			Duplicates:   evt.Counts.Duplicates,
			Persisted:    evt.Counts.Persisted,
			FailedChunks: evt.Counts.FailedChunks,
		},
	}
	if evt.Note != "" {
		note := evt.Note
		done.ErrorMessage = &note
	}
	return done
}

func runStatus(outcome progress.Outcome) store.RunStatus {
	switch outcome {
	case progress.OutcomeOK:
		return store.RunSuccess
	case progress.OutcomeDegraded:
		return store.RunDegraded
	default:
		return store.RunFailed
	}
}

func recordEndpoint(stats map[endpointKey]*store.EndpointStats, key endpointKey, evt progress.Event) {
	stat := stats[key]
	if stat == nil {
		stat = &store.EndpointStats{RunID: key.runID, Endpoint: key.endpoint}
		stats[key] = stat
	}
	stat.Attempts += int64(evt.Attempts)
	stat.DurationMs += evt.Dur.Milliseconds()
	stat.Outcome = string(evt.Outcome)
	if evt.TS.After(stat.LastUpdate) || stat.LastUpdate.IsZero() {
		stat.LastUpdate = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type endpointKey struct {
	runID    uuid.UUID
	endpoint string
}
